// scsi_types.go - SCSI data model: Cmd, Host, Dev, sense/status wire values (§3, §4.4)

package main

import "sync"

// SCSI status byte values (low-order bits of the status phase byte, §4.4).
const (
	StatusGood                = 0x00
	StatusCheckCondition      = 0x02
	StatusConditionMet        = 0x04
	StatusBusy                = 0x08
	StatusIntermediate        = 0x10
	StatusReservationConflict = 0x18
)

// Message-phase bytes relevant to the mid-layer (§4.4 "Information-transfer loop").
const (
	MsgCommandComplete  = 0x00
	MsgSaveDataPointer   = 0x02
	MsgRestoreDataPointer = 0x03
	MsgDisconnect       = 0x04
	MsgMessageReject    = 0x07
	MsgIdentify         = 0x80 // low 3 bits carry LUN, bit 6 enables disconnect
	MsgSimpleQueueTag   = 0x20
	MsgAbort            = 0x06
	MsgLinkedComplete   = 0x0a
	MsgLinkedCompleteF  = 0x0b
)

// Sense keys (byte 2 of the 16-byte sense buffer, low nibble), §4.4 "Completion".
type SenseKey byte

const (
	SenseNoSense        SenseKey = 0x0
	SenseRecoveredError SenseKey = 0x1
	SenseNotReady       SenseKey = 0x2
	SenseMediumError    SenseKey = 0x3
	SenseHardwareError  SenseKey = 0x4
	SenseIllegalRequest SenseKey = 0x5
	SenseUnitAttention  SenseKey = 0x6
	SenseDataProtect    SenseKey = 0x7
	SenseAbortedCommand SenseKey = 0xb
)

// SCSI peripheral device-type codes (INQUIRY byte 0, low 5 bits), used to
// route a device ioctl to its class-specific family the way the historical
// driver model dispatches through each class's own file_operations.ioctl.
const (
	DevTypeDisk  byte = 0x00
	DevTypeTape  byte = 0x01
	DevTypeCDROM byte = 0x05
)

// Opcodes the mid-layer itself issues or special-cases (§4.4, §6).
const (
	OpTestUnitReady = 0x00
	OpRezeroUnit    = 0x01 // REWIND on sequential-access devices (st.c st_int_ioctl MTREW)
	OpRequestSense  = 0x03
	OpInquiry       = 0x12
	OpRead6         = 0x08
	OpWrite6        = 0x0a
	OpSpace         = 0x11 // st.c MTFSF/MTBSF/MTFSR/MTBSR/MTEOM
	OpEraseSCSI     = 0x19 // st.c st_int_ioctl MTERASE
	OpModeSelect6   = 0x15 // st.c MTSETBLK/MTSETDENSITY/MTSETDRVBUFFER
	OpStartStop     = 0x1b // MTRETEN and the CD-ROM stop/start/eject ioctls
	OpWriteFilemarks = 0x10
	OpRead10        = 0x28
	OpWrite10       = 0x2a
	OpSeek10        = 0x2b // st.c SCSI-2 MTSEEK
	OpAllowRemoval  = 0x1e
	OpReadTOC       = 0x43 // sr_ioctl.c CDROMREADTOCHDR/CDROMREADTOCENTRY
)

// Cmd flag bits (§3 "SCSI command (Cmd)").
type CmdFlag uint16

const (
	FlagWasSense CmdFlag = 1 << iota
	FlagWasReset
	FlagWasTimedOut
	FlagAskedForSense
	FlagIsResetting
	FlagNeedsJumpstart
)

// connState is the per-Cmd nexus lifecycle the host's main() coroutine and
// the information-transfer loop drive it through (§4.4, §9 "Coroutine
// control flow" state machine: Idle/Scanning/Selecting/Transferring/Retrying
// collapsed here onto the per-command state it actually needs).
type connState int

const (
	cmdIdle connState = iota
	cmdQueued
	cmdSelecting
	cmdConnected
	cmdDisconnected
	cmdComplete
)

// SGEntry is one scatter/gather fragment: a caller buffer slice, optionally
// backed by a driver-allocated bounce fragment (§3, §4.4 "Bounce buffering").
type SGEntry struct {
	Buffer      []byte // caller's fragment (authoritative address space)
	Bounce      []byte // driver-allocated DMA-safe duplicate, or nil
	BouncePage  int    // page index in the DMA pool when Bounce != nil
	BounceWrite bool   // true if this was a write needing pre-copy
}

// Cmd is one SCSI command descriptor, preallocated per device (§3).
type Cmd struct {
	mu sync.Mutex

	host *Host
	dev  *Dev

	TargetID int
	Lun      int

	CDB    [12]byte
	CDBLen int

	// dataCmnd/dataBuffer are the submission-time snapshot the retry path
	// restores from (§4.4 "On each retry the original command bytes and
	// buffer are restored").
	dataCmnd   [12]byte
	dataCmndLen int
	dataBuffer []byte
	buffer     []byte
	sg         []SGEntry

	Sense [16]byte

	Result ScsiResult

	Flags CmdFlag

	Retries   int
	Allowed   int
	TimeoutMS int

	Tag int // 0 means untagged

	Done func(*Cmd)

	scratch any // Host Driver's private per-command scratchpad

	linkedNext *Cmd // linked-command follow-on (§4.4 LINKED_*_COMPLETE)

	// per-host doubly-linked sibling pointers, used by the issue/disconnect
	// queues (§3 "per-adapter doubly-linked sibling pointer").
	prev, next *Cmd

	busy  bool // this slot is in use
	state connState

	deadlineSet bool
	deadlineSeq uint64 // sequence number of the most recent Schedule for this Cmd
}

func (c *Cmd) snapshotForRetry() {
	c.dataCmnd = c.CDB
	c.dataCmndLen = c.CDBLen
	c.dataBuffer = c.buffer
}

func (c *Cmd) restoreFromSnapshot() {
	c.CDB = c.dataCmnd
	c.CDBLen = c.dataCmndLen
	c.buffer = c.dataBuffer
}

// ScsiHostDriver is the Host Driver capability interface (§3 "Host (adapter)
// record", §4.4 "Selection / reselection", "Information-transfer loop").
// Named distinctly from the TTY core's HostDriver (tty_core.go) since the
// spec uses "Host Driver" for two unrelated capabilities.
type ScsiHostDriver interface {
	Detect() error
	Info() string

	// QueueCommand accepts cmd asynchronously, invoking done on completion
	// from the driver's own goroutine/interrupt path. A driver that only
	// supports synchronous operation implements syncOnlyMarker, and Command
	// is used instead (§3 "queuecommand(cmd, done) OR synchronous command(cmd)").
	QueueCommand(cmd *Cmd, done func(*Cmd)) error
	Command(cmd *Cmd) ScsiResult

	Abort(cmd *Cmd, code HostError) ScsiResult
	Reset(cmd *Cmd) ScsiResult

	CanQueue() int
	ThisID() int
	SGTableSize() int
	CmdPerLun() int
	UncheckedISADMA() bool
}

// Host is one host-bus-adapter record (§3 "Host (adapter) record").
type Host struct {
	mu sync.Mutex

	Name   string
	Driver ScsiHostDriver

	hostBusy int
	busyMap  map[[2]int]bool // (target,lun) -> busy, untagged in-flight guard (§8)

	issueHead, issueTail *Cmd // per-host command queue, linked via Cmd.next/prev

	disconnected map[[2]int]*Cmd     // untagged I_T_L lookup
	disconnTag   map[[3]int]*Cmd     // I_T_L_Q lookup: (target,lun,tag)

	waiters []chan struct{} // blocked submitters

	lastReset int64 // monotonic tick of the last bus reset

	connected *Cmd // the single Cmd currently connected, if any (§8 invariant)

	devices map[[2]int]*Dev

	next *Host // singly-linked host list
}

func newHost(name string, driver ScsiHostDriver) *Host {
	return &Host{
		Name:         name,
		Driver:       driver,
		busyMap:      make(map[[2]int]bool),
		disconnected: make(map[[2]int]*Cmd),
		disconnTag:   make(map[[3]int]*Cmd),
		devices:      make(map[[2]int]*Dev),
	}
}

// Dev is one SCSI logical unit (§3 "SCSI device (Dev)").
type Dev struct {
	mu sync.Mutex

	host *Host

	TargetID int
	Lun      int

	Type  byte
	Level byte // SCSI-1 / CCS / SCSI-2

	Removable      bool
	Writeable      bool
	Lockable       bool
	RandomAccess   bool
	TaggedSupported bool

	Changed           bool
	Busy              bool
	TaggedQueueEnabled bool
	Disconnect        bool
	Borken            bool
	AccessCount       int
	currentTag        int // monotonically incrementing, skips 0

	// Tape-specific MODE SELECT state (st.c st_int_ioctl MTSETBLK/
	// MTSETDENSITY/MTSETDRVBUFFER), kept here rather than on a separate
	// tape-device struct since no other device type reads them.
	BlockSize int
	Density   byte
	DrvBuffer byte
	WriteProt bool

	// RevalidateHook, if set, is called (outside d.mu) whenever Open
	// detects the medium actually changed. It stands in for the
	// filesystem layer's reaction to check_disk_change reporting true:
	// sd.c's revalidate_scsidisk drops cached partitions via
	// invalidate_inodes/invalidate_buffers, which is what forces a
	// filesystem like ext2 to drop any directory-entry cache it keeps
	// keyed by this device (fs/ext2/namei.c's ext2_dcache_add/_remove) so
	// a stale lookup never resolves against the previous disc. The
	// filesystem/inode layer itself stays an external collaborator; this
	// is only the notification point it would hang off of.
	RevalidateHook func(d *Dev)

	cmdSlots []*Cmd // preallocated cmd_per_lun slots

	waiters []chan struct{}
}

func newDev(host *Host, target, lun int, cmdPerLun int) *Dev {
	d := &Dev{host: host, TargetID: target, Lun: lun, cmdSlots: make([]*Cmd, cmdPerLun)}
	for i := range d.cmdSlots {
		d.cmdSlots[i] = &Cmd{host: host, dev: d, TargetID: target, Lun: lun}
	}
	return d
}

func (d *Dev) nextTag() int {
	d.currentTag++
	if d.currentTag == 0 {
		d.currentTag = 1 // tag 0 is never issued (§4.4 "Tagged queueing")
	}
	return d.currentTag
}
