// scsi_ioctl.go - SCSI_IOCTL_* family, the sg passthrough device, and tape
// MTIOCTOP sub-commands (§6 "SCSI ioctls")

package main

import (
	"sync"

	"golang.org/x/sys/unix"
)

// SCSI_IOCTL_* request numbers (§6).
const (
	ScsiIoctlProbeHost = iota + 0x5380
	ScsiIoctlSendCommand
	ScsiIoctlTestUnitReady
	ScsiIoctlDoorlock
	ScsiIoctlDoorunlock
	ScsiIoctlGetIdlun
	ScsiIoctlTaggedEnable
	ScsiIoctlTaggedDisable
)

// sendCommandMaxBytes bounds SCSI_IOCTL_SEND_COMMAND's buffer (§6: "bounded
// 4 KiB buffer").
const sendCommandMaxBytes = 4096

// IdLun is the SCSI_IOCTL_GET_IDLUN reply (§6).
type IdLun struct {
	DevID    uint32 // channel<<16 | id<<8 | lun, host-order packed like the historical ioctl
	HostUniqueID uint32
}

// SendCommandReq is the SCSI_IOCTL_SEND_COMMAND payload: a CDB plus an
// inline data buffer, direction implied by the opcode the way the
// historical ioctl overloads one buffer for both directions.
type SendCommandReq struct {
	CDB    []byte
	Data   []byte
	Write  bool
	Tagged bool
}

// scsiIoctl implements the SCSI_IOCTL_* family against one device, the way
// ttyIoctl implements the termios family against one TTY.
func scsiIoctl(s *ScsiCore, h *Host, d *Dev, cmd uint32, arg any, cancel <-chan struct{}) (any, error) {
	switch cmd {
	case ScsiIoctlProbeHost:
		return h.Driver.Info(), nil

	case ScsiIoctlSendCommand:
		req, ok := arg.(SendCommandReq)
		if !ok {
			return nil, unix.EINVAL
		}
		if len(req.Data) > sendCommandMaxBytes {
			return nil, unix.EINVAL
		}
		c, err := s.Execute(h, d, req.CDB, req.Data, req.Tagged, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		return c.Sense, errnoFromScsi(c.Result)

	case ScsiIoctlTestUnitReady:
		cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		return nil, errnoFromScsi(c.Result)

	case ScsiIoctlDoorlock:
		return nil, doorLock(s, h, d, true, cancel)

	case ScsiIoctlDoorunlock:
		return nil, doorLock(s, h, d, false, cancel)

	case ScsiIoctlGetIdlun:
		return IdLun{DevID: uint32(d.TargetID)<<8 | uint32(d.Lun)}, nil

	case ScsiIoctlTaggedEnable:
		if !d.TaggedSupported {
			return nil, unix.EINVAL
		}
		d.mu.Lock()
		d.TaggedQueueEnabled = true
		d.mu.Unlock()
		return nil, nil

	case ScsiIoctlTaggedDisable:
		d.mu.Lock()
		d.TaggedQueueEnabled = false
		d.mu.Unlock()
		return nil, nil
	}
	return nil, unix.EINVAL
}

// CD-ROM ioctl request numbers (sr_ioctl.c's CDROM* family, §6 "device-
// specific ioctl quirks"). Only the subset this mid-layer has a concrete
// reason to model is defined: transport (stop/start/eject) and the TOC
// header read; audio-play and subchannel ioctls are left unmodeled since
// nothing in this subsystem consumes CD audio.
const (
	CDROMStop = iota + 0x5301
	CDROMStart
	CDROMEject
	CDROMReadTOCHdr
)

// TOCHeader is CDROMREADTOCHDR's reply: the first and last track numbers
// on the disc (sr_ioctl.c's struct cdrom_tochdr).
type TOCHeader struct {
	FirstTrack byte
	LastTrack  byte
}

// cdromIoctl dispatches the CDROM* ioctl family against a CD-ROM device,
// the way mtIoctl dispatches MTIOCTOP against a tape device.
func cdromIoctl(s *ScsiCore, h *Host, d *Dev, cmd uint32, arg any, cancel <-chan struct{}) (any, error) {
	switch cmd {
	case CDROMStop:
		// sr_ioctl.c CDROMSTOP: START STOP with start=0 (stop spinning).
		cdb := []byte{OpStartStop, byte(d.Lun) << 5 | 1, 0, 0, 0, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		return nil, errnoFromScsi(c.Result)

	case CDROMStart:
		// sr_ioctl.c CDROMSTART: START STOP with start=1.
		cdb := []byte{OpStartStop, byte(d.Lun) << 5 | 1, 0, 0, 1, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		return nil, errnoFromScsi(c.Result)

	case CDROMEject:
		// sr_ioctl.c CDROMEJECT: unlock the door if this is the last opener,
		// then START STOP with start=0, LoEj=1 (bit 1). On success the
		// device's changed bit is set, mirroring a medium that's now known
		// to be physically removed.
		d.mu.Lock()
		last := d.AccessCount == 1
		d.mu.Unlock()
		if last {
			if err := doorLock(s, h, d, false, cancel); err != nil {
				return nil, err
			}
		}
		cdb := []byte{OpStartStop, byte(d.Lun) << 5 | 1, 0, 0, 0x02, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		if res := errnoFromScsi(c.Result); res == nil {
			d.mu.Lock()
			d.Changed = true
			d.mu.Unlock()
		} else {
			return nil, res
		}
		return nil, nil

	case CDROMReadTOCHdr:
		// sr_ioctl.c CDROMREADTOCHDR: READ TOC, MSF format bit set, 12-byte
		// reply; first/last track numbers are reply bytes 2 and 3.
		cdb := []byte{OpReadTOC, byte(d.Lun)<<5 | 0x02, 0, 0, 0, 0, 0, 0, 12, 0}
		buf := make([]byte, 12)
		c, err := s.Execute(h, d, cdb, buf, false, cancel)
		if err != nil {
			return nil, ioctlErrno(err)
		}
		if res := errnoFromScsi(c.Result); res != nil {
			return nil, res
		}
		return TOCHeader{FirstTrack: buf[2], LastTrack: buf[3]}, nil
	}
	return nil, unix.EINVAL
}

// DeviceIoctl routes an ioctl request to the SCSI_IOCTL_*, tape MTIOCTOP, or
// CDROM family depending on the device's peripheral type, mirroring how the
// historical driver model dispatches through each device class's own
// file_operations.ioctl before falling back to the generic SCSI_IOCTL_*
// handler every class shares.
func DeviceIoctl(s *ScsiCore, h *Host, d *Dev, cmd uint32, arg any, cancel <-chan struct{}) (any, error) {
	switch d.Type {
	case DevTypeTape:
		switch cmd {
		case MTIOCTOP, MTIOCGET, MTIOCPOS:
			return mtIoctl(s, h, d, cmd, arg, cancel)
		}
	case DevTypeCDROM:
		switch cmd {
		case CDROMStop, CDROMStart, CDROMEject, CDROMReadTOCHdr:
			return cdromIoctl(s, h, d, cmd, arg, cancel)
		}
	}
	return scsiIoctl(s, h, d, cmd, arg, cancel)
}

// doorLock issues ALLOW MEDIUM REMOVAL with the lock bit set/cleared.
func doorLock(s *ScsiCore, h *Host, d *Dev, lock bool, cancel <-chan struct{}) error {
	if !d.Lockable {
		return unix.EINVAL
	}
	cdb := []byte{OpAllowRemoval, 0, 0, 0, 0, 0}
	if lock {
		cdb[4] = 1
	}
	c, err := s.Execute(h, d, cdb, nil, false, cancel)
	if err != nil {
		return ioctlErrno(err)
	}
	return errnoFromScsi(c.Result)
}

// sgBigBuff is the shared bounce-buffer size for the sg passthrough device
// (§6 "SG_BIG_BUFF 32 KiB shared bounce buffer with one-slot wait queue").
const sgBigBuff = 32 << 10

// SGHeader is the fixed sg-device request/reply header (§6).
type SGHeader struct {
	PackLen  int32 // total request length, header included
	ReplyLen int32 // caller-supplied reply buffer length
	PackID   int32 // caller's opaque correlation id, echoed back
	Result   int32 // 0 or an errno, filled in on reply
	CDB      [12]byte
	CDBLen   int
	Data     []byte
}

// SGDevice models one /dev/sg-style passthrough node: a single shared
// sgBigBuff-sized bounce buffer guarded by a one-slot wait queue, so only
// one request is ever in flight at a time (§6).
type SGDevice struct {
	mu    sync.Mutex
	busy  bool
	waitQ []chan struct{}

	s *ScsiCore
	h *Host
	d *Dev
}

func NewSGDevice(s *ScsiCore, h *Host, d *Dev) *SGDevice {
	return &SGDevice{s: s, h: h, d: d}
}

// acquire blocks until the single in-flight slot is free or cancel fires.
func (g *SGDevice) acquire(cancel <-chan struct{}) bool {
	for {
		g.mu.Lock()
		if !g.busy {
			g.busy = true
			g.mu.Unlock()
			return true
		}
		ch := make(chan struct{})
		g.waitQ = append(g.waitQ, ch)
		g.mu.Unlock()
		select {
		case <-ch:
		case <-cancel:
			return false
		}
	}
}

func (g *SGDevice) release() {
	g.mu.Lock()
	g.busy = false
	waiters := g.waitQ
	g.waitQ = nil
	g.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// Write submits one sg request: validates the header against sgBigBuff and
// runs the CDB synchronously, filling in Result for the subsequent Read.
func (g *SGDevice) Write(hdr *SGHeader, cancel <-chan struct{}) error {
	if len(hdr.Data) > sgBigBuff || hdr.ReplyLen > sgBigBuff {
		return unix.EINVAL
	}
	if !g.acquire(cancel) {
		return errRestartSys
	}
	defer g.release()

	c, err := g.s.Execute(g.h, g.d, hdr.CDB[:hdr.CDBLen], hdr.Data, false, cancel)
	if err != nil {
		hdr.Result = int32(errnoToInt(ioctlErrno(err)))
		return ioctlErrno(err)
	}
	hdr.Result = int32(errnoToInt(errnoFromScsi(c.Result)))
	return nil
}

func errnoToInt(err error) int {
	if err == nil {
		return 0
	}
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return -1
}

// MTIOCTOP sub-command opcodes (§6 "tape MTIOCTOP sub-commands").
const (
	MtFsf = iota
	MtBsf
	MtFsr
	MtBsr
	MtRew
	MtOffl
	MtWeof
	MtRetension
	MtEom          // space to end of recorded medium (st.c MTEOM: SPACE, code 3)
	MtErase        // erase to end of tape (st.c MTERASE: ERASE, guarded by write_prot)
	MtSeek         // SCSI-2 block-address seek (st.c MTSEEK: SEEK_10)
	MtSetBlk       // set fixed block size (st.c MTSETBLK: MODE SELECT)
	MtSetDensity   // set tape density (st.c MTSETDENSITY: MODE SELECT)
	MtSetDrvBuffer // set drive buffering mode (st.c MTSETDRVBUFFER: MODE SELECT)
)

// MTOp is one MTIOCTOP request: an operation plus a repeat count.
type MTOp struct {
	Op    int
	Count int
}

// MTGet is the MTIOCGET reply: coarse tape-drive status (§6).
type MTGet struct {
	Type      int
	ErrReg    int
	ResID     int
	FileNo    int
	BlockNo   int
}

// Tape ioctl request numbers (§6). golang.org/x/sys/unix doesn't carry the
// historical mtio.h constants, so they're defined locally the same way the
// SCSI_IOCTL_* family above is.
const (
	MTIOCTOP = iota + 0x6d00
	MTIOCGET
	MTIOCPOS
)

// mtIoctl dispatches the tape ioctl family against a sequential-access
// device, translating each MTIOCTOP sub-command into the equivalent SCSI
// command the way the other SCSI_IOCTL_* entries do.
func mtIoctl(s *ScsiCore, h *Host, d *Dev, cmd uint32, arg any, cancel <-chan struct{}) (any, error) {
	switch cmd {
	case MTIOCTOP:
		op, ok := arg.(MTOp)
		if !ok {
			return nil, unix.EINVAL
		}
		return nil, mtDoOp(s, h, d, op, cancel)

	case MTIOCGET:
		return MTGet{Type: int(d.Type)}, nil

	case MTIOCPOS:
		return 0, nil
	}
	return nil, unix.EINVAL
}

// mtDoOp maps one MTIOCTOP sub-command onto a SPACE/REWIND/WRITE FILEMARKS
// CDB and runs it count times (§6).
func mtDoOp(s *ScsiCore, h *Host, d *Dev, op MTOp, cancel <-chan struct{}) error {
	count := op.Count
	if count < 1 {
		count = 1
	}
	switch op.Op {
	case MtRew, MtOffl:
		cdb := []byte{OpRezeroUnit, 0, 0, 0, 0, 0}
		if op.Op == MtOffl {
			cdb[4] = 1
		}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtWeof:
		cdb := []byte{OpWriteFilemarks, 0, 0, 0, byte(count), 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtFsf, MtBsf, MtFsr, MtBsr:
		code := byte(0) // blocks
		if op.Op == MtFsf || op.Op == MtBsf {
			code = 1 // filemarks
		}
		n := int32(count)
		if op.Op == MtBsf || op.Op == MtBsr {
			n = -n
		}
		cdb := []byte{OpSpace, code, byte(n >> 16), byte(n >> 8), byte(n), 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtEom:
		// st.c MTEOM: cmd[0]=SPACE, cmd[1]=3 (space to end of recorded medium).
		cdb := []byte{OpSpace, 3, 0, 0, 0, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtRetension:
		cdb := []byte{OpStartStop, 0, 0, 0, 3, 0} // LOAD with RETEN (byte 4 bits 0 and 1), immediate bit clear
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtErase:
		// st.c MTERASE: cmd[0]=ERASE, cmd[1]=1 (erase to end of tape),
		// refused if the drive was opened write-protected.
		if d.WriteProt {
			return unix.EACCES
		}
		cdb := []byte{OpEraseSCSI, 1, 0, 0, 0, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtSeek:
		// st.c MTSEEK, SCSI-2 path: cmd[0]=SEEK_10, cmd[1]=4, 4-byte block
		// address at cmd[3..6]. (The SCSI-1/CCS QFA_SEEK_BLOCK 3-byte-address
		// form isn't modeled: every device this mid-layer targets is SCSI-2.)
		addr := uint32(count)
		cdb := []byte{OpSeek10, 4, 0, byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr), 0, 0, 0}
		c, err := s.Execute(h, d, cdb, nil, false, cancel)
		if err != nil {
			return ioctlErrno(err)
		}
		return errnoFromScsi(c.Result)

	case MtSetBlk, MtSetDensity, MtSetDrvBuffer:
		return mtModeSelect(s, h, d, op, cancel)
	}
	return unix.EINVAL
}

// mtModeSelect implements st.c's shared MODE SELECT path for
// MTSETBLK/MTSETDENSITY/MTSETDRVBUFFER: a 12-byte parameter block with a
// block descriptor (density + 24-bit block length) and a drive-buffering
// nibble, built from whichever field op.Op targets and the device's
// current values for the other two.
func mtModeSelect(s *ScsiCore, h *Host, d *Dev, op MTOp, cancel <-chan struct{}) error {
	d.mu.Lock()
	blockSize := d.BlockSize
	density := d.Density
	drvBuffer := d.DrvBuffer
	d.mu.Unlock()

	switch op.Op {
	case MtSetBlk:
		blockSize = op.Count
	case MtSetDensity:
		density = byte(op.Count)
	case MtSetDrvBuffer:
		drvBuffer = byte(op.Count)
	}

	cdb := []byte{OpModeSelect6, 0, 0, 0, 12, 0}
	param := make([]byte, 12)
	param[2] = drvBuffer << 4
	param[3] = 8 // block descriptor length
	param[4] = density
	param[9] = byte(blockSize >> 16)
	param[10] = byte(blockSize >> 8)
	param[11] = byte(blockSize)

	c, err := s.Execute(h, d, cdb, param, false, cancel)
	if err != nil {
		return ioctlErrno(err)
	}
	if res := errnoFromScsi(c.Result); res != nil {
		return res
	}

	d.mu.Lock()
	switch op.Op {
	case MtSetBlk:
		d.BlockSize = blockSize
	case MtSetDensity:
		d.Density = density
	case MtSetDrvBuffer:
		d.DrvBuffer = drvBuffer
	}
	d.mu.Unlock()
	return nil
}
