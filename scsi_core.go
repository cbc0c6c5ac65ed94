// scsi_core.go - SCSI mid-layer core: host/device registry, execute() (§2, §3, §4.4)

package main

import "sync"

// ScsiCore owns the host list, the DMA bounce pool, and the timeout list
// (§2 "SCSI Core"). It is reached through Kernel.scsi; every entry point
// takes the core itself rather than reaching through package-level state,
// per §9's "single opaque kernel context" strategy.
type ScsiCore struct {
	mu        sync.Mutex
	hosts     *Host // singly-linked host list (§3)
	dma       *DMAPool
	timer     *ScsiTimer
	mainRunning bool // §5 "re-entrancy flag (main_running)"
}

// defaultRetryAllowance matches the spec's scenario 4 ("default retry
// allowance >= 3").
const defaultRetryAllowance = 3

// defaultCmdTimeoutMS is the per-command timeout used when a caller
// doesn't override it.
const defaultCmdTimeoutMS = 10000

func NewScsiCore() *ScsiCore {
	return &ScsiCore{
		dma:   NewDMAPool(4), // 4 pages = 64 sectors of bounce capacity
		timer: NewScsiTimer(),
	}
}

// AddHost registers a host-bus adapter (§1 "Non-goals: dynamic
// reconfiguration of the host-adapter set after boot" — hosts are only
// ever added at boot, never removed).
func (s *ScsiCore) AddHost(name string, driver ScsiHostDriver) *Host {
	h := newHost(name, driver)
	s.mu.Lock()
	h.next = s.hosts
	s.hosts = h
	s.mu.Unlock()
	return h
}

// AddDevice registers a logical unit under host at (target, lun), with
// cmd_per_lun preallocated Cmd slots (§3 "Cmd slots are preallocated
// cmd_per_lun per device under each host").
func (h *Host) AddDevice(target, lun int, cfg DevConfig) *Dev {
	cmdPerLun := h.Driver.CmdPerLun()
	if cmdPerLun < 1 {
		cmdPerLun = 1
	}
	d := newDev(h, target, lun, cmdPerLun)
	d.Type = cfg.Type
	d.Level = cfg.Level
	d.Removable = cfg.Removable
	d.Writeable = cfg.Writeable
	d.Lockable = cfg.Lockable
	d.RandomAccess = cfg.RandomAccess
	d.TaggedSupported = cfg.TaggedSupported
	d.TaggedQueueEnabled = cfg.TaggedSupported
	d.Disconnect = cfg.Disconnect

	h.mu.Lock()
	h.devices[[2]int{target, lun}] = d
	h.mu.Unlock()
	return d
}

// DevConfig is the static capability set a caller supplies when attaching
// a logical unit (§3 "SCSI device (Dev)").
type DevConfig struct {
	Type            byte
	Level           byte
	Removable       bool
	Writeable       bool
	Lockable        bool
	RandomAccess    bool
	TaggedSupported bool
	Disconnect      bool
}

func (h *Host) Device(target, lun int) *Dev {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.devices[[2]int{target, lun}]
}

// allocSlot finds an idle Cmd in dev's preallocated array, marking it busy.
// Returns nil if none are free.
func (d *Dev) allocSlot() *Cmd {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.cmdSlots {
		c.mu.Lock()
		if !c.busy {
			c.busy = true
			c.mu.Unlock()
			return c
		}
		c.mu.Unlock()
	}
	return nil
}

func (d *Dev) freeSlot(c *Cmd) {
	c.mu.Lock()
	c.busy = false
	c.state = cmdIdle
	c.mu.Unlock()
	d.mu.Lock()
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// waitForSlot blocks until allocSlot would succeed, or cancel fires.
func (d *Dev) waitForSlot(cancel <-chan struct{}) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()
	select {
	case <-ch:
	case <-cancel:
	}
}

// QueueCommand implements §4.1's execute(cmd, done) contract at the public
// boundary: it finds (or waits for) a free Cmd slot on dev, fills it in,
// submits it to the host's issue queue, and returns immediately; done is
// invoked from scsi_done once the command completes (§4.4 "Command
// lifecycle").
func (s *ScsiCore) QueueCommand(h *Host, dev *Dev, cdb []byte, buf []byte, tagged bool, done func(*Cmd), cancel <-chan struct{}) (*Cmd, error) {
	var c *Cmd
	for {
		c = dev.allocSlot()
		if c != nil {
			break
		}
		if cancel == nil {
			return nil, errRestartSys
		}
		dev.waitForSlot(cancel)
		select {
		case <-cancel:
			return nil, errRestartSys
		default:
		}
	}

	c.mu.Lock()
	c.CDBLen = copy(c.CDB[:], cdb)
	c.buffer = buf
	c.Sense = [16]byte{}
	c.Result = ScsiResult{}
	c.Flags = 0
	c.Retries = 0
	c.Allowed = defaultRetryAllowance
	c.TimeoutMS = defaultCmdTimeoutMS
	c.Done = done
	c.Tag = 0
	if tagged && dev.TaggedQueueEnabled && dev.TaggedSupported {
		c.Tag = dev.nextTag()
	}
	c.snapshotForRetry()
	c.state = cmdQueued
	c.mu.Unlock()

	dev.mu.Lock()
	mediaGate := dev.Removable && dev.Changed
	dev.mu.Unlock()
	if mediaGate && mediaChangeExempt(cdb) {
		mediaGate = false
	}
	if mediaGate {
		// sd.c's request-time gate (the `if (rscsi_disks[dev].device->changed)`
		// check in the request-building loop): quietly refuse with zero bytes
		// transferred rather than ever reaching the host driver.
		c.mu.Lock()
		c.Result = ScsiResult{Host: DidNoMedium}
		c.state = cmdComplete
		doneFn := c.Done
		c.mu.Unlock()
		dev.freeSlot(c)
		if doneFn != nil {
			doneFn(c)
		}
		return c, nil
	}

	h.enqueueIssue(c)
	s.timer.Schedule(c, c.TimeoutMS)
	s.runScheduler()
	return c, nil
}

// Execute is the synchronous convenience wrapper §2 describes ("exposes a
// synchronous execute(cmd, done) interface"): it blocks the caller until
// the command completes.
func (s *ScsiCore) Execute(h *Host, dev *Dev, cdb, buf []byte, tagged bool, cancel <-chan struct{}) (*Cmd, error) {
	resultCh := make(chan struct{}, 1)
	var done *Cmd
	c, err := s.QueueCommand(h, dev, cdb, buf, tagged, func(cmd *Cmd) {
		done = cmd
		resultCh <- struct{}{}
	}, cancel)
	if err != nil {
		return nil, err
	}
	select {
	case <-resultCh:
		return done, nil
	case <-cancel:
		return c, errRestartSys
	}
}

// mediaChangeExempt reports whether cdb's opcode must reach the device even
// while Dev.Changed is set: TEST UNIT READY and REQUEST SENSE are how the
// changed bit itself gets cleared and diagnosed, INQUIRY is used for
// identification before the first open, and ALLOW MEDIUM REMOVAL is the
// door-lock/unlock path (sd.c's gate only covers ordinary read/write
// requests, not these housekeeping commands).
func mediaChangeExempt(cdb []byte) bool {
	if len(cdb) == 0 {
		return true
	}
	switch cdb[0] {
	case OpTestUnitReady, OpRequestSense, OpInquiry, OpAllowRemoval:
		return true
	}
	return false
}

// CheckMediaChange implements sd.c's check_scsidisk_media_change: issue
// TEST UNIT READY, and on failure force Changed so the caller re-reads
// partitions; on success report (and, unless peek is set, clear) the
// existing Changed bit. It returns the value the caller should act on,
// exactly like the original function's int return.
func CheckMediaChange(s *ScsiCore, h *Host, d *Dev, peek bool, cancel <-chan struct{}) (bool, error) {
	if !d.Removable {
		return false, nil
	}
	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	c, err := s.Execute(h, d, cdb, nil, false, cancel)
	if err != nil {
		return false, ioctlErrno(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !c.Result.OK() {
		d.Changed = true
		return true, nil
	}
	changed := d.Changed
	if !peek {
		d.Changed = false
	}
	return changed, nil
}

// Open implements sd.c's sd_open: wait for the device to be free, revalidate
// removable media, and on the first concurrent opener engage the door lock
// (§7 "a SCSI removable device ... forces partition re-read on next open").
func (d *Dev) Open(s *ScsiCore, h *Host, cancel <-chan struct{}) error {
	for {
		d.mu.Lock()
		if !d.Busy {
			d.Busy = true
			d.mu.Unlock()
			break
		}
		d.mu.Unlock()
		d.waitForSlot(cancel)
		select {
		case <-cancel:
			return errRestartSys
		default:
		}
	}

	if d.Removable {
		changed, err := CheckMediaChange(s, h, d, false, cancel)
		if err != nil {
			d.mu.Lock()
			d.Busy = false
			d.mu.Unlock()
			return err
		}
		if changed && d.RevalidateHook != nil {
			d.RevalidateHook(d)
		}
	}

	d.mu.Lock()
	first := d.AccessCount == 0
	d.AccessCount++
	d.Busy = false
	d.mu.Unlock()

	if first && d.Lockable {
		if err := doorLock(s, h, d, true, cancel); err != nil {
			return err
		}
	}
	return nil
}

// Release implements sd.c's sd_release: decrement the opener count and
// unlock the door once the last opener leaves.
func (d *Dev) Release(s *ScsiCore, h *Host, cancel <-chan struct{}) error {
	d.mu.Lock()
	if d.AccessCount > 0 {
		d.AccessCount--
	}
	last := d.AccessCount == 0
	d.mu.Unlock()

	if last && d.Lockable {
		return doorLock(s, h, d, false, cancel)
	}
	return nil
}

// enqueueIssue appends c to h's per-host issue queue (§3 "a per-host
// command queue (linked via Cmd next/prev)"), except REQUEST SENSE, which
// is spliced at the head (§4.4 "Sense behavior (AUTOSENSE)").
func (h *Host) enqueueIssue(c *Cmd) {
	h.mu.Lock()
	defer h.mu.Unlock()
	atHead := c.CDBLen > 0 && c.CDB[0] == OpRequestSense
	c.prev, c.next = nil, nil
	if h.issueHead == nil {
		h.issueHead, h.issueTail = c, c
		return
	}
	if atHead {
		c.next = h.issueHead
		h.issueHead.prev = c
		h.issueHead = c
		return
	}
	c.prev = h.issueTail
	h.issueTail.next = c
	h.issueTail = c
}

func (h *Host) spliceIssue(c *Cmd) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.prev != nil {
		c.prev.next = c.next
	} else if h.issueHead == c {
		h.issueHead = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else if h.issueTail == c {
		h.issueTail = c.prev
	}
	c.prev, c.next = nil, nil
}

func (h *Host) requeueIssueFront(c *Cmd) {
	h.spliceIssue(c)
	h.mu.Lock()
	c.prev = nil
	c.next = h.issueHead
	if h.issueHead != nil {
		h.issueHead.prev = c
	} else {
		h.issueTail = c
	}
	h.issueHead = c
	h.mu.Unlock()
}
