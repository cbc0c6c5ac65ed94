// scsi_main.go - host scheduler coroutine and selection (§4.4 "Host entry", "Selection / reselection", §9)

package main

// postBSYWindowMS is the "250 ms post-BSY window" governing target
// detection before a selection attempt is given up on (§4.4 "Selection /
// reselection"). Modeled here as the threshold a ScsiHostDriver's Command
// result must be judged against, not as a real elapsed-time wait, since
// this core has no hardware bus to wait on.
const postBSYWindowMS = 250

// runScheduler implements §4.4 "Host entry": while any host has work,
// iterate over hosts; for each idle host, walk its issue queue and start
// the first runnable command. mainRunning is the single re-entrancy flag
// (§5) that keeps the coroutine from being entered recursively — a caller
// that finds it already running simply returns, trusting the running
// instance to drain the queue it just added to.
func (s *ScsiCore) runScheduler() {
	s.mu.Lock()
	if s.mainRunning {
		s.mu.Unlock()
		return
	}
	s.mainRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.mainRunning = false
		s.mu.Unlock()
	}()

	for {
		progressed := false
		s.mu.Lock()
		hosts := s.listHosts()
		s.mu.Unlock()
		for _, h := range hosts {
			if s.stepHost(h) {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (s *ScsiCore) listHosts() []*Host {
	var out []*Host
	for h := s.hosts; h != nil; h = h.next {
		out = append(out, h)
	}
	return out
}

// stepHost walks h's issue queue and starts the first command whose
// (target,lun) isn't already busy (REQUEST SENSE ignores the busy bitmap,
// §4.4). Returns true if a command was started.
func (s *ScsiCore) stepHost(h *Host) bool {
	h.mu.Lock()
	var cand *Cmd
	for c := h.issueHead; c != nil; c = c.next {
		key := [2]int{c.TargetID, c.Lun}
		isSense := c.CDBLen > 0 && c.CDB[0] == OpRequestSense
		if isSense || !h.busyMap[key] {
			cand = c
			break
		}
	}
	h.mu.Unlock()
	if cand == nil {
		return false
	}

	h.spliceIssue(cand)
	ok := s.attemptSelection(h, cand)
	if !ok {
		// Reselection/selection failed: re-thread at the head for the
		// next scheduler pass (§4.4 "on failure re-thread the Cmd at the
		// head of the issue queue").
		h.requeueIssueFront(cand)
		return false
	}
	return true
}

// attemptSelection performs selection (§4.4 "Selection / reselection") and
// either dispatches the command asynchronously (driver has QueueCommand)
// or runs it inline via the synchronous Command entry point, feeding the
// result to scsiDone either way.
func (s *ScsiCore) attemptSelection(h *Host, c *Cmd) bool {
	key := [2]int{c.TargetID, c.Lun}

	c.mu.Lock()
	c.state = cmdSelecting
	c.mu.Unlock()

	if qc, ok := asyncDriver(h.Driver); ok {
		h.mu.Lock()
		if c.Tag == 0 {
			h.busyMap[key] = true
		}
		h.connected = c
		h.hostBusy++
		h.mu.Unlock()

		c.mu.Lock()
		c.state = cmdConnected
		c.mu.Unlock()

		err := qc.QueueCommand(c, func(cmd *Cmd) {
			s.onCompletion(h, cmd)
		})
		if err != nil {
			h.mu.Lock()
			delete(h.busyMap, key)
			h.connected = nil
			h.hostBusy--
			h.mu.Unlock()
			c.Result = ScsiResult{Host: DidBadTarget}
			s.onCompletion(h, c)
		}
		return true
	}

	h.mu.Lock()
	if c.Tag == 0 {
		h.busyMap[key] = true
	}
	h.connected = c
	h.hostBusy++
	h.mu.Unlock()

	c.mu.Lock()
	c.state = cmdConnected
	c.mu.Unlock()

	result := h.Driver.Command(c)
	c.Result = result
	s.onCompletion(h, c)
	return true
}

// asyncQueuer narrows ScsiHostDriver to just the async path; a driver
// declares "synchronous only" through syncOnlyMarker.
type asyncQueuer interface {
	QueueCommand(cmd *Cmd, done func(*Cmd)) error
}

func asyncDriver(d ScsiHostDriver) (asyncQueuer, bool) {
	if d == nil {
		return nil, false
	}
	// The interface always exposes QueueCommand, so a driver opts into the
	// synchronous-only path by implementing syncOnlyMarker with SyncOnly()
	// returning true; the probe below then routes it through Command.
	if p, ok := d.(syncOnlyMarker); ok && p.SyncOnly() {
		return nil, false
	}
	return d, true
}

// syncOnlyMarker lets a ScsiHostDriver declare it only supports the
// synchronous Command entry point (§3: "queuecommand ... OR synchronous
// command").
type syncOnlyMarker interface {
	SyncOnly() bool
}

// onCompletion releases the connected/busy bookkeeping and hands the
// result to scsiDone (§4.4 "Completion (scsi_done)").
func (s *ScsiCore) onCompletion(h *Host, c *Cmd) {
	key := [2]int{c.TargetID, c.Lun}
	h.mu.Lock()
	if h.connected == c {
		h.connected = nil
	}
	h.hostBusy--
	if c.Tag == 0 {
		delete(h.busyMap, key)
	}
	h.mu.Unlock()

	s.scsiDone(h, c)
}

// Abort implements §4.4 "Abort/reset" abort(cmd, code).
func (s *ScsiCore) Abort(h *Host, c *Cmd) ScsiResult {
	// Case 1: still on the issue queue (never selected).
	h.mu.Lock()
	onIssue := false
	for cur := h.issueHead; cur != nil; cur = cur.next {
		if cur == c {
			onIssue = true
			break
		}
	}
	connected := h.connected == c
	h.mu.Unlock()

	if onIssue {
		h.spliceIssue(c)
		c.Result = ScsiResult{Host: DidAbort}
		s.timer.Cancel(c)
		s.completeAndFree(c)
		return c.Result
	}

	if connected {
		// Case 2: currently connected — cannot abort mid-transfer.
		return ScsiResult{Host: DidError}
	}

	// Case 3: disconnected — reselect and send ABORT MESSAGE OUT.
	h.mu.Lock()
	_, disc := h.disconnected[[2]int{c.TargetID, c.Lun}]
	_, discTag := h.disconnTag[[3]int{c.TargetID, c.Lun, c.Tag}]
	h.mu.Unlock()
	if disc || discTag {
		res := h.Driver.Abort(c, DidAbort)
		h.mu.Lock()
		delete(h.disconnected, [2]int{c.TargetID, c.Lun})
		delete(h.disconnTag, [3]int{c.TargetID, c.Lun, c.Tag})
		h.mu.Unlock()
		s.timer.Cancel(c)
		c.Result = res
		s.completeAndFree(c)
		return res
	}

	// Case 4: nowhere to be found — assume it raced to completion.
	return ScsiResult{Host: DidOK}
}

// Reset implements §4.4 "Abort/reset" reset(cmd): pulses RST, records the
// reset time in h.lastReset, and marks the triggering Cmd NEEDS_JUMPSTART
// so its device is re-sensed before reuse. The scheduler does not read
// h.lastReset: commands are not held back after a reset.
func (s *ScsiCore) Reset(h *Host, c *Cmd) ScsiResult {
	res := h.Driver.Reset(c)
	h.mu.Lock()
	h.lastReset = s.timer.nowMSUnlocked()
	h.busyMap = make(map[[2]int]bool)
	h.mu.Unlock()
	if c != nil {
		c.mu.Lock()
		c.Flags |= FlagNeedsJumpstart | FlagWasReset
		c.mu.Unlock()
	}
	return res
}

func (st *ScsiTimer) nowMSUnlocked() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.nowMS
}

// completeAndFree invokes the command's Done callback and frees its slot
// back to the owning device.
func (s *ScsiCore) completeAndFree(c *Cmd) {
	done := c.Done
	dev := c.dev
	if done != nil {
		done(c)
	}
	if dev != nil {
		dev.freeSlot(c)
	}
}

// scsiTimesOut is the timer-firing escalator (§4.4 "Timeouts"): normal ->
// abort; in-abort -> reset; in-reset -> panic (modeled as a DriverSuggestion
// rather than a literal process-terminating panic, since panicking the
// whole process on a single command's reset failure is not appropriate in
// a reusable library — see DESIGN.md).
func (s *ScsiCore) scsiTimesOut(h *Host, c *Cmd) {
	c.mu.Lock()
	wasReset := c.Flags&FlagIsResetting != 0
	wasAborting := c.Flags&FlagWasTimedOut != 0
	c.Flags |= FlagWasTimedOut
	c.mu.Unlock()

	switch {
	case wasReset:
		c.Result = ScsiResult{Host: DidError, Driver: SuggestDie}
		s.completeAndFree(c)
	case wasAborting:
		c.mu.Lock()
		c.Flags |= FlagIsResetting
		c.mu.Unlock()
		s.Reset(h, c)
	default:
		s.Abort(h, c)
	}
}

// Tick advances the cooperative scheduler's clock and processes any
// commands whose timeout has fired (§5 "Scheduling model").
func (s *ScsiCore) Tick(deltaMS int64) {
	fired := s.timer.Advance(deltaMS)
	for _, c := range fired {
		if c.host != nil {
			s.scsiTimesOut(c.host, c)
		}
	}
	s.runScheduler()
}
