// scsi_done.go - completion classification and the request-sense cascade (§4.4 "Completion", "Sense behavior (AUTOSENSE)")

package main

// scsiDone classifies the (host, message, status, driver-suggestion)
// quadruple and decides success, retry, sense-fetch, or abort (§4.4
// "Completion (scsi_done)").
func (s *ScsiCore) scsiDone(h *Host, c *Cmd) {
	s.timer.Cancel(c)
	r := c.Result

	c.mu.Lock()
	fetchingSense := c.Flags&FlagAskedForSense != 0 && c.Flags&FlagWasSense == 0
	c.mu.Unlock()
	if fetchingSense {
		if r.Host == DidOK && r.Status != StatusCheckCondition {
			s.onSenseFetched(h, c)
		} else {
			// REQUEST SENSE itself failed: give up rather than loop.
			s.completeFail(c, SuggestAbort)
		}
		return
	}

	switch {
	case r.Host == DidOK && (r.Status == StatusGood || r.Status == StatusIntermediate || r.Status == StatusConditionMet):
		s.completeOK(c)

	case r.Host == DidOK && r.Status == StatusBusy:
		s.retry(h, c)

	case r.Host == DidOK && r.Status == StatusReservationConflict:
		s.Reset(h, c)
		s.retry(h, c)

	case r.Host == DidOK && r.Status == StatusCheckCondition:
		s.handleCheckCondition(h, c)

	case r.Host == DidReset && r.Status == StatusCheckCondition:
		s.handleCheckCondition(h, c)

	case r.Host == DidTimeOut:
		c.mu.Lock()
		already := c.Flags&FlagWasTimedOut != 0
		c.Flags |= FlagWasTimedOut
		c.mu.Unlock()
		if already {
			s.completeFail(c, SuggestAbort)
		} else {
			s.retry(h, c)
		}

	case r.Host == DidBusBusy || r.Host == DidParity:
		s.retry(h, c)

	default:
		s.completeFail(c, SuggestAbort)
	}
}

func (s *ScsiCore) completeOK(c *Cmd) {
	c.Result = ScsiResult{Host: DidOK, Message: MsgCommandComplete, Status: StatusGood}
	s.completeAndFree(c)
}

func (s *ScsiCore) completeFail(c *Cmd, suggestion DriverSuggestion) {
	c.Result.Driver = suggestion
	s.completeAndFree(c)
}

// retry resubmits c, honoring the allowance and the "half allowance forces
// a bus reset before the next attempt" rule (§4.4 "Completion").
func (s *ScsiCore) retry(h *Host, c *Cmd) {
	c.mu.Lock()
	c.Retries++
	exhausted := c.Retries >= c.Allowed
	halfway := c.Allowed > 0 && c.Retries == c.Allowed/2
	c.restoreFromSnapshot()
	c.Flags &^= FlagWasSense | FlagAskedForSense
	c.mu.Unlock()

	if exhausted {
		c.Result.Driver = SuggestAbort
		s.completeAndFree(c)
		return
	}
	if halfway {
		s.Reset(h, nil)
	}
	h.enqueueIssue(c)
	s.timer.Schedule(c, c.TimeoutMS)
	s.runScheduler()
}

// handleCheckCondition drives the AUTOSENSE cascade: fetch sense if it
// isn't already populated, then classify by key (§4.4 "Sense behavior").
func (s *ScsiCore) handleCheckCondition(h *Host, c *Cmd) {
	c.mu.Lock()
	haveSense := c.Flags&FlagWasSense != 0
	askedAlready := c.Flags&FlagAskedForSense != 0
	c.mu.Unlock()

	if haveSense {
		s.classifySense(h, c)
		return
	}
	if askedAlready {
		// Sense itself failed: ASKED_FOR_SENSE prevents an infinite loop
		// (§4.4).
		s.completeFail(c, SuggestAbort)
		return
	}
	s.issueRequestSense(h, c)
}

// issueRequestSense repurposes c's slot to run REQUEST SENSE in place
// (§4.4: "a REQUEST SENSE command is built ... and placed at the head of
// the issue queue, inheriting the original command's device"). The
// original CDB/buffer were already snapshotted at submission time and are
// restored from that snapshot when the command is retried.
func (s *ScsiCore) issueRequestSense(h *Host, c *Cmd) {
	c.mu.Lock()
	c.CDB = [12]byte{}
	c.CDB[0] = OpRequestSense
	c.CDB[4] = byte(len(c.Sense))
	c.CDBLen = 6
	c.buffer = c.Sense[:]
	c.Flags |= FlagAskedForSense
	c.Tag = 0 // REQUEST SENSE is always untagged (§4.4)
	c.mu.Unlock()

	h.enqueueIssue(c)
	s.timer.Schedule(c, c.TimeoutMS)
	s.runScheduler()
}

// onSenseFetched is invoked by scsiDone's caller once a REQUEST SENSE
// sub-command (AskedForSense, not yet WasSense) completes successfully; it
// marks the sense buffer valid and reclassifies the original command.
func (s *ScsiCore) onSenseFetched(h *Host, c *Cmd) {
	c.mu.Lock()
	c.Flags |= FlagWasSense
	c.mu.Unlock()
	s.handleCheckCondition(h, c)
}

// classifySense dispatches by sense key (§4.4 "Completion" sense bullet).
func (s *ScsiCore) classifySense(h *Host, c *Cmd) {
	key := SenseKey(c.Sense[2] & 0x0f)
	switch key {
	case SenseNoSense, SenseRecoveredError:
		s.completeOK(c)

	case SenseUnitAttention:
		if c.dev != nil {
			c.dev.mu.Lock()
			removable := c.dev.Removable
			c.dev.Changed = true
			c.dev.mu.Unlock()
			if removable {
				s.completeOK(c)
				return
			}
		}
		s.retry(h, c)

	case SenseNotReady:
		s.completeFail(c, SuggestAbort)

	case SenseMediumError:
		c.mu.Lock()
		exhausted := c.Retries >= c.Allowed
		c.mu.Unlock()
		if exhausted {
			s.completeFail(c, SuggestRemap)
			return
		}
		s.retry(h, c)

	case SenseIllegalRequest:
		s.collapseTo6Byte(h, c)

	case SenseAbortedCommand:
		s.retry(h, c)

	default:
		s.completeFail(c, SuggestAbort)
	}
}

// collapseTo6Byte implements §4.4's "try collapsing a 10-byte command to
// 6-byte form once" for ILLEGAL_REQUEST.
func (s *ScsiCore) collapseTo6Byte(h *Host, c *Cmd) {
	// collapseCDB only matches a 10-byte CDB, so once the swap below has
	// happened a second ILLEGAL_REQUEST naturally falls through to abort.
	c.mu.Lock()
	collapsed, ok := collapseCDB(c.dataCmnd[:c.dataCmndLen])
	c.mu.Unlock()
	if !ok {
		s.completeFail(c, SuggestAbort)
		return
	}
	c.mu.Lock()
	copy(c.dataCmnd[:], collapsed)
	c.dataCmndLen = len(collapsed)
	c.mu.Unlock()
	s.retry(h, c)
}

// collapseCDB maps a 10-byte READ/WRITE into its 6-byte equivalent when
// the block address and length both fit (§4.4).
func collapseCDB(cdb []byte) ([]byte, bool) {
	if len(cdb) != 10 {
		return nil, false
	}
	var op byte
	switch cdb[0] {
	case OpRead10:
		op = OpRead6
	case OpWrite10:
		op = OpWrite6
	default:
		return nil, false
	}
	lba := uint32(cdb[2])<<24 | uint32(cdb[3])<<16 | uint32(cdb[4])<<8 | uint32(cdb[5])
	count := uint16(cdb[7])<<8 | uint16(cdb[8])
	if lba > 0x1fffff || count > 0xff {
		return nil, false
	}
	out := make([]byte, 6)
	out[0] = op
	out[1] = byte(lba >> 16 & 0x1f)
	out[2] = byte(lba >> 8)
	out[3] = byte(lba)
	out[4] = byte(count)
	return out, true
}
