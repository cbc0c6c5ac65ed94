// scsi_timer.go - single SCSI timeout list (§4.4 "Timeouts")

package main

import "sync"

// timerEntry is one outstanding deadline. Entries are kept in the order
// they were scheduled, not sorted by deadlineMS.
type timerEntry struct {
	cmd        *Cmd
	deadlineMS int64
	seq        uint64
}

// ScsiTimer holds the deadlines of all outstanding commands in one list.
// The list is unordered and has no head pointer; Advance scans every entry.
type ScsiTimer struct {
	mu      sync.Mutex
	entries []*timerEntry
	seq     uint64
	nowMS   int64 // advanced explicitly by the caller (cooperative scheduler, no wall clock)
}

func NewScsiTimer() *ScsiTimer {
	return &ScsiTimer{}
}

// Schedule installs (or, via UpdateTimeout, rewrites) the deadline for cmd.
func (st *ScsiTimer) Schedule(cmd *Cmd, timeoutMS int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	e := &timerEntry{cmd: cmd, deadlineMS: st.nowMS + int64(timeoutMS), seq: st.seq}
	st.entries = append(st.entries, e)
	cmd.deadlineSet = true
	cmd.deadlineSeq = st.seq
}

// UpdateTimeout rewrites cmd's deadline in place, or appends a new entry if
// cmd has none. The list order is not changed.
func (st *ScsiTimer) UpdateTimeout(cmd *Cmd, newTimeoutMS int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, e := range st.entries {
		if e.cmd == cmd {
			e.deadlineMS = st.nowMS + int64(newTimeoutMS)
			return
		}
	}
	st.seq++
	st.entries = append(st.entries, &timerEntry{cmd: cmd, deadlineMS: st.nowMS + int64(newTimeoutMS), seq: st.seq})
}

// Cancel removes cmd's outstanding deadline, if any (completion before
// expiry).
func (st *ScsiTimer) Cancel(cmd *Cmd) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, e := range st.entries {
		if e.cmd == cmd {
			st.entries = append(st.entries[:i], st.entries[i+1:]...)
			return
		}
	}
}

// Advance moves the cooperative clock forward by deltaMS and returns every
// Cmd whose deadline has now passed, removing them from the list. The
// caller (scsi_main's event loop) feeds each into scsiTimesOut.
func (st *ScsiTimer) Advance(deltaMS int64) []*Cmd {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nowMS += deltaMS
	var fired []*Cmd
	remaining := st.entries[:0]
	for _, e := range st.entries {
		if e.deadlineMS <= st.nowMS {
			fired = append(fired, e.cmd)
		} else {
			remaining = append(remaining, e)
		}
	}
	st.entries = remaining
	return fired
}
