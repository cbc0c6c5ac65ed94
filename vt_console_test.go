package main

import "testing"

// TestVT_SwitchToDeadProcessReverts mirrors spec scenario 6 ("Console
// switching to dead process"): the foreground VC is process-managed with a
// pid that no longer has a registered handler (equivalent to the process
// having exited). Activating a different VC discovers the handler is gone
// (IsOrphaned), reverts the outgoing VC to VT_AUTO, and completes the
// switch rather than blocking on an acknowledgement that will never come.
func TestVT_SwitchToDeadProcessReverts(t *testing.T) {
	vts := NewVTSubsystem(25, 80)
	signaler := NewProcessSignaler()
	vts.signaler = signaler
	kbd := NewKeyboard(vts)
	vts.kbd = kbd

	outgoing := vts.Console(0)
	outgoing.mu.Lock()
	outgoing.vtMode = VTProcess
	outgoing.vtPid = 42 // never registered: looks exited to IsOrphaned
	outgoing.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		vts.WaitActive(1, nil)
		close(waitDone)
	}()

	vts.Activate(1)

	outgoing.mu.Lock()
	mode := outgoing.vtMode
	outgoing.mu.Unlock()
	if mode != VTAuto {
		t.Fatalf("expected outgoing VC reverted to VT_AUTO, got %v", mode)
	}
	if vts.Foreground().num != 1 {
		t.Fatalf("expected switch to VC 1, foreground is %d", vts.Foreground().num)
	}
	if kbd.mode != KBXlate {
		t.Fatalf("expected keyboard mode reverted to XLATE")
	}

	select {
	case <-waitDone:
	default:
		t.Fatalf("expected VT_WAITACTIVE waiter for n=1 to have been woken")
	}
}

// TestVT_SwitchProcessManagedWaitsForAck checks that activating away from a
// live process-managed VC does not switch immediately: it must wait for the
// VT_RELDISP acknowledgement.
func TestVT_SwitchProcessManagedWaitsForAck(t *testing.T) {
	vts := NewVTSubsystem(25, 80)
	signaler := NewProcessSignaler()
	vts.signaler = signaler

	outgoing := vts.Console(0)
	outgoing.mu.Lock()
	outgoing.vtMode = VTProcess
	outgoing.vtPid = 7
	outgoing.mu.Unlock()
	signaler.Register(7, func(Signal) {}) // process alive: not orphaned

	vts.Activate(1)

	if vts.Foreground().num != 0 {
		t.Fatalf("expected switch to be deferred, foreground is %d", vts.Foreground().num)
	}

	vts.ReleaseDisplay(0, 1) // VT_RELDISP with nonzero arg completes the switch
	if vts.Foreground().num != 1 {
		t.Fatalf("expected switch to complete after VT_RELDISP ack, foreground is %d", vts.Foreground().num)
	}
}

// TestVT_SwitchProcessManagedAbortOnZero checks VT_RELDISP with arg 0 aborts
// the pending switch rather than completing it.
func TestVT_SwitchProcessManagedAbortOnZero(t *testing.T) {
	vts := NewVTSubsystem(25, 80)
	signaler := NewProcessSignaler()
	vts.signaler = signaler

	outgoing := vts.Console(0)
	outgoing.mu.Lock()
	outgoing.vtMode = VTProcess
	outgoing.vtPid = 7
	outgoing.mu.Unlock()
	signaler.Register(7, func(Signal) {})

	vts.Activate(1)
	vts.ReleaseDisplay(0, 0)

	if vts.Foreground().num != 0 {
		t.Fatalf("expected switch aborted, foreground is %d", vts.Foreground().num)
	}
}
