package main

import (
	"sync"
	"testing"
)

// fakeHostDriver is a synchronous-only ScsiHostDriver whose Command
// behavior is scripted per call, for exercising the mid-layer's retry and
// sense cascades deterministically.
type fakeHostDriver struct {
	mu       sync.Mutex
	calls    int
	scripted []func(c *Cmd) ScsiResult
	resets   int
	aborts   int
}

func (f *fakeHostDriver) Detect() error { return nil }
func (f *fakeHostDriver) Info() string  { return "fake" }

func (f *fakeHostDriver) QueueCommand(c *Cmd, done func(*Cmd)) error {
	return errUnsupportedAsync
}
func (f *fakeHostDriver) SyncOnly() bool { return true }

func (f *fakeHostDriver) Command(c *Cmd) ScsiResult {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	var script func(c *Cmd) ScsiResult
	if idx < len(f.scripted) {
		script = f.scripted[idx]
	}
	f.mu.Unlock()
	if script == nil {
		return ScsiResult{Host: DidOK, Status: StatusGood, Message: MsgCommandComplete}
	}
	return script(c)
}

func (f *fakeHostDriver) Abort(c *Cmd, code HostError) ScsiResult {
	f.mu.Lock()
	f.aborts++
	f.mu.Unlock()
	return ScsiResult{Host: DidAbort}
}

func (f *fakeHostDriver) Reset(c *Cmd) ScsiResult {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return ScsiResult{Host: DidOK}
}

func (f *fakeHostDriver) CanQueue() int        { return 8 }
func (f *fakeHostDriver) ThisID() int          { return 7 }
func (f *fakeHostDriver) SGTableSize() int     { return 32 }
func (f *fakeHostDriver) CmdPerLun() int       { return 4 }
func (f *fakeHostDriver) UncheckedISADMA() bool { return false }

var errUnsupportedAsync = &KernelError{Operation: "QueueCommand", Details: "synchronous only driver"}

func newFakeSetup(driver *fakeHostDriver, removable bool) (*ScsiCore, *Host, *Dev) {
	s := NewScsiCore()
	h := s.AddHost("fake0", driver)
	d := h.AddDevice(0, 0, DevConfig{
		Type:            0,
		Removable:       removable,
		Writeable:       true,
		RandomAccess:    true,
		TaggedSupported: true,
		Disconnect:      true,
	})
	return s, h, d
}

// TestScsi_BusyRetrySucceeds mirrors the busy-retry scenario: two BSY
// failures followed by success, completing DID_OK/GOOD within the default
// retry allowance.
func TestScsi_BusyRetrySucceeds(t *testing.T) {
	driver := &fakeHostDriver{
		scripted: []func(c *Cmd) ScsiResult{
			func(c *Cmd) ScsiResult { return ScsiResult{Host: DidOK, Status: StatusBusy} },
			func(c *Cmd) ScsiResult { return ScsiResult{Host: DidOK, Status: StatusBusy} },
			func(c *Cmd) ScsiResult {
				return ScsiResult{Host: DidOK, Status: StatusGood, Message: MsgCommandComplete}
			},
		},
	}
	s, h, d := newFakeSetup(driver, false)

	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	c, err := s.Execute(h, d, cdb, nil, false, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !c.Result.OK() {
		t.Fatalf("expected eventual success, got %+v", c.Result)
	}
	if driver.calls != 3 {
		t.Fatalf("expected 3 driver calls, got %d", driver.calls)
	}
	if defaultRetryAllowance < 3 {
		t.Fatalf("default retry allowance must be at least 3")
	}
}

// TestScsi_SenseCascadeUnitAttention mirrors the sense cascade scenario: a
// READ on a removable device returns CHECK_CONDITION with no sense; the
// mid-layer's internal REQUEST SENSE reveals UNIT_ATTENTION; the device's
// Changed flag is set and the original command completes DID_OK.
func TestScsi_SenseCascadeUnitAttention(t *testing.T) {
	driver := &fakeHostDriver{
		scripted: []func(c *Cmd) ScsiResult{
			func(c *Cmd) ScsiResult {
				return ScsiResult{Host: DidOK, Status: StatusCheckCondition}
			},
			func(c *Cmd) ScsiResult {
				c.Sense[2] = byte(SenseUnitAttention)
				return ScsiResult{Host: DidOK, Status: StatusGood, Message: MsgCommandComplete}
			},
		},
	}
	s, h, d := newFakeSetup(driver, true)

	cdb := []byte{OpRead6, 0, 0, 0, 1, 0}
	buf := make([]byte, sectorSize)
	c, err := s.Execute(h, d, cdb, buf, false, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !c.Result.OK() {
		t.Fatalf("expected DID_OK after sense cascade, got %+v", c.Result)
	}
	if !d.Changed {
		t.Fatalf("expected device Changed to be set by UNIT_ATTENTION")
	}
	if driver.calls != 2 {
		t.Fatalf("expected original command plus one REQUEST SENSE call, got %d", driver.calls)
	}
}

// TestScsi_RetryExhaustionAborts checks that a command failing BUSY forever
// eventually aborts once its allowance is exhausted, rather than retrying
// indefinitely.
func TestScsi_RetryExhaustionAborts(t *testing.T) {
	driver := &fakeHostDriver{}
	alwaysBusy := func(c *Cmd) ScsiResult { return ScsiResult{Host: DidOK, Status: StatusBusy} }
	for i := 0; i < defaultRetryAllowance+2; i++ {
		driver.scripted = append(driver.scripted, alwaysBusy)
	}
	s, h, d := newFakeSetup(driver, false)

	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	c, err := s.Execute(h, d, cdb, nil, false, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if c.Result.OK() {
		t.Fatalf("expected eventual abort, got success")
	}
	if c.Result.Driver != SuggestAbort {
		t.Fatalf("expected SuggestAbort, got %v", c.Result.Driver)
	}
	if driver.calls > defaultRetryAllowance+1 {
		t.Fatalf("expected the mid-layer to stop retrying at the allowance, got %d calls", driver.calls)
	}
}

// TestScsi_NoConcurrentConnection checks the single-connected-Cmd-per-host
// invariant holds when two commands are queued back to back on a
// synchronous-only driver (no overlap is possible since Command blocks).
func TestScsi_NoConcurrentConnection(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, false)

	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	for i := 0; i < 3; i++ {
		if _, err := s.Execute(h, d, cdb, nil, false, nil); err != nil {
			t.Fatalf("Execute %d returned error: %v", i, err)
		}
	}
	h.mu.Lock()
	connected := h.connected
	h.mu.Unlock()
	if connected != nil {
		t.Fatalf("expected no connected Cmd after all commands complete")
	}
}

// TestDMAPool_PopcountInvariant checks the free-sector accounting matches
// the popcount-complement invariant across allocate/free cycles.
func TestDMAPool_PopcountInvariant(t *testing.T) {
	pool := NewDMAPool(1)
	total := sectorsPerPage
	if got := pool.FreeSectors(); got != total {
		t.Fatalf("expected %d free sectors initially, got %d", total, got)
	}
	a1, ok := pool.AllocSectors(4)
	if !ok {
		t.Fatalf("expected alloc of 4 to succeed")
	}
	if got := pool.FreeSectors(); got != total-4 {
		t.Fatalf("expected %d free sectors after alloc, got %d", total-4, got)
	}
	a2, ok := pool.AllocSectors(8)
	if !ok {
		t.Fatalf("expected alloc of 8 to succeed")
	}
	if got := pool.FreeSectors(); got != total-12 {
		t.Fatalf("expected %d free sectors, got %d", total-12, got)
	}
	pool.FreeAlloc(a1)
	pool.FreeAlloc(a2)
	if got := pool.FreeSectors(); got != total {
		t.Fatalf("expected all sectors free again, got %d", got)
	}
}

// TestDMAPool_RejectsNonPow2 checks allocation requests that aren't valid
// power-of-two sizes are rejected outright.
func TestDMAPool_RejectsNonPow2(t *testing.T) {
	pool := NewDMAPool(1)
	if _, ok := pool.AllocSectors(3); ok {
		t.Fatalf("expected non-power-of-two allocation to fail")
	}
	if _, ok := pool.AllocSectors(32); ok {
		t.Fatalf("expected an allocation larger than one page to fail")
	}
}

// TestScsi_BusyBitmapUntaggedOnly checks that the untagged busy bitmap
// guards (target,lun) while a command is connected, via a driver that
// reports back into the bitmap state mid-Command.
func TestScsi_BusyBitmapUntaggedOnly(t *testing.T) {
	var sawBusy bool
	var hRef *Host
	driver := &fakeHostDriver{}
	driver.scripted = []func(c *Cmd) ScsiResult{
		func(c *Cmd) ScsiResult {
			hRef.mu.Lock()
			sawBusy = hRef.busyMap[[2]int{c.TargetID, c.Lun}]
			hRef.mu.Unlock()
			return ScsiResult{Host: DidOK, Status: StatusGood, Message: MsgCommandComplete}
		},
	}
	s, h, d := newFakeSetup(driver, false)
	hRef = h

	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	if _, err := s.Execute(h, d, cdb, nil, false, nil); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !sawBusy {
		t.Fatalf("expected busyMap to be set for an untagged in-flight command")
	}
	h.mu.Lock()
	stillBusy := h.busyMap[[2]int{0, 0}]
	h.mu.Unlock()
	if stillBusy {
		t.Fatalf("expected busyMap to be cleared after completion")
	}
}
