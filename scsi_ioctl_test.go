package main

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestScsi_MediaChangeGateBlocksIO checks that a removable device with its
// Changed bit set refuses ordinary I/O immediately, without ever reaching
// the host driver, per sd.c's request-time gate.
func TestScsi_MediaChangeGateBlocksIO(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, true)

	d.mu.Lock()
	d.Changed = true
	d.mu.Unlock()

	cdb := []byte{OpRead6, 0, 0, 0, 1, 0}
	c, err := s.Execute(h, d, cdb, make([]byte, sectorSize), false, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if c.Result.Host != DidNoMedium {
		t.Fatalf("expected DidNoMedium, got %+v", c.Result)
	}
	if driver.calls != 0 {
		t.Fatalf("expected the host driver to never be reached, got %d calls", driver.calls)
	}
	if got := errnoFromScsi(c.Result); got != unix.ENOMEDIUM {
		t.Fatalf("expected ENOMEDIUM, got %v", got)
	}
}

// TestScsi_MediaChangeGateExemptsHousekeeping checks TEST UNIT READY still
// reaches the driver even while Changed is set, since that's how the bit
// gets diagnosed and cleared.
func TestScsi_MediaChangeGateExemptsHousekeeping(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, true)

	d.mu.Lock()
	d.Changed = true
	d.mu.Unlock()

	cdb := []byte{OpTestUnitReady, 0, 0, 0, 0, 0}
	c, err := s.Execute(h, d, cdb, nil, false, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !c.Result.OK() {
		t.Fatalf("expected TEST UNIT READY to succeed, got %+v", c.Result)
	}
	if driver.calls != 1 {
		t.Fatalf("expected the housekeeping command to reach the driver, got %d calls", driver.calls)
	}
}

// TestScsi_CheckMediaChangeClearsBit mirrors sd.c's
// check_scsidisk_media_change: a successful TEST UNIT READY reports and
// clears the existing Changed bit.
func TestScsi_CheckMediaChangeClearsBit(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, true)
	d.mu.Lock()
	d.Changed = true
	d.mu.Unlock()

	changed, err := CheckMediaChange(s, h, d, false, nil)
	if err != nil {
		t.Fatalf("CheckMediaChange returned error: %v", err)
	}
	if !changed {
		t.Fatalf("expected CheckMediaChange to report the prior Changed value")
	}
	d.mu.Lock()
	still := d.Changed
	d.mu.Unlock()
	if still {
		t.Fatalf("expected Changed to be cleared after a non-peeking check")
	}
}

// TestScsi_CheckMediaChangeForcesOnFailure mirrors sd.c: a failing TEST
// UNIT READY forces Changed=1 and reports true, since the medium is
// presumed absent.
func TestScsi_CheckMediaChangeForcesOnFailure(t *testing.T) {
	driver := &fakeHostDriver{
		scripted: []func(c *Cmd) ScsiResult{
			func(c *Cmd) ScsiResult { return ScsiResult{Host: DidError} },
		},
	}
	s, h, d := newFakeSetup(driver, true)

	changed, err := CheckMediaChange(s, h, d, false, nil)
	if err != nil {
		t.Fatalf("CheckMediaChange returned error: %v", err)
	}
	if !changed {
		t.Fatalf("expected CheckMediaChange to report true on failure")
	}
	d.mu.Lock()
	got := d.Changed
	d.mu.Unlock()
	if !got {
		t.Fatalf("expected Changed forced true after a failing TEST UNIT READY")
	}
}

// TestScsi_OpenCloseDoorLock checks Dev.Open door-locks on the first
// opener and Dev.Release unlocks on the last, mirroring sd_open/sd_release.
func TestScsi_OpenCloseDoorLock(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, true)
	d.Lockable = true

	if err := d.Open(s, h, nil); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	d.mu.Lock()
	count := d.AccessCount
	d.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected AccessCount 1 after first open, got %d", count)
	}

	if err := d.Open(s, h, nil); err != nil {
		t.Fatalf("second Open returned error: %v", err)
	}
	if err := d.Release(s, h, nil); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := d.Release(s, h, nil); err != nil {
		t.Fatalf("final Release returned error: %v", err)
	}
	d.mu.Lock()
	count = d.AccessCount
	d.mu.Unlock()
	if count != 0 {
		t.Fatalf("expected AccessCount 0 after matching releases, got %d", count)
	}
}

// TestScsi_OpenRevalidateHook checks that Open fires RevalidateHook when it
// discovers the medium actually changed, the notification point an
// external filesystem layer would use to drop stale cached directory
// entries for this device (sd.c's revalidate_scsidisk invalidate_inodes/
// invalidate_buffers chain, which is what ext2's dcache in
// fs/ext2/namei.c ultimately reacts to).
func TestScsi_OpenRevalidateHook(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newFakeSetup(driver, true)
	d.mu.Lock()
	d.Changed = true
	d.mu.Unlock()

	fired := false
	d.RevalidateHook = func(dev *Dev) { fired = true }

	if err := d.Open(s, h, nil); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if !fired {
		t.Fatalf("expected RevalidateHook to fire after a detected media change")
	}
}

func newTapeSetup(driver *fakeHostDriver) (*ScsiCore, *Host, *Dev) {
	s := NewScsiCore()
	h := s.AddHost("tape0", driver)
	d := h.AddDevice(0, 0, DevConfig{Type: DevTypeTape, Writeable: true})
	return s, h, d
}

// TestScsi_MTEomAndErase exercise the previously-missing MTEOM/MTERASE
// MTIOCTOP sub-commands (st.c st_int_ioctl).
func TestScsi_MTEomAndErase(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newTapeSetup(driver)

	if _, err := DeviceIoctl(s, h, d, MTIOCTOP, MTOp{Op: MtEom}, nil); err != nil {
		t.Fatalf("MTEOM returned error: %v", err)
	}
	if _, err := DeviceIoctl(s, h, d, MTIOCTOP, MTOp{Op: MtErase}, nil); err != nil {
		t.Fatalf("MTERASE returned error: %v", err)
	}

	d.WriteProt = true
	if _, err := DeviceIoctl(s, h, d, MTIOCTOP, MTOp{Op: MtErase}, nil); err == nil {
		t.Fatalf("expected MTERASE to be refused on a write-protected drive")
	}
}

// TestScsi_MTSetBlkRoundTrip checks MTSETBLK updates Dev.BlockSize only
// after the MODE SELECT completes successfully.
func TestScsi_MTSetBlkRoundTrip(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newTapeSetup(driver)

	if _, err := DeviceIoctl(s, h, d, MTIOCTOP, MTOp{Op: MtSetBlk, Count: 512}, nil); err != nil {
		t.Fatalf("MTSETBLK returned error: %v", err)
	}
	if d.BlockSize != 512 {
		t.Fatalf("expected BlockSize 512, got %d", d.BlockSize)
	}
}

func newCDROMSetup(driver *fakeHostDriver) (*ScsiCore, *Host, *Dev) {
	s := NewScsiCore()
	h := s.AddHost("cdrom0", driver)
	d := h.AddDevice(0, 0, DevConfig{Type: DevTypeCDROM, Removable: true, Lockable: true})
	return s, h, d
}

// TestScsi_CDROMEjectSetsChanged mirrors sr_ioctl.c's CDROMEJECT: a
// successful eject marks the device Changed so the next open revalidates.
func TestScsi_CDROMEjectSetsChanged(t *testing.T) {
	driver := &fakeHostDriver{}
	s, h, d := newCDROMSetup(driver)

	if _, err := DeviceIoctl(s, h, d, CDROMEject, nil, nil); err != nil {
		t.Fatalf("CDROMEJECT returned error: %v", err)
	}
	d.mu.Lock()
	changed := d.Changed
	d.mu.Unlock()
	if !changed {
		t.Fatalf("expected Changed to be set after a successful eject")
	}
}

// TestScsi_CDROMReadTOCHdr checks the TOC header reply is parsed from the
// reply buffer the way sr_ioctl.c's CDROMREADTOCHDR does.
func TestScsi_CDROMReadTOCHdr(t *testing.T) {
	driver := &fakeHostDriver{
		scripted: []func(c *Cmd) ScsiResult{
			func(c *Cmd) ScsiResult {
				c.buffer[2] = 1
				c.buffer[3] = 9
				return ScsiResult{Host: DidOK, Status: StatusGood, Message: MsgCommandComplete}
			},
		},
	}
	s, h, d := newCDROMSetup(driver)

	got, err := DeviceIoctl(s, h, d, CDROMReadTOCHdr, nil, nil)
	if err != nil {
		t.Fatalf("CDROMREADTOCHDR returned error: %v", err)
	}
	hdr, ok := got.(TOCHeader)
	if !ok {
		t.Fatalf("expected a TOCHeader reply, got %T", got)
	}
	if hdr.FirstTrack != 1 || hdr.LastTrack != 9 {
		t.Fatalf("expected tracks 1..9, got %+v", hdr)
	}
}
