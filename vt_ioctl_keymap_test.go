package main

import "testing"

func newTestVCWithKeyboard(rows, cols int) (*VC, *Keyboard) {
	vts := NewVTSubsystem(rows, cols)
	kbd := NewKeyboard(vts)
	vts.kbd = kbd
	return vts.Console(0), kbd
}

// TestIoctl_KbEntryRoundTrip checks KDSKBENT followed by KDGKBENT returns
// the same key-map slot that was written.
func TestIoctl_KbEntryRoundTrip(t *testing.T) {
	vc, _ := newTestVCWithKeyboard(25, 80)

	entry := KbEntryArg{Table: 0, Index: 0x10, Value: KeyEntry{Type: KTLatin, Value: 'q'}}
	if _, handled, err := vc.ioctl(nil, KDSKBENT, entry); !handled || err != nil {
		t.Fatalf("KDSKBENT: handled=%v err=%v", handled, err)
	}

	got, handled, err := vc.ioctl(nil, KDGKBENT, KbEntryArg{Table: 0, Index: 0x10})
	if !handled || err != nil {
		t.Fatalf("KDGKBENT: handled=%v err=%v", handled, err)
	}
	result, ok := got.(KbEntryArg)
	if !ok || result.Value != entry.Value {
		t.Fatalf("expected round-tripped entry %+v, got %+v", entry.Value, got)
	}
}

// TestIoctl_KbEntryRejectsOutOfRangeType checks KDSKBENT rejects a value
// type outside the KeyType range (§6 "value's type must be in range").
func TestIoctl_KbEntryRejectsOutOfRangeType(t *testing.T) {
	vc, _ := newTestVCWithKeyboard(25, 80)
	bad := KbEntryArg{Table: 0, Index: 0, Value: KeyEntry{Type: KTLowercase + 1, Value: 'x'}}
	_, handled, err := vc.ioctl(nil, KDSKBENT, bad)
	if !handled || err == nil {
		t.Fatalf("expected KDSKBENT to reject out-of-range type, handled=%v err=%v", handled, err)
	}
}

// TestIoctl_KbSEntRoundTrip checks KDSKBSENT/KDGKBSENT round-trip a
// function-key string.
func TestIoctl_KbSEntRoundTrip(t *testing.T) {
	vc, _ := newTestVCWithKeyboard(25, 80)

	set := KbSEntArg{FuncNum: 1, Value: "\x1b[[B"}
	if _, handled, err := vc.ioctl(nil, KDSKBSENT, set); !handled || err != nil {
		t.Fatalf("KDSKBSENT: handled=%v err=%v", handled, err)
	}
	got, handled, err := vc.ioctl(nil, KDGKBSENT, KbSEntArg{FuncNum: 1})
	if !handled || err != nil {
		t.Fatalf("KDGKBSENT: handled=%v err=%v", handled, err)
	}
	result, ok := got.(KbSEntArg)
	if !ok || result.Value != set.Value {
		t.Fatalf("expected %q, got %+v", set.Value, got)
	}
}

// TestIoctl_KbSEntRejectsOverPoolSize checks KDSKBSENT refuses a string
// that would push the shared 2 KiB function-key pool over its bound.
func TestIoctl_KbSEntRejectsOverPoolSize(t *testing.T) {
	vc, _ := newTestVCWithKeyboard(25, 80)
	huge := KbSEntArg{FuncNum: 0, Value: string(make([]byte, functionKeyPoolSize+1))}
	_, handled, err := vc.ioctl(nil, KDSKBSENT, huge)
	if !handled || err == nil {
		t.Fatalf("expected KDSKBSENT to reject an over-pool string, handled=%v err=%v", handled, err)
	}
}

// TestIoctl_KbDiacrRoundTrip checks KDSKBDIACR replaces the accent table and
// that a subsequent dead-key composition observes the new table, while
// KDGKBDIACR reports it back.
func TestIoctl_KbDiacrRoundTrip(t *testing.T) {
	vc, kbd := newTestVCWithKeyboard(25, 80)

	entries := []KbDiacrEntry{{Diacr: '`', Base: 'z', Result: 0x99}}
	if _, handled, err := vc.ioctl(nil, KDSKBDIACR, entries); !handled || err != nil {
		t.Fatalf("KDSKBDIACR: handled=%v err=%v", handled, err)
	}

	if got := kbd.composeDeadKey('`', 'z'); got != 0x99 {
		t.Fatalf("expected composed 0x99 from the newly installed table, got %#x", got)
	}
	// An entry absent from the replacement table falls back to the base
	// character rather than the table it replaced.
	if got := kbd.composeDeadKey('`', 'a'); got != 'a' {
		t.Fatalf("expected fallback to base character, got %#x", got)
	}

	got, handled, err := vc.ioctl(nil, KDGKBDIACR, nil)
	if !handled || err != nil {
		t.Fatalf("KDGKBDIACR: handled=%v err=%v", handled, err)
	}
	result, ok := got.([]KbDiacrEntry)
	if !ok || len(result) != 1 || result[0] != entries[0] {
		t.Fatalf("expected %+v, got %+v", entries, got)
	}
}
