package main

import "testing"

func newTestVC(rows, cols int) *VC {
	vts := NewVTSubsystem(rows, cols)
	return vts.Console(0)
}

// TestVT_CursorPositioning mirrors spec scenario 2: on an 80x25 screen,
// "ESC [ 2 J ESC [ 5 ; 10 H X" leaves byte 0x58 at (row 4, col 9) 0-indexed
// and the cursor at (10, 4) (i.e. one past X, per normal character advance).
func TestVT_CursorPositioning(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.Write([]byte("\x1b[2J\x1b[5;10HX"))

	cell := vc.screen().GetCell(9, 4)
	if cell.Char() != 0x58 {
		t.Fatalf("expected 0x58 at (9,4), got %#x", cell.Char())
	}
	if vc.cursorX != 10 || vc.cursorY != 4 {
		t.Fatalf("expected cursor at (10,4), got (%d,%d)", vc.cursorX, vc.cursorY)
	}
}

// TestVT_EraseDisplayHomeRoundTrip mirrors the VT emulator round-trip law:
// "ESC [ 2 J ESC [ H" leaves a screen of erase-characters with cursor at
// (0,0) and need_wrap cleared.
func TestVT_EraseDisplayHomeRoundTrip(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.Write([]byte("hello"))
	vc.needWrap = true

	vc.Write([]byte("\x1b[2J\x1b[H"))

	if vc.cursorX != 0 || vc.cursorY != 0 {
		t.Fatalf("expected cursor at (0,0), got (%d,%d)", vc.cursorX, vc.cursorY)
	}
	if vc.needWrap {
		t.Fatalf("expected need_wrap cleared")
	}
	erase := vc.eraseCell()
	for y := 0; y < vc.rows; y++ {
		for x := 0; x < vc.cols; x++ {
			if got := vc.screen().GetCell(x, y); got != erase {
				t.Fatalf("cell (%d,%d) = %v, want erase cell %v", x, y, got, erase)
			}
		}
	}
}

// TestVT_SGRReverseVideo checks CSI 7 m sets Reverse and CSI 0 m resets it.
func TestVT_SGRReverseVideo(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.Write([]byte("\x1b[7m"))
	if !vc.attrs.Reverse {
		t.Fatalf("expected reverse set after CSI 7 m")
	}
	vc.Write([]byte("\x1b[0m"))
	if vc.attrs.Reverse {
		t.Fatalf("expected reverse cleared after CSI 0 m")
	}
}

// TestVT_ScrollRegionLineFeed checks that LF at the bottom of a restricted
// scroll region shifts only the region, not rows outside it.
func TestVT_ScrollRegionLineFeed(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.Write([]byte("\x1b[2J"))
	vc.Write([]byte("\x1b[5;10r")) // region rows 5..10 (1-indexed, inclusive)

	sentinel := makeCell('S', vc.attrs.computeByte(vc.screenMode))
	vc.screen().SetCell(0, 3, sentinel) // outside the scroll region

	vc.setCursorPos(0, vc.scrollBottom-1)
	vc.Write([]byte("\n"))

	if got := vc.screen().GetCell(0, 3); got != sentinel {
		t.Fatalf("row outside scroll region was disturbed: got %v", got)
	}
}

// TestVT_TabStopAdvance checks HT advances to the next default (every 8
// columns) tab stop.
func TestVT_TabStopAdvance(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.cursorX = 3
	vc.Write([]byte("\t"))
	if vc.cursorX != 8 {
		t.Fatalf("expected tab to land on column 8, got %d", vc.cursorX)
	}
}

// TestVT_CharsetGraphicsTranslation checks SO/SI toggle between G0 (Latin-1)
// and G1 (line-drawing) translation tables.
func TestVT_CharsetGraphicsTranslation(t *testing.T) {
	vc := newTestVC(25, 80)
	vc.Write([]byte("\x0e")) // SO: select G1
	if vc.activeG != 1 {
		t.Fatalf("expected G1 active after SO")
	}
	vc.Write([]byte("\x0f")) // SI: select G0
	if vc.activeG != 0 {
		t.Fatalf("expected G0 active after SI")
	}
}
