package main

import "testing"

func TestScreenBuffer_New(t *testing.T) {
	sb := NewScreenBuffer(80, 25)
	if sb.Cols() != 80 || sb.Rows() != 25 {
		t.Fatalf("expected 80x25, got %dx%d", sb.Cols(), sb.Rows())
	}
	for row := 0; row < 25; row++ {
		for col := 0; col < 80; col++ {
			if got := sb.GetCell(col, row); got != 0 {
				t.Fatalf("expected zero cell at (%d,%d), got %v", col, row, got)
			}
		}
	}
}

func TestScreenBuffer_SetGetCell(t *testing.T) {
	sb := NewScreenBuffer(80, 25)
	c := makeCell('A', 0x07)
	sb.SetCell(1, 2, c)
	if got := sb.GetCell(1, 2); got != c {
		t.Fatalf("expected %v, got %v", c, got)
	}
	if got := sb.GetCell(-1, 0); got != 0 {
		t.Fatalf("expected OOB get to be 0, got %v", got)
	}
	if got := sb.GetCell(0, 3000); got != 0 {
		t.Fatalf("expected OOB get to be 0, got %v", got)
	}
}

func TestScreenBuffer_CellCharAttr(t *testing.T) {
	c := makeCell(0x58, 0x07)
	if c.Char() != 0x58 {
		t.Fatalf("expected char 0x58, got %#x", c.Char())
	}
	if c.Attr() != 0x07 {
		t.Fatalf("expected attr 0x07, got %#x", c.Attr())
	}
}

func TestScreenBuffer_FillCells(t *testing.T) {
	sb := NewScreenBuffer(10, 5)
	erase := makeCell(' ', 0x07)
	sb.FillCells(0, 0, 10, erase)
	for col := 0; col < 10; col++ {
		if got := sb.GetCell(col, 0); got != erase {
			t.Fatalf("col %d: expected erase cell, got %v", col, got)
		}
	}
}

func TestScreenBuffer_ScrollUpRegion(t *testing.T) {
	sb := NewScreenBuffer(10, 5)
	for row := 0; row < 5; row++ {
		sb.SetCell(0, row, makeCell(byte('0'+row), 0))
	}
	erase := makeCell(' ', 0x07)
	sb.ScrollUpRegion(0, 5, erase)
	if got := sb.GetCell(0, 0).Char(); got != '1' {
		t.Fatalf("expected row 0 to hold old row 1 ('1'), got %q", got)
	}
	if got := sb.GetCell(0, 4); got != erase {
		t.Fatalf("expected last row erased, got %v", got)
	}
}

func TestScreenBuffer_ScrollDownRegion(t *testing.T) {
	sb := NewScreenBuffer(10, 5)
	for row := 0; row < 5; row++ {
		sb.SetCell(0, row, makeCell(byte('0'+row), 0))
	}
	erase := makeCell(' ', 0x07)
	sb.ScrollDownRegion(0, 5, erase)
	if got := sb.GetCell(0, 1).Char(); got != '0' {
		t.Fatalf("expected row 1 to hold old row 0 ('0'), got %q", got)
	}
	if got := sb.GetCell(0, 0); got != erase {
		t.Fatalf("expected first row erased, got %v", got)
	}
}

func TestScreenBuffer_ScrollRegionLimited(t *testing.T) {
	sb := NewScreenBuffer(10, 5)
	for row := 0; row < 5; row++ {
		sb.SetCell(0, row, makeCell(byte('0'+row), 0))
	}
	erase := makeCell(' ', 0x07)
	sb.ScrollUpRegion(1, 4, erase)
	if got := sb.GetCell(0, 0).Char(); got != '0' {
		t.Fatalf("row outside scroll region must be untouched, got %q", got)
	}
	if got := sb.GetCell(0, 4).Char(); got != '4' {
		t.Fatalf("row outside scroll region must be untouched, got %q", got)
	}
	if got := sb.GetCell(0, 1).Char(); got != '2' {
		t.Fatalf("expected row 1 to hold old row 2 ('2'), got %q", got)
	}
}

func TestScreenBuffer_SnapshotRestore(t *testing.T) {
	sb := NewScreenBuffer(4, 2)
	sb.SetCell(0, 0, makeCell('X', 1))
	snap := sb.Snapshot()
	sb.Clear(0)
	if got := sb.GetCell(0, 0); got != 0 {
		t.Fatalf("expected cleared cell, got %v", got)
	}
	sb.Restore(snap)
	if got := sb.GetCell(0, 0); got != makeCell('X', 1) {
		t.Fatalf("expected restored cell, got %v", got)
	}
}

func TestScreenBuffer_Clear(t *testing.T) {
	sb := NewScreenBuffer(4, 2)
	sb.Clear(makeCell(' ', 0x07))
	for _, c := range sb.cells {
		if c != makeCell(' ', 0x07) {
			t.Fatalf("expected all cells erased, got %v", c)
		}
	}
}

func TestScreenBuffer_ScrollbackOnFullScreenScroll(t *testing.T) {
	sb := NewScreenBuffer(4, 3)
	sb.SetCell(0, 0, makeCell('a', 0))
	sb.ScrollUpRegion(0, 3, makeCell(' ', 0))
	if sb.Viewing() {
		t.Fatalf("expected live view immediately after a scroll")
	}
	sb.Scrollback(1)
	if !sb.Viewing() {
		t.Fatalf("expected Scrollback to page into history")
	}
	if got := sb.ViewCell(0, 0).Char(); got != 'a' {
		t.Fatalf("expected scrolled-off row 'a' at the top of the view, got %q", got)
	}
	sb.Scrollfront(1)
	if sb.Viewing() {
		t.Fatalf("expected Scrollfront to return to the live screen")
	}
}

func TestScreenBuffer_ScrollUpRegionPartialDoesNotRecordHistory(t *testing.T) {
	sb := NewScreenBuffer(4, 5)
	sb.ScrollUpRegion(1, 4, makeCell(' ', 0))
	if sb.Scrollback(1) != 0 {
		t.Fatalf("expected no scrollback history from a bounded scroll region")
	}
}
