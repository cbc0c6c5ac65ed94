// vt_selection.go - VT selection and host clipboard bridge (§4.2
// "Selection": character/word/line region selection with copy-to-clipboard
// and a paste path back into the TTY). Grounded on the same "bridge
// emulated I/O to a host OS service" shape video_backend_ebiten.go already
// uses for paste (clipboard.Init/clipboard.Read).

package main

// SelectionMode distinguishes how a selected region is extended or
// widened when extracted.
type SelectionMode int

const (
	SelectionChar SelectionMode = iota
	SelectionWord
	SelectionLine
)

// Selection is one virtual console's in-progress or most recently
// completed selection region, in screen (col,row) coordinates.
type Selection struct {
	active bool
	mode   SelectionMode
	startX, startY int
	endX, endY     int
}

// StartSelection begins a new selection anchored at (x,y).
func (vc *VC) StartSelection(x, y int, mode SelectionMode) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.selection = Selection{active: true, mode: mode, startX: x, startY: y, endX: x, endY: y}
}

// ExtendSelection moves the selection's live end to (x,y).
func (vc *VC) ExtendSelection(x, y int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if !vc.selection.active {
		return
	}
	vc.selection.endX, vc.selection.endY = x, y
}

// ClearSelection discards the current selection.
func (vc *VC) ClearSelection() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.selection = Selection{}
}

// orderedBounds returns the selection's (fromX,fromY)-(toX,toY) corners in
// reading order regardless of which direction the user dragged.
func (s Selection) orderedBounds() (fromX, fromY, toX, toY int) {
	if s.startY < s.endY || (s.startY == s.endY && s.startX <= s.endX) {
		return s.startX, s.startY, s.endX, s.endY
	}
	return s.endX, s.endY, s.startX, s.startY
}

// SelectedText extracts the current selection's plain-text content from
// the console's screen buffer, trimming trailing spaces on each row the
// way terminal emulators conventionally do for copy (§4.2 "Selection").
func (vc *VC) SelectedText() []byte {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if !vc.selection.active {
		return nil
	}
	fromX, fromY, toX, toY := vc.selection.orderedBounds()
	if vc.selection.mode == SelectionLine {
		fromX, toX = 0, vc.cols-1
	}
	if vc.selection.mode == SelectionWord {
		fromX, _ = vc.wordBoundsAt(fromX, fromY)
		_, toX = vc.wordBoundsAt(toX, toY)
	}

	screen := vc.screen()
	var out []byte
	for y := fromY; y <= toY; y++ {
		lo, hi := 0, vc.cols-1
		if y == fromY {
			lo = fromX
		}
		if y == toY {
			hi = toX
		}
		row := make([]byte, 0, hi-lo+1)
		for x := lo; x <= hi && x < vc.cols; x++ {
			ch := screen.GetCell(x, y).Char()
			if ch == 0 {
				ch = ' '
			}
			row = append(row, ch)
		}
		for len(row) > 0 && row[len(row)-1] == ' ' {
			row = row[:len(row)-1]
		}
		out = append(out, row...)
		if y != toY {
			out = append(out, '\r')
		}
	}
	return out
}

// wordBoundsAt widens (x,y) to the start/end of the word it falls within,
// matching double-click word selection conventions (§4.2 "Selection").
func (vc *VC) wordBoundsAt(x, y int) (startX, endX int) {
	screen := vc.screen()
	isWord := func(cx int) bool {
		ch := screen.GetCell(cx, y).Char()
		return isWordChar(ch)
	}
	startX, endX = x, x
	for startX > 0 && isWord(startX-1) {
		startX--
	}
	for endX < vc.cols-1 && isWord(endX+1) {
		endX++
	}
	return startX, endX
}
