package main

// Cell is the wire-layout video memory word (§6): low byte character, high
// byte attribute.
type Cell uint16

func (c Cell) Char() byte { return byte(c) }
func (c Cell) Attr() byte { return byte(c >> 8) }

func makeCell(ch, attr byte) Cell {
	return Cell(ch) | Cell(attr)<<8
}

// maxScrollbackLines bounds the hardware-scrollback history kept per
// console, mirroring console.c's "*very* limited hardware scrollback
// support" built on a fixed EGA/VGA memory window rather than unbounded
// history.
const maxScrollbackLines = 200

// ScreenBuffer is a fixed rows*cols row-major grid of cells, the shadow
// screen every virtual console owns (§3 "Virtual console (VC)").
type ScreenBuffer struct {
	cols, rows int
	cells      []Cell

	// history holds rows scrolled off the top of a full-screen scroll-up,
	// oldest first (console.c's origin/scr_end window). viewLines is how
	// many of them are currently paged into view (0 = live screen), set
	// by Scrollback/Scrollfront the way __origin tracks away from
	// __real_origin.
	history   [][]Cell
	viewLines int
}

func NewScreenBuffer(cols, rows int) *ScreenBuffer {
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	return &ScreenBuffer{cols: cols, rows: rows, cells: make([]Cell, cols*rows)}
}

func (sb *ScreenBuffer) index(x, y int) int { return y*sb.cols + x }

func (sb *ScreenBuffer) InBounds(x, y int) bool {
	return x >= 0 && x < sb.cols && y >= 0 && y < sb.rows
}

func (sb *ScreenBuffer) GetCell(x, y int) Cell {
	if !sb.InBounds(x, y) {
		return 0
	}
	return sb.cells[sb.index(x, y)]
}

func (sb *ScreenBuffer) SetCell(x, y int, c Cell) {
	if !sb.InBounds(x, y) {
		return
	}
	sb.cells[sb.index(x, y)] = c
}

// FillCells fills count consecutive cells starting at (x,y) with value,
// the "fill_cells" primitive replacing inline block-fill assembly (§9).
func (sb *ScreenBuffer) FillCells(x, y, count int, value Cell) {
	start := sb.index(x, y)
	for i := 0; i < count && start+i < len(sb.cells); i++ {
		sb.cells[start+i] = value
	}
}

// CopyCells copies count cells from src to dst, handling overlap the way
// the "copy_cells" primitive must (§9).
func (sb *ScreenBuffer) CopyCells(dst, src, count int) {
	if dst == src || count <= 0 {
		return
	}
	end := len(sb.cells)
	if src+count > end {
		count = end - src
	}
	if dst+count > end {
		count = end - dst
	}
	if count <= 0 {
		return
	}
	copy(sb.cells[dst:dst+count], sb.cells[src:src+count])
}

func (sb *ScreenBuffer) FillRow(y int, erase Cell) {
	if y < 0 || y >= sb.rows {
		return
	}
	sb.FillCells(0, y, sb.cols, erase)
}

// ScrollUpRegion shifts rows [top+1,bottom) up by one within [top,bottom)
// and fills the vacated last row with erase (§4.2 "Scrolling"). When the
// scrolled region is the whole screen (top 0, bottom at the last row),
// the row falling off the top is kept in the scrollback history, the same
// condition console.c's scrup uses to pick the hardware-scroll path
// instead of a plain region copy.
func (sb *ScreenBuffer) ScrollUpRegion(top, bottom int, erase Cell) {
	if bottom-top <= 1 {
		return
	}
	if top == 0 && bottom == sb.rows {
		sb.pushHistoryRow(sb.cells[sb.index(0, 0):sb.index(0, 1)])
	}
	sb.CopyCells(sb.index(0, top), sb.index(0, top+1), (bottom-top-1)*sb.cols)
	sb.FillRow(bottom-1, erase)
}

func (sb *ScreenBuffer) pushHistoryRow(row []Cell) {
	saved := make([]Cell, sb.cols)
	copy(saved, row)
	sb.history = append(sb.history, saved)
	if len(sb.history) > maxScrollbackLines {
		sb.history = sb.history[1:]
	}
}

// Scrollback pages the view further into history by lines rows (half the
// screen height if lines is 0, per console.c's scrollback), clamped to
// however much history exists. Returns the resulting view depth.
func (sb *ScreenBuffer) Scrollback(lines int) int {
	if lines == 0 {
		lines = sb.rows / 2
	}
	sb.viewLines += lines
	if sb.viewLines > len(sb.history) {
		sb.viewLines = len(sb.history)
	}
	return sb.viewLines
}

// Scrollfront pages the view back toward the live screen by lines rows
// (half the screen height if lines is 0), per console.c's scrollfront.
func (sb *ScreenBuffer) Scrollfront(lines int) int {
	if lines == 0 {
		lines = sb.rows / 2
	}
	sb.viewLines -= lines
	if sb.viewLines < 0 {
		sb.viewLines = 0
	}
	return sb.viewLines
}

// ResetView snaps the display back to the live screen, the way any fresh
// console output in console.c implies set_origin(__real_origin).
func (sb *ScreenBuffer) ResetView() {
	sb.viewLines = 0
}

// Viewing reports whether the screen is currently paged back into
// scrollback history rather than showing the live screen.
func (sb *ScreenBuffer) Viewing() bool {
	return sb.viewLines > 0
}

// ViewCell is GetCell composed with the current scrollback offset: row y
// of the *displayed* screen, which may come from history while
// viewLines > 0.
func (sb *ScreenBuffer) ViewCell(x, y int) Cell {
	if sb.viewLines == 0 {
		return sb.GetCell(x, y)
	}
	// The viewport shows, from the top, the last viewLines history rows
	// followed by the live screen rows that still fit.
	if y < sb.viewLines {
		idx := len(sb.history) - sb.viewLines + y
		if idx < 0 || idx >= len(sb.history) || x < 0 || x >= sb.cols {
			return 0
		}
		return sb.history[idx][x]
	}
	return sb.GetCell(x, y-sb.viewLines)
}

// ScrollDownRegion shifts rows [top,bottom-1) down by one within
// [top,bottom) and fills the vacated top row with erase.
func (sb *ScreenBuffer) ScrollDownRegion(top, bottom int, erase Cell) {
	if bottom-top <= 1 {
		return
	}
	sb.CopyCells(sb.index(0, top+1), sb.index(0, top), (bottom-top-1)*sb.cols)
	sb.FillRow(top, erase)
}

func (sb *ScreenBuffer) Clear(erase Cell) {
	for i := range sb.cells {
		sb.cells[i] = erase
	}
}

// InvertAttrs toggles every on-screen cell's attribute byte via invertByte,
// preserving the character (§4.2 "CSI" mode 5 / DECSCNM, console.c's
// invert_screen, which walks origin..scr_end in the live video buffer).
func (sb *ScreenBuffer) InvertAttrs() {
	for i, c := range sb.cells {
		sb.cells[i] = makeCell(c.Char(), invertByte(c.Attr()))
	}
}

func (sb *ScreenBuffer) Cols() int { return sb.cols }
func (sb *ScreenBuffer) Rows() int { return sb.rows }

// Snapshot copies all cells out, for shadow<->video-memory swaps on
// console switch (§4.2 "Per-VC isolation").
func (sb *ScreenBuffer) Snapshot() []Cell {
	out := make([]Cell, len(sb.cells))
	copy(out, sb.cells)
	return out
}

func (sb *ScreenBuffer) Restore(cells []Cell) {
	n := copy(sb.cells, cells)
	for i := n; i < len(sb.cells); i++ {
		sb.cells[i] = 0
	}
}
