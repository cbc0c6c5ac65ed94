// vt_csi.go - CSI final-byte dispatch (§4.2 "CSI")

package main

func (vc *VC) dispatchCSI(final byte) {
	defer func() {
		vc.state = StateNormal
		vc.nparam = 0
		vc.params = [16]int{}
	}()

	switch final {
	case 'A':
		vc.moveCursor(0, -vc.par(0, 1))
	case 'B', 'e':
		vc.moveCursor(0, vc.par(0, 1))
	case 'C', 'a':
		vc.moveCursor(vc.par(0, 1), 0)
	case 'D':
		vc.moveCursor(-vc.par(0, 1), 0)
	case 'E':
		vc.cursorX = 0
		vc.moveCursor(0, vc.par(0, 1))
	case 'F':
		vc.cursorX = 0
		vc.moveCursor(0, -vc.par(0, 1))
	case 'G', '`':
		vc.setCursorPos(vc.par(0, 1)-1, vc.cursorY)
	case 'd':
		vc.setCursorPos(vc.cursorX, vc.par(0, 1)-1)
	case 'H', 'f':
		vc.setCursorPos(vc.par(1, 1)-1, vc.par(0, 1)-1)
	case 'J':
		vc.eraseDisplay(vc.par(0, 0))
	case 'K':
		vc.eraseLine(vc.par(0, 0))
	case 'L':
		vc.insertLines(vc.par(0, 1))
	case 'M':
		vc.deleteLines(vc.par(0, 1))
	case 'P':
		vc.deleteChars(vc.par(0, 1))
	case '@':
		vc.insertChars(vc.par(0, 1))
	case 'c':
		// query ID: no reply channel modeled (no host-side read path wired).
	case 'g':
		vc.clearTabStop(vc.par(0, 0))
	case 'h':
		vc.setModes(true)
	case 'l':
		vc.setModes(false)
	case 'm':
		vc.selectGraphicRendition()
	case 'n':
		// status/cursor position report: no reply channel modeled.
	case 'r':
		vc.setScrollRegion()
	case 's':
		vc.saveCursor()
	case 'u':
		vc.restoreCursor()
	case ']':
		// setterm private extensions: accepted, no visible effect modeled.
	}
}

func (vc *VC) clampCursor() {
	if vc.cursorX < 0 {
		vc.cursorX = 0
	}
	if vc.cursorX >= vc.cols {
		vc.cursorX = vc.cols - 1
	}
	if vc.cursorY < 0 {
		vc.cursorY = 0
	}
	if vc.cursorY >= vc.rows {
		vc.cursorY = vc.rows - 1
	}
}

func (vc *VC) moveCursor(dx, dy int) {
	vc.cursorX += dx
	vc.cursorY += dy
	vc.needWrap = false
	vc.clampCursor()
}

func (vc *VC) setCursorPos(x, y int) {
	if vc.originMode {
		y += vc.scrollTop
	}
	vc.cursorX, vc.cursorY = x, y
	vc.needWrap = false
	vc.clampCursor()
}

func (vc *VC) eraseDisplay(mode int) {
	erase := vc.eraseCell()
	sb := vc.screen()
	switch mode {
	case 0:
		sb.FillCells(vc.cursorX, vc.cursorY, vc.cols-vc.cursorX, erase)
		for y := vc.cursorY + 1; y < vc.rows; y++ {
			sb.FillRow(y, erase)
		}
	case 1:
		for y := 0; y < vc.cursorY; y++ {
			sb.FillRow(y, erase)
		}
		sb.FillCells(0, vc.cursorY, vc.cursorX+1, erase)
	case 2:
		sb.Clear(erase)
	}
	vc.needWrap = false
}

func (vc *VC) eraseLine(mode int) {
	erase := vc.eraseCell()
	sb := vc.screen()
	switch mode {
	case 0:
		sb.FillCells(vc.cursorX, vc.cursorY, vc.cols-vc.cursorX, erase)
	case 1:
		sb.FillCells(0, vc.cursorY, vc.cursorX+1, erase)
	case 2:
		sb.FillRow(vc.cursorY, erase)
	}
	vc.needWrap = false
}

func (vc *VC) insertLines(n int) {
	if vc.cursorY < vc.scrollTop || vc.cursorY >= vc.scrollBottom {
		return
	}
	sb := vc.screen()
	erase := vc.eraseCell()
	for i := 0; i < n; i++ {
		sb.ScrollDownRegion(vc.cursorY, vc.scrollBottom, erase)
	}
}

func (vc *VC) deleteLines(n int) {
	if vc.cursorY < vc.scrollTop || vc.cursorY >= vc.scrollBottom {
		return
	}
	sb := vc.screen()
	erase := vc.eraseCell()
	for i := 0; i < n; i++ {
		sb.ScrollUpRegion(vc.cursorY, vc.scrollBottom, erase)
	}
}

func (vc *VC) deleteChars(n int) {
	sb := vc.screen()
	if n > vc.cols-vc.cursorX {
		n = vc.cols - vc.cursorX
	}
	row := vc.cursorY * vc.cols
	sb.CopyCells(row+vc.cursorX, row+vc.cursorX+n, vc.cols-vc.cursorX-n)
	sb.FillCells(vc.cols-n, vc.cursorY, n, vc.eraseCell())
}

func (vc *VC) insertChars(n int) {
	if n > vc.cols-vc.cursorX {
		n = vc.cols - vc.cursorX
	}
	vc.insertCellsAt(vc.cursorX, vc.cursorY, n)
}

func (vc *VC) clearTabStop(mode int) {
	switch mode {
	case 0:
		if vc.cursorX < len(vc.tabStops) {
			vc.tabStops[vc.cursorX] = false
		}
	case 3:
		for i := range vc.tabStops {
			vc.tabStops[i] = false
		}
	}
}

func (vc *VC) setModes(set bool) {
	if vc.ques {
		for i := 0; i < vc.nparam; i++ {
			switch vc.params[i] {
			case 1: // cursor-keys application mode: accepted, not modeled (no flag is kept)
			case 3: // column switch: unimplemented, spec says clear the screen
				vc.screen().Clear(vc.eraseCell())
			case 5: // DECSCNM, inverted screen on/off (console.c set_mode case 5)
				if vc.screenMode != set {
					vc.screenMode = set
					vc.screen().InvertAttrs()
				}
			case 6:
				vc.originMode = set
				vc.setCursorPos(0, 0)
			case 7:
				vc.autowrap = set
			case 8: // autorepeat: keyboard-side concern, not tracked here
			case 25:
				vc.cursorVisible = set
			}
		}
		return
	}
	for i := 0; i < vc.nparam; i++ {
		switch vc.params[i] {
		case 4:
			vc.insertMode = set
		case 20: // LNM handled at the TTY/ICRNL layer; no VC-local state needed
		}
	}
}

func (vc *VC) selectGraphicRendition() {
	if vc.nparam == 0 {
		vc.attrs = defaultAttrs()
		return
	}
	for i := 0; i < vc.nparam; i++ {
		p := vc.params[i]
		switch {
		case p == 0:
			vc.attrs = defaultAttrs()
		case p == 1:
			vc.attrs.Intensity = IntensityBold
		case p == 2:
			vc.attrs.Intensity = IntensityHalf
		case p == 21 || p == 22:
			vc.attrs.Intensity = IntensityNormal
		case p == 4:
			vc.attrs.Underline = true
		case p == 24:
			vc.attrs.Underline = false
		case p == 5:
			vc.attrs.Blink = true
		case p == 25:
			vc.attrs.Blink = false
		case p == 7:
			vc.attrs.Reverse = true
		case p == 27:
			vc.attrs.Reverse = false
		case p >= 30 && p <= 37:
			vc.attrs.Foreground = vtColorTable[p-30]
			vc.attrs.Default = false
		case p >= 40 && p <= 47:
			vc.attrs.Background = vtColorTable[p-40]
		case p == 38 || p == 48:
			// extended color: unimplemented per spec.
		case p == 39:
			vc.attrs.Foreground = 7
			vc.attrs.Default = true
		case p == 49:
			vc.attrs.Background = 0
		}
	}
}

func (vc *VC) setScrollRegion() {
	top := vc.par(0, 1) - 1
	bottom := vc.par(1, vc.rows)
	if bottom-top < 2 {
		return
	}
	if top < 0 {
		top = 0
	}
	if bottom > vc.rows {
		bottom = vc.rows
	}
	vc.scrollTop, vc.scrollBottom = top, bottom
	vc.setCursorPos(0, 0)
}
