// tty_ntty.go - N_TTY canonical line discipline (§4.1 "Canonical-mode line editor")

package main

import (
	"golang.org/x/sys/unix"
)

// disabledChar is the POSIX _VDISABLE convention: a special-character slot
// holding this value never matches an input byte (§3, §9 "0xff for
// disabled").
const disabledChar = 0xff

// eofSentinel is pushed into secondary_q in place of the actual EOF_CHAR
// byte, so read() can recognize a line boundary without returning a data
// byte for it (§4.1 step 8).
const eofSentinel = 0xff

// NTTYDiscipline is the default canonical line discipline installed at
// registry slot 0.
type NTTYDiscipline struct{}

func (NTTYDiscipline) Open(tty *TTY) error  { return nil }
func (NTTYDiscipline) Close(tty *TTY)       {}

func (NTTYDiscipline) Select(tty *TTY, kind SelectKind) bool {
	switch kind {
	case SelectIn:
		tty.mu.Lock()
		canon := tty.termios.Lflag&ICANON != 0
		tty.mu.Unlock()
		if canon {
			return tty.canonReady()
		}
		return tty.secQ.Len() > 0
	case SelectOut:
		return tty.wrQ.Room() > 0
	default:
		return false
	}
}

func (NTTYDiscipline) Ioctl(tty *TTY, cmd uint32, arg any) (any, error) {
	return nil, unix.EINVAL
}

// canonReady reports whether a complete canonical line is available.
func (t *TTY) canonReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canonData > 0
}

// InputHandler drains raw_q into secondary_q, applying the nine-step
// canonical editor in order for every byte (§4.1).
func (NTTYDiscipline) InputHandler(tty *TTY) {
	for {
		b, flagged, ok := tty.rawQ.GetByte()
		if !ok {
			return
		}
		tty.processInputByte(b, flagged)
	}
}

func (t *TTY) processInputByte(b byte, flagged bool) {
	t.mu.Lock()
	iflag := t.termios.Iflag
	lflag := t.termios.Lflag
	cc := t.termios.Cc
	lnext := t.lnext
	t.mu.Unlock()

	// Step 1: hardware-flagged byte classification.
	if flagged {
		switch {
		case iflag&IGNPAR != 0:
			return
		case iflag&PARMRK != 0 && iflag&ISTRIP == 0:
			t.secQ.PutByte(0377, false)
			t.secQ.PutByte(0, false)
			t.secQ.PutByte(b, false)
			t.afterAppend()
			return
		default:
			t.secQ.PutByte(0, false)
			t.afterAppend()
			return
		}
	}

	// Step 2: ISTRIP.
	if iflag&ISTRIP != 0 {
		b &= 0x7f
	}

	if !lnext {
		// Step 3: CR/NL translation, IUCLC.
		switch b {
		case '\r':
			if iflag&IGNCR != 0 {
				return
			}
			if iflag&ICRNL != 0 {
				b = '\n'
			}
		case '\n':
			if iflag&INLCR != 0 {
				b = '\r'
			}
		}
		if iflag&IUCLC != 0 && t.iextenEnabled() && b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}

		// Step 4: canonical special characters.
		if lflag&ICANON != 0 {
			if handled := t.handleCanonSpecial(b, cc); handled {
				return
			}
		}
	} else {
		t.mu.Lock()
		t.lnext = false
		t.mu.Unlock()
	}

	// Step 5: flow control.
	if iflag&IXON != 0 {
		if b == cc[VSTART] && cc[VSTART] != disabledChar {
			t.setStopped(false)
			return
		}
		if b == cc[VSTOP] && cc[VSTOP] != disabledChar {
			t.setStopped(true)
			return
		}
		t.mu.Lock()
		stopped := t.stopped
		anyRestart := iflag&IXANY != 0
		t.mu.Unlock()
		if stopped && anyRestart {
			t.setStopped(false)
		}
	}

	// Step 6: signal generation.
	if lflag&ISIG != 0 {
		switch {
		case b == cc[VINTR] && cc[VINTR] != disabledChar:
			t.raiseSignal(SIGINT)
			return
		case b == cc[VQUIT] && cc[VQUIT] != disabledChar:
			t.raiseSignal(SIGQUIT)
			return
		case b == cc[VSUSP] && cc[VSUSP] != disabledChar:
			t.raiseSignal(SIGTSTP)
			return
		}
	}

	// Step 7: echo.
	if lflag&ECHO != 0 {
		t.echoByte(b, lflag)
	} else if b == '\n' && lflag&ECHONL != 0 {
		t.echoByte(b, lflag)
	}

	// Step 8: end-of-line detection / queueing.
	t.mu.Lock()
	canon := t.termios.Lflag&ICANON != 0
	iexten := t.termios.Lflag&IEXTEN != 0
	t.mu.Unlock()

	if !canon {
		t.secQ.PutByte(b, false)
		t.afterAppend()
		return
	}

	switch {
	case b == '\n':
		t.secQ.PutByte(b, true)
		t.bumpCanonData()
	case cc[VEOF] != disabledChar && b == cc[VEOF]:
		t.secQ.PutByte(eofSentinel, true)
		t.bumpCanonData()
	case cc[VEOL] != disabledChar && b == cc[VEOL]:
		t.secQ.PutByte(b, true)
		t.bumpCanonData()
	case iexten && cc[VEOL2] != disabledChar && b == cc[VEOL2]:
		t.secQ.PutByte(b, true)
		t.bumpCanonData()
	default:
		t.secQ.PutByte(b, false)
	}
	t.afterAppend()
}

func (t *TTY) iextenEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.termios.Lflag&IEXTEN != 0
}

func (t *TTY) setStopped(stopped bool) {
	t.mu.Lock()
	changed := t.stopped != stopped
	t.stopped = stopped
	console := t.console
	t.mu.Unlock()
	if changed && console != nil {
		console.setScrollLock(stopped)
	}
	if !stopped {
		t.flushWriteQueue()
	}
}

func (t *TTY) raiseSignal(sig Signal) {
	t.mu.Lock()
	pgrp := t.pgrp
	sender := t.sig
	noflsh := t.termios.Lflag&NOFLSH != 0
	t.mu.Unlock()
	if sender == nil || pgrp == 0 {
		return
	}
	if (sig == SIGTSTP) && sender.IsOrphaned(pgrp) {
		return
	}
	sender.SendSignalToGroup(pgrp, sig)
	if !noflsh {
		t.rawQ.Flush()
		t.secQ.Flush()
		t.mu.Lock()
		t.canonData = 0
		t.canonHead = t.secQ.Head()
		t.mu.Unlock()
	}
}

// bumpCanonData records a completed canonical line at the current head and
// advances canon_head to it (§3 invariant).
func (t *TTY) bumpCanonData() {
	t.mu.Lock()
	t.canonData++
	t.canonHead = t.secQ.Head()
	t.mu.Unlock()
}

func (t *TTY) afterAppend() {
	room := t.secQ.Room()
	lowWater := queueCapacity / 4
	highWater := (queueCapacity * 3) / 4

	t.mu.Lock()
	throttled := t.flags&FlagThrottled != 0
	driver := t.driver
	t.mu.Unlock()

	if !throttled && room < lowWater {
		t.mu.Lock()
		t.flags |= FlagThrottled
		t.mu.Unlock()
		if driver != nil {
			driver.Throttle(t, ThrottleSQFull)
		}
	} else if throttled && room > highWater {
		t.mu.Lock()
		t.flags &^= FlagThrottled
		t.mu.Unlock()
		if driver != nil {
			driver.Throttle(t, ThrottleSQAvail)
		}
	}
}

// echoByte pushes the visual echo of one input byte through opost,
// matching the ECHOCTL "^X" rendering of control bytes (§4.1 step 7).
func (t *TTY) echoByte(b byte, lflag uint32) {
	if lflag&ECHOCTL != 0 && b < 0x20 && b != '\t' && b != '\n' {
		opost(t, []byte{'^', b + '@'})
		return
	}
	opost(t, []byte{b})
}

// handleCanonSpecial processes ERASE/WERASE/KILL/LNEXT/REPRINT. It returns
// true when the byte was consumed as a control character rather than data.
func (t *TTY) handleCanonSpecial(b byte, cc [NumSpecialChars]byte) bool {
	t.mu.Lock()
	lflag := t.termios.Lflag
	boundary := t.canonHead
	t.mu.Unlock()

	switch {
	case cc[VERASE] != disabledChar && b == cc[VERASE]:
		t.eraseOne(boundary, lflag, cc[VERASE])
		return true
	case cc[VWERASE] != disabledChar && b == cc[VWERASE] && lflag&IEXTEN != 0:
		t.eraseWord(boundary, lflag, cc[VWERASE])
		return true
	case cc[VKILL] != disabledChar && b == cc[VKILL]:
		t.eraseLine(boundary, lflag)
		return true
	case cc[VLNEXT] != disabledChar && b == cc[VLNEXT] && lflag&IEXTEN != 0:
		t.mu.Lock()
		t.lnext = true
		t.mu.Unlock()
		if lflag&ECHO != 0 {
			opost(t, []byte{'^'})
		}
		return true
	case cc[VREPRINT] != disabledChar && b == cc[VREPRINT] && lflag&IEXTEN != 0:
		t.reprint(boundary, lflag)
		return true
	}
	return false
}

// isWordChar mirrors the alnum+'_' vs. everything-else boundary WERASE
// stops at (§4.1 step 4, tty_io.c eraser()'s seen_alnums logic).
func isWordChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isCntrl mirrors the C library iscntrl() predicate eraser() tests against
// ECHOCTL when deciding how many columns an erased byte's echo occupied.
func isCntrl(b byte) bool {
	return b < 0x20 || b == 0x7f
}

func (t *TTY) eraseOne(boundary int, lflag uint32, echoChar byte) {
	t.eraseRun(1, boundary, lflag, echoChar)
}

func (t *TTY) eraseWord(boundary int, lflag uint32, echoChar byte) {
	region := t.secQ.PeekRange(boundary)
	if len(region) == 0 {
		return
	}
	i := len(region)
	for i > 0 && !isWordChar(region[i-1]) {
		i--
	}
	for i > 0 && isWordChar(region[i-1]) {
		i--
	}
	t.eraseRun(len(region)-i, boundary, lflag, echoChar)
}

// eraseLine implements tty_io.c's eraser() KILL branch: with echo off it
// truncates silently; with echo on but ECHOK/ECHOKE not both set it
// truncates and, if ECHOK, emits a newline instead of visually unwinding
// the line; otherwise it falls into the shared per-byte erase loop just
// like ERASE/WERASE (§4.1 step 4).
func (t *TTY) eraseLine(boundary int, lflag uint32) {
	if lflag&ECHO == 0 {
		t.truncateTo(boundary)
		return
	}
	if lflag&ECHOK == 0 || lflag&ECHOKE == 0 {
		t.truncateTo(boundary)
		if lflag&ECHOK != 0 {
			opost(t, []byte{'\n'})
		}
		return
	}
	region := t.secQ.PeekRange(boundary)
	t.eraseRun(len(region), boundary, lflag, 0)
}

func (t *TTY) truncateTo(boundary int) {
	for {
		if _, ok := t.secQ.Unput(boundary); !ok {
			break
		}
	}
}

// eraseRun removes up to n bytes back to boundary, echoing each removed
// byte per tty_io.c's eraser(): ECHOPRT prefixes a backslash on the first
// byte of the run and echoes the raw byte instead of backspacing; !ECHOE
// echoes the erase character itself rather than unwinding the display; a
// tab recomputes the column it was typed at and backspaces to it; and the
// default case independently erases the control-char caret and the
// character's own column — together that erases 2 display columns for an
// ECHOCTL-rendered control byte, 1 for an ordinary byte, and 0 for a
// control byte when ECHOCTL is off (the byte was never echoed at all).
func (t *TTY) eraseRun(n, boundary int, lflag uint32, echoChar byte) {
	for i := 0; i < n; i++ {
		b, ok := t.secQ.Unput(boundary)
		if !ok {
			break
		}
		if lflag&ECHO == 0 {
			continue
		}
		switch {
		case lflag&ECHOPRT != 0:
			if !t.erasing {
				opost(t, []byte{'\\'})
				t.erasing = true
			}
			opost(t, []byte{b})
		case lflag&ECHOE == 0:
			opost(t, []byte{echoChar})
		case b == '\t':
			t.echoTabErase(boundary, lflag)
		default:
			if isCntrl(b) && lflag&ECHOCTL != 0 {
				opost(t, []byte{'\b', ' ', '\b'})
			}
			if !isCntrl(b) || lflag&ECHOCTL != 0 {
				opost(t, []byte{'\b', ' ', '\b'})
			}
		}
	}
	if t.erasing {
		opost(t, []byte{'\\'})
		t.erasing = false
	}
}

// columnWidth is the number of display columns byte b occupies when
// echoed at the given starting column, used to replay the line and
// recompute where a just-erased tab was typed (tty_io.c eraser()'s tab
// handling).
func columnWidth(col int, b byte, lflag uint32) int {
	switch {
	case b == '\t':
		return 8 - col%8
	case isCntrl(b) && lflag&ECHOCTL != 0:
		return 2
	case isCntrl(b):
		return 0
	default:
		return 1
	}
}

// echoTabErase replays every byte from canon_head up to the just-removed
// tab to find the column the tab was typed at, then backspaces over the
// tab's expanded width to return the cursor there.
func (t *TTY) echoTabErase(boundary int, lflag uint32) {
	region := t.secQ.PeekRange(boundary)
	col := 0
	for _, b := range region {
		col += columnWidth(col, b, lflag)
	}
	n := 8 - col%8
	for i := 0; i < n; i++ {
		opost(t, []byte{'\b'})
	}
}

func (t *TTY) reprint(boundary int, lflag uint32) {
	opost(t, []byte{'\n'})
	region := t.secQ.PeekRange(boundary)
	opost(t, region)
}

// Read implements the canonical/non-canonical read state machine (§4.1
// "Read state machine").
func (NTTYDiscipline) Read(tty *TTY, buf []byte, cancel <-chan struct{}) (int, error) {
	tty.mu.Lock()
	canon := tty.termios.Lflag&ICANON != 0
	vmin := int(tty.termios.Cc[VMIN])
	tty.mu.Unlock()

	if canon {
		return tty.readCanonical(buf, cancel)
	}
	return tty.readRaw(buf, vmin, cancel)
}

func (t *TTY) readCanonical(buf []byte, cancel <-chan struct{}) (int, error) {
	for {
		if !t.canonReady() {
			if t.hungup {
				return 0, nil
			}
			t.secQ.Wait(cancel)
			select {
			case <-cancel:
				return 0, errRestartSys
			default:
			}
			if t.hungup {
				return 0, nil
			}
			continue
		}
		n := 0
		for n < len(buf) {
			b, flagged, ok := t.secQ.GetByte()
			if !ok {
				break
			}
			if flagged {
				t.mu.Lock()
				if t.canonData > 0 {
					t.canonData--
				}
				t.mu.Unlock()
				if b == eofSentinel {
					return n, nil
				}
				buf[n] = b
				n++
				return n, nil
			}
			buf[n] = b
			n++
		}
		return n, nil
	}
}

func (t *TTY) readRaw(buf []byte, vmin int, cancel <-chan struct{}) (int, error) {
	if vmin <= 0 {
		vmin = 1
	}
	n := 0
	for n < vmin {
		b, _, ok := t.secQ.GetByte()
		if !ok {
			if t.hungup {
				return n, nil
			}
			if t.nonblocking {
				if n > 0 {
					return n, nil
				}
				return 0, unix.EAGAIN
			}
			t.secQ.Wait(cancel)
			select {
			case <-cancel:
				return n, errRestartSys
			default:
			}
			continue
		}
		if n < len(buf) {
			buf[n] = b
		}
		n++
		if n >= len(buf) {
			break
		}
	}
	for n < len(buf) {
		b, _, ok := t.secQ.GetByte()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	return n, nil
}

// Write implements the write state machine (§4.1 "Write state machine").
func (NTTYDiscipline) Write(tty *TTY, buf []byte, cancel <-chan struct{}) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := opost(tty, buf[total:])
		if err != nil {
			tty.flushWriteQueue()
			if tty.wrQ.Room() == 0 {
				tty.wrQ.Wait(cancel)
				select {
				case <-cancel:
					return total, errRestartSys
				default:
				}
				continue
			}
			continue
		}
		total += n
		tty.flushWriteQueue()
	}
	return total, nil
}
