// keyboard_bottomhalf.go - translation dispatch and deferred keyboard work (§4.3 "Translation", "Repeat", "Bottom half")

package main

// HandleScancode is the keyboard interrupt handler's entry point: it
// decodes one raw byte from port 0x60 and, once a full key transition is
// known, updates keyboard state and feeds the foreground TTY.
func (k *Keyboard) HandleScancode(raw byte) {
	k.mu.Lock()
	res := k.feed(raw)
	k.mu.Unlock()
	if !res.ok {
		return
	}

	k.mu.Lock()
	mode := k.mode
	wasDown := k.depressed[res.keysym&0xff]
	if res.release {
		k.depressed[res.keysym&0xff] = false
	} else {
		k.depressed[res.keysym&0xff] = true
	}
	k.mu.Unlock()

	if k.vts != nil {
		k.vts.NoteActivity()
	}

	switch mode {
	case KBRaw:
		k.deliverRaw(raw)
		return
	case KBMediumRaw:
		k.deliverMediumRaw(res)
		return
	}

	if res.release {
		k.translateKeyUp(res.keysym)
		return
	}

	if wasDown && !k.shouldRepeat() {
		return
	}
	k.translateKeyDown(res.keysym)
}

func (k *Keyboard) foregroundTTY() *TTY {
	if k.vts == nil {
		return nil
	}
	fg := k.vts.Foreground()
	if fg == nil {
		return nil
	}
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.tty
}

func (k *Keyboard) deliverRaw(raw byte) {
	if t := k.foregroundTTY(); t != nil {
		t.rawQ.PutByte(raw, false)
		t.k.bh.Notify(t)
	}
}

func (k *Keyboard) deliverMediumRaw(res decodeResult) {
	t := k.foregroundTTY()
	if t == nil {
		return
	}
	b := byte(res.keysym & 0x7f)
	if res.release {
		b |= 0x80
	}
	t.rawQ.PutByte(b, false)
	t.k.bh.Notify(t)
}

// shouldRepeat implements §4.3 "Repeat": delivered only when autorepeat is
// on AND (local echo is on OR both queues of the attached TTY are empty).
func (k *Keyboard) shouldRepeat() bool {
	k.mu.Lock()
	auto := k.autorepeat
	k.mu.Unlock()
	if !auto {
		return false
	}
	t := k.foregroundTTY()
	if t == nil {
		return false
	}
	t.mu.Lock()
	echo := t.termios.Lflag&ECHO != 0
	t.mu.Unlock()
	if echo {
		return true
	}
	return t.rawQ.Len() == 0 && t.secQ.Len() == 0
}

func (k *Keyboard) entry(keysym int) KeyEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx := k.shiftIndex()
	if keysym < 0 || keysym > 255 {
		return KeyEntry{}
	}
	return k.keymap[idx][keysym]
}

func (k *Keyboard) translateKeyUp(keysym int) {
	e := k.entry(keysym)
	if e.Type != KTShift && e.Type != KTLock && e.Type != KTMeta {
		return
	}
	switch e.Type {
	case KTShift:
		k.mu.Lock()
		if k.modCount[e.Value&0x7] > 0 {
			k.modCount[e.Value&0x7]--
		}
		if k.modCount[e.Value&0x7] == 0 {
			k.shiftState &^= 1 << (e.Value & 0x7)
		}
		k.mu.Unlock()
	}
}

func (k *Keyboard) translateKeyDown(keysym int) {
	e := k.entry(keysym)
	switch e.Type {
	case KTShift:
		k.mu.Lock()
		k.modCount[e.Value&0x7]++
		k.shiftState |= 1 << (e.Value & 0x7)
		k.mu.Unlock()
		return
	case KTLock:
		k.mu.Lock()
		k.lockState ^= 1 << (e.Value & 0x7)
		led := byte(0)
		switch e.Value {
		case SpecCapsLock:
			led = ledCapsLock
		case SpecNumLock:
			led = ledNumLock
		case SpecScrollLock:
			led = ledScrollLock
		}
		on := k.lockState&(1<<(e.Value&0x7)) != 0
		k.mu.Unlock()
		if led != 0 {
			k.setLED(led, on)
		}
		return
	case KTConsSwitch:
		if k.vts != nil {
			k.vts.Activate(int(e.Value))
		}
		return
	case KTDead:
		k.mu.Lock()
		k.deadKey = e.Value
		k.mu.Unlock()
		return
	case KTMeta:
		k.emitMeta(e.Value)
		return
	case KTCursor:
		if t := k.foregroundTTY(); t != nil {
			for _, b := range []byte{0x1b, '[', e.Value} {
				t.rawQ.PutByte(b, false)
			}
			t.k.bh.Notify(t)
		}
		return
	case KTScroll:
		if k.vts == nil {
			return
		}
		if vc := k.vts.Foreground(); vc != nil {
			if e.Value == ScrollFront {
				vc.Scrollfront(0)
			} else {
				vc.Scrollback(0)
			}
		}
		return
	}

	k.mu.Lock()
	dead := k.deadKey
	k.deadKey = 0
	meta := k.shiftState&AltBit != 0 || k.shiftState&AltGrBit != 0
	metaEscape := k.metaEscape
	k.mu.Unlock()

	var b byte
	switch e.Type {
	case KTLatin, KTAsciiDigit, KTLowercase:
		b = e.Value
		k.mu.Lock()
		if k.lockState&LockCaps != 0 && b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		if k.shiftState&ShiftBit != 0 && b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		k.mu.Unlock()
	case KTPad:
		b = e.Value
	case KTFn:
		k.emitString(e.Value)
		return
	default:
		b = e.Value
	}

	if dead != 0 {
		b = k.composeDeadKey(dead, b)
	}

	k.emitByte(b, meta, metaEscape)
}

func (k *Keyboard) emitByte(b byte, meta, metaEscape bool) {
	t := k.foregroundTTY()
	if t == nil {
		return
	}
	if meta {
		if metaEscape {
			t.rawQ.PutByte(0x1b, false)
			t.k.bh.Notify(t)
		} else {
			b |= 0x80
		}
	}
	t.rawQ.PutByte(b, false)
	t.k.bh.Notify(t)
}

func (k *Keyboard) emitMeta(which byte) {
	k.mu.Lock()
	switch which {
	case 0:
		k.shiftState |= AltBit
	case 1:
		k.shiftState |= AltGrBit
	}
	k.mu.Unlock()
}

// functionKeyPoolSize bounds the total length of the function-key strings
// KDGKBSENT/KDSKBSENT manage, a fixed 2 KiB string pool (§6).
const functionKeyPoolSize = 2048

func (k *Keyboard) emitString(fnIndex byte) {
	t := k.foregroundTTY()
	if t == nil {
		return
	}
	k.mu.Lock()
	s := k.functionKeys[fnIndex]
	k.mu.Unlock()
	for _, b := range s {
		t.rawQ.PutByte(b, false)
	}
	t.k.bh.Notify(t)
}
