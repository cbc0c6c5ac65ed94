// vt_ioctl.go - KD/VT ioctl dispatch for console TTYs (§6)

package main

import "golang.org/x/sys/unix"

// ioctl implements the VC-side half of §6's "console TTYs additionally
// honor the KD/VT ioctl family". It returns handled=false for anything it
// does not recognize so the caller can fall through further.
func (vc *VC) ioctl(t *TTY, cmd uint32, arg any) (any, bool, error) {
	switch int(cmd) {
	case KDGETLED:
		if vc.vts.kbd == nil {
			return nil, true, unix.ENODEV
		}
		return vc.vts.kbd.ledState(), true, nil
	case KDSETLED:
		mask, ok := arg.(byte)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		vc.vts.kbd.setLEDMask(mask)
		return nil, true, nil
	case KDGKBTYPE:
		return byte(2), true, nil // KB_101, the only type this emulator models

	case KDADDIO, KDENABIO:
		port, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		if port < vgaIOPortLow || port > vgaIOPortHigh {
			return nil, true, unix.EPERM
		}
		return nil, true, nil
	case KDDELIO, KDDISABIO:
		return nil, true, nil

	case KDSETMODE:
		mode, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.mu.Lock()
		if mode == kdModeGraphics {
			vc.kbdMode = KDGraphicsMode
		} else {
			vc.kbdMode = KDTextMode
		}
		vc.mu.Unlock()
		return nil, true, nil
	case KDGETMODE:
		vc.mu.Lock()
		defer vc.mu.Unlock()
		if vc.kbdMode == KDGraphicsMode {
			return kdModeGraphics, true, nil
		}
		return kdModeText, true, nil

	case KDSKBMODE:
		mode, ok := arg.(int)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		vc.vts.kbd.setMode(mode)
		return nil, true, nil
	case KDGKBMODE:
		if vc.vts.kbd == nil {
			return nil, true, unix.ENODEV
		}
		return vc.vts.kbd.getMode(), true, nil

	case KDSKBMETA:
		meta, ok := arg.(bool)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		vc.vts.kbd.metaEscape = meta
		return nil, true, nil
	case KDGKBMETA:
		if vc.vts.kbd == nil {
			return nil, true, unix.ENODEV
		}
		return vc.vts.kbd.metaEscape, true, nil

	case KIOCSOUND, KDMKTONE:
		freq, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		if vc.vts.speaker != nil {
			vc.vts.speaker.Tone(freq)
		}
		return nil, true, nil

	case PIO_SCRNMAP:
		table, ok := arg.(*[256]byte)
		if !ok {
			return nil, true, unix.EINVAL
		}
		for _, forced := range []int{10, 12, 13, 27} {
			table[forced] = 0
		}
		vc.mu.Lock()
		vc.userTable = table
		vc.mu.Unlock()
		return nil, true, nil
	case GIO_SCRNMAP:
		vc.mu.Lock()
		defer vc.mu.Unlock()
		if vc.userTable == nil {
			return CharsetLatin1, true, nil
		}
		return *vc.userTable, true, nil

	case VT_OPENQRY:
		for i, c := range vc.vts.consoles {
			if c.tty == nil {
				return i, true, nil
			}
		}
		return nil, true, unix.ENOSPC
	case VT_GETSTATE:
		vc.vts.mu.Lock()
		defer vc.vts.mu.Unlock()
		var mask uint16
		for i, c := range vc.vts.consoles {
			if c.tty != nil {
				mask |= 1 << uint(i)
			}
		}
		return VTStateArg{Active: vc.vts.fg + 1, OpenMask: mask}, true, nil
	case VT_ACTIVATE:
		n, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.vts.Activate(n - 1)
		return nil, true, nil
	case VT_WAITACTIVE:
		n, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.vts.WaitActive(n-1, nil)
		return nil, true, nil
	case VT_SETMODE:
		m, ok := arg.(VTSetModeArg)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.mu.Lock()
		vc.vtMode = m.Mode
		vc.vtPid = m.Pid
		vc.mu.Unlock()
		return nil, true, nil
	case VT_GETMODE:
		vc.mu.Lock()
		defer vc.mu.Unlock()
		return VTSetModeArg{Mode: vc.vtMode, Pid: vc.vtPid}, true, nil
	case VT_RELDISP:
		arg2, ok := arg.(int)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.vts.ReleaseDisplay(vc.num, arg2)
		return nil, true, nil

	case KDGKBENT:
		e, ok := arg.(KbEntryArg)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		if e.Table < 0 || e.Table >= 16 || e.Index < 0 || e.Index > 255 {
			return nil, true, unix.EINVAL
		}
		kbd := vc.vts.kbd
		kbd.mu.Lock()
		e.Value = kbd.keymap[e.Table][e.Index]
		kbd.mu.Unlock()
		return e, true, nil
	case KDSKBENT:
		e, ok := arg.(KbEntryArg)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		if e.Table < 0 || e.Table >= 16 || e.Index < 0 || e.Index > 255 || e.Value.Type > KTLowercase {
			return nil, true, unix.EINVAL
		}
		kbd := vc.vts.kbd
		kbd.mu.Lock()
		kbd.keymap[e.Table][e.Index] = e.Value
		kbd.mu.Unlock()
		return nil, true, nil

	case KDGKBSENT:
		e, ok := arg.(KbSEntArg)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		if e.FuncNum < 0 || e.FuncNum > 255 {
			return nil, true, unix.EINVAL
		}
		kbd := vc.vts.kbd
		kbd.mu.Lock()
		e.Value = kbd.functionKeys[e.FuncNum]
		kbd.mu.Unlock()
		return e, true, nil
	case KDSKBSENT:
		e, ok := arg.(KbSEntArg)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		if e.FuncNum < 0 || e.FuncNum > 255 {
			return nil, true, unix.EINVAL
		}
		kbd := vc.vts.kbd
		kbd.mu.Lock()
		total := len(e.Value)
		for i, s := range kbd.functionKeys {
			if i != e.FuncNum {
				total += len(s)
			}
		}
		if total > functionKeyPoolSize {
			kbd.mu.Unlock()
			return nil, true, unix.ENOMEM
		}
		kbd.functionKeys[e.FuncNum] = e.Value
		kbd.mu.Unlock()
		return nil, true, nil

	case KDGKBDIACR:
		if vc.vts.kbd == nil {
			return nil, true, unix.ENODEV
		}
		kbd := vc.vts.kbd
		kbd.mu.Lock()
		entries := make([]KbDiacrEntry, 0, maxDiacrEntries)
		for accent, row := range kbd.diacritics {
			for base, result := range row {
				if len(entries) == maxDiacrEntries {
					break
				}
				entries = append(entries, KbDiacrEntry{Diacr: accent, Base: base, Result: result})
			}
		}
		kbd.mu.Unlock()
		return entries, true, nil
	case KDSKBDIACR:
		entries, ok := arg.([]KbDiacrEntry)
		if !ok || vc.vts.kbd == nil {
			return nil, true, unix.EINVAL
		}
		if len(entries) > maxDiacrEntries {
			return nil, true, unix.EINVAL
		}
		kbd := vc.vts.kbd
		table := make(map[byte]map[byte]byte, len(entries))
		for _, e := range entries {
			row, ok := table[e.Diacr]
			if !ok {
				row = make(map[byte]byte)
				table[e.Diacr] = row
			}
			row[e.Base] = e.Result
		}
		kbd.mu.Lock()
		kbd.diacritics = table
		kbd.mu.Unlock()
		return nil, true, nil

	case PIO_FONT:
		op, ok := arg.(*KDFontOp)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.mu.Lock()
		for ch := 0; ch < 256; ch++ {
			copy(consoleFont8x16[ch*16:ch*16+16], op.Data[ch*32:ch*32+16])
		}
		vc.mu.Unlock()
		return nil, true, nil
	case GIO_FONT:
		op, ok := arg.(*KDFontOp)
		if !ok {
			return nil, true, unix.EINVAL
		}
		vc.mu.Lock()
		for ch := 0; ch < 256; ch++ {
			copy(op.Data[ch*32:ch*32+16], consoleFont8x16[ch*16:ch*16+16])
		}
		vc.mu.Unlock()
		return nil, true, nil
	}
	return nil, false, nil
}
