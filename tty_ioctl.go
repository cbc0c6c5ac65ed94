// tty_ioctl.go - termios ioctl suite (§6 "TTY ioctls")

package main

import "golang.org/x/sys/unix"

// ttyIoctl dispatches the termios/job-control ioctl family, then falls
// through to the owning console's KD/VT family and finally to the
// attached device (§6: "Unknown ioctls are forwarded to the attached
// device; console TTYs additionally honor the KD/VT ioctl family").
func ttyIoctl(t *TTY, cmd uint32, arg any) (any, error) {
	switch cmd {
	case unix.TCGETS:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.termios, nil

	case unix.TCSETS, unix.TCSETSW, unix.TCSETSF:
		tm, ok := arg.(Termios)
		if !ok {
			return nil, unix.EINVAL
		}
		if cmd == unix.TCSETSW || cmd == unix.TCSETSF {
			t.wrQ.Wait(nil)
		}
		if cmd == unix.TCSETSF {
			t.rawQ.Flush()
			t.secQ.Flush()
		}
		t.mu.Lock()
		t.termios = tm
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCGWINSZ:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.winsize, nil

	case unix.TIOCSWINSZ:
		ws, ok := arg.(WinSize)
		if !ok {
			return nil, unix.EINVAL
		}
		t.mu.Lock()
		changed := t.winsize != ws
		t.winsize = ws
		pgrp, sig := t.pgrp, t.sig
		t.mu.Unlock()
		if changed && sig != nil && pgrp != 0 {
			sig.SendSignalToGroup(pgrp, SIGWINCH)
		}
		return nil, nil

	case unix.TCFLSH:
		n, _ := arg.(int)
		switch n {
		case 0:
			t.rawQ.Flush()
			t.secQ.Flush()
		case 1:
			t.wrQ.Flush()
		default:
			t.rawQ.Flush()
			t.secQ.Flush()
			t.wrQ.Flush()
		}
		return nil, nil

	case unix.TCXONC:
		n, _ := arg.(int)
		switch n {
		case 0:
			t.setStopped(true)
		case 1:
			t.setStopped(false)
		}
		return nil, nil

	case unix.TCSBRK:
		return nil, nil

	case unix.TIOCEXCL:
		t.mu.Lock()
		t.flags |= FlagExclusive
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCNXCL:
		t.mu.Lock()
		t.flags &^= FlagExclusive
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCSCTTY:
		pid, _ := arg.(int)
		t.mu.Lock()
		t.session = pid
		t.pgrp = pid
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCGPGRP:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.pgrp, nil

	case unix.TIOCSPGRP:
		pgrp, ok := arg.(int)
		if !ok {
			return nil, unix.EINVAL
		}
		t.mu.Lock()
		t.pgrp = pgrp
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCMGET:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.ctrlStatus, nil

	case unix.TIOCMSET:
		bits, ok := arg.(byte)
		if !ok {
			return nil, unix.EINVAL
		}
		t.mu.Lock()
		t.ctrlStatus = bits
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCPKT:
		enable, _ := arg.(bool)
		t.mu.Lock()
		t.packet = enable
		t.mu.Unlock()
		return nil, nil

	case unix.TIOCSTI:
		b, ok := arg.(byte)
		if !ok {
			return nil, unix.EINVAL
		}
		t.rawQ.PutByte(b, false)
		t.k.bh.Notify(t)
		return nil, nil
	}

	if t.console != nil {
		if res, handled, err := t.console.ioctl(t, cmd, arg); handled {
			return res, err
		}
	}
	t.mu.Lock()
	driver := t.driver
	t.mu.Unlock()
	if driver != nil {
		if res, handled, err := driver.Ioctl(t, cmd, arg); handled {
			return res, err
		}
	}
	return nil, unix.EINVAL
}
