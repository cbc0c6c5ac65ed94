// tty_core.go - TTY line struct and public contract (§3, §4.1)

package main

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Signal models the subset of process/signal primitives the spec treats as
// an external collaborator (§1 Out of scope: "process/signal primitives").
type Signal int

const (
	SIGHUP Signal = iota
	SIGINT
	SIGQUIT
	SIGTSTP
	SIGCONT
	SIGWINCH
	SIGTTIN
)

// SignalSender is the external collaborator that delivers a signal to every
// process in a group; TTY core never manipulates process tables directly.
type SignalSender interface {
	SendSignalToGroup(pgrp int, sig Signal)
	// IsOrphaned reports whether pgrp has no controlling-terminal parent in
	// the session, per §4.1 step 6 ("suppressed for orphaned process groups").
	IsOrphaned(pgrp int) bool
}

// HostDriver is the per-device capability a TTY line is attached to (§3,
// §4.1's "Device-reported error status", §4.1's throttle calls).
type HostDriver interface {
	Write(tty *TTY, buf []byte) (int, error)
	Hangup(tty *TTY)
	Throttle(tty *TTY, state ThrottleState)
	// Ioctl lets unknown ioctls fall through to the attached device (§6).
	Ioctl(tty *TTY, cmd uint32, arg any) (any, bool, error)
}

type ThrottleState int

const (
	ThrottleSQFull ThrottleState = iota
	ThrottleSQAvail
)

// TTY flags bitset (§3).
type ttyFlag uint32

const (
	FlagWriteBusy ttyFlag = 1 << iota
	FlagReadBusy
	FlagIOError
	FlagSlaveClosed
	FlagExclusive
	FlagThrottled
)

// writeContinuation records a bulk-write helper's residual (§4.1
// write_data), processed by the bottom half once write_q drains.
type writeContinuation struct {
	buf      []byte
	residual int
	callback func(arg any)
	arg      any
}

// TTY is one line of the TTY core's data model (§3).
type TTY struct {
	k    *Kernel
	line int

	mu sync.Mutex

	rawQ  *Queue
	secQ  *Queue
	wrQ   *Queue

	termios Termios
	ldisc   int // index into Kernel.disc

	canonHead  int // cursor inside secQ demarcating the unterminated line
	canonData  int // count of completed canonical lines
	column     int
	canonCol   int
	lnext      bool
	erasing    bool

	session int
	pgrp    int
	stopped bool
	packet  bool
	ctrlStatus byte

	link *TTY // paired end for pseudo-terminals

	flags ttyFlag

	driver HostDriver
	sig    SignalSender

	winsize WinSize

	nonblocking bool
	hungup      bool

	cont *writeContinuation

	closeWG sync.WaitGroup // both ends closed -> FreeTTY
	openEnds int

	// selection/console wiring: console TTYs keep a back-pointer so KD/VT
	// ioctls (§6) can reach the owning virtual console without every TTY
	// needing console fields.
	console *VC
}

type WinSize struct {
	Rows, Cols, XPixel, YPixel uint16
}

func newTTY(k *Kernel, line int) *TTY {
	t := &TTY{
		k:       k,
		line:    line,
		rawQ:    NewQueue(),
		secQ:    NewQueue(),
		wrQ:     NewQueue(),
		termios: DefaultTermios(),
		ldisc:   0,
	}
	return t
}

// Open implements §4.1 open(line).
func (k *Kernel) Open(line int, driver HostDriver, sig SignalSender) (*TTY, error) {
	if line < 0 || line >= maxLines {
		return nil, unix.EINVAL
	}
	t := k.AllocTTY(line)
	t.mu.Lock()
	t.driver = driver
	t.sig = sig
	t.openEnds++
	t.hungup = false
	d := k.ldisc(t.ldisc)
	t.mu.Unlock()
	if d != nil {
		if err := d.Open(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Close implements §4.1 close(line); frees the arena slot once every end
// (both sides of a pseudo-terminal pair) has closed (§3 lifecycle).
func (k *Kernel) Close(t *TTY) {
	t.mu.Lock()
	d := k.ldisc(t.ldisc)
	t.openEnds--
	remaining := t.openEnds
	link := t.link
	t.mu.Unlock()

	if d != nil {
		d.Close(t)
	}
	if remaining <= 0 && (link == nil || link.closed()) {
		k.FreeTTY(t.line)
	}
}

func (t *TTY) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openEnds <= 0
}

// Read implements §4.1 read(line, buf, n).
func (t *TTY) Read(buf []byte, cancel <-chan struct{}) (int, error) {
	t.mu.Lock()
	hungup := t.hungup
	nonblocking := t.nonblocking
	d := t.k.ldisc(t.ldisc)
	t.mu.Unlock()
	if hungup {
		return 0, nil // EOF per §4.1/§7
	}
	if d == nil {
		return 0, unix.EINVAL
	}
	n, err := d.Read(t, buf, cancel)
	if err == errRestartSys {
		return n, errRestartSys
	}
	if nonblocking && err == unix.EAGAIN {
		return 0, unix.EAGAIN
	}
	return n, err
}

// Write implements §4.1 write(line, buf, n).
func (t *TTY) Write(buf []byte, cancel <-chan struct{}) (int, error) {
	t.mu.Lock()
	hungup := t.hungup
	d := t.k.ldisc(t.ldisc)
	t.mu.Unlock()
	if hungup {
		return 0, unix.EIO
	}
	if d == nil {
		return 0, unix.EINVAL
	}
	return d.Write(t, buf, cancel)
}

// Select implements §4.1 select(line, kind).
func (t *TTY) Select(kind SelectKind) bool {
	t.mu.Lock()
	d := t.k.ldisc(t.ldisc)
	t.mu.Unlock()
	if d == nil {
		return false
	}
	return d.Select(t, kind)
}

// Ioctl implements §4.1 ioctl(line, cmd, arg), dispatching to the termios
// suite (tty_ioctl.go) before falling through to the attached device (§6).
func (t *TTY) Ioctl(cmd uint32, arg any) (any, error) {
	return ttyIoctl(t, cmd, arg)
}

// Hangup implements §4.1 hangup(line).
func (t *TTY) Hangup() {
	t.mu.Lock()
	t.hungup = true
	pgrp, session := t.pgrp, t.session
	driver := t.driver
	sig := t.sig
	t.mu.Unlock()

	t.rawQ.Flush()
	t.secQ.Flush()
	t.wrQ.Flush()

	if sig != nil && session != 0 {
		sig.SendSignalToGroup(pgrp, SIGHUP)
		sig.SendSignalToGroup(pgrp, SIGCONT)
	}
	if driver != nil {
		driver.Hangup(t)
	}
}

// VHangup implements §4.1 vhangup(line): identical user-visible effect to
// Hangup but framed as a virtual hangup with no forced hardware interaction
// beyond what driver.Hangup itself chooses to do.
func (t *TTY) VHangup() {
	t.Hangup()
}

// DisassociateCtty performs the session-wide cleanup Hangup does, without
// touching the device, per §4.1 ("used by session leaders").
func (t *TTY) DisassociateCtty() {
	t.mu.Lock()
	t.session = 0
	t.pgrp = 0
	t.mu.Unlock()
}
