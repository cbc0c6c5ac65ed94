// vt_console.go - virtual console array and switching handshake (§4.2)

package main

import "sync"

const numConsoles = 8

// KeyboardGraphicsMode distinguishes KDSETMODE text vs graphics (§6).
type KeyboardGraphicsMode int

const (
	KDTextMode KeyboardGraphicsMode = iota
	KDGraphicsMode
)

// VTMode is auto (kernel switches consoles freely) or process-managed
// (a controlling process must acknowledge via VT_RELDISP), §4.2 "VC
// switching handshake".
type VTMode int

const (
	VTAuto VTMode = iota
	VTProcess
)

// VC is one virtual console: an independent VT102 state machine over its
// own shadow screen, promoted to physical video memory when foreground
// (§3 "Virtual console (VC)", §4.2 "Per-VC isolation").
type VC struct {
	mu sync.Mutex

	num int
	vts *VTSubsystem

	shadow *ScreenBuffer
	video  *ScreenBuffer // only non-nil while this VC is foreground; aliases VTSubsystem.physical

	rows, cols int
	cursorX, cursorY int
	needWrap bool

	scrollTop, scrollBottom int // half-open [top, bottom)

	state    ParserState
	params   [16]int
	nparam   int
	ques     bool

	attrs      Attrs
	savedAttrs Attrs
	screenMode bool // DECSCNM

	g0, g1    *[256]byte
	activeG   int
	userTable *[256]byte

	tabStops []bool

	autowrap      bool
	cursorVisible bool
	originMode    bool
	insertMode    bool

	savedCursorX, savedCursorY int
	savedOriginMode            bool

	kbdMode KeyboardGraphicsMode
	vtMode  VTMode
	vtPid   int
	pendingNewVT int

	tty *TTY

	selection Selection
}

func newVC(vts *VTSubsystem, num, rows, cols int) *VC {
	vc := &VC{
		num:           num,
		vts:           vts,
		shadow:        NewScreenBuffer(cols, rows),
		rows:          rows,
		cols:          cols,
		scrollBottom:  rows,
		state:         StateNormal,
		attrs:         defaultAttrs(),
		g0:            &CharsetLatin1,
		g1:            &CharsetGraphics,
		autowrap:      true,
		cursorVisible: true,
		tabStops:      defaultTabStops(cols),
	}
	return vc
}

func defaultTabStops(cols int) []bool {
	stops := make([]bool, cols)
	for i := 0; i < cols; i += 8 {
		stops[i] = true
	}
	return stops
}

func (vc *VC) screen() *ScreenBuffer {
	if vc.video != nil {
		return vc.video
	}
	return vc.shadow
}

// Scrollback and Scrollfront page the display into/out of scrollback
// history (console.c's scrollback()/scrollfront(), restricted there to
// fg_console via set_origin's currcons check -- here that's simply
// whichever VC currently owns the physical screen).
func (vc *VC) Scrollback(lines int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.video == nil {
		return
	}
	vc.video.Scrollback(lines)
}

func (vc *VC) Scrollfront(lines int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.video == nil {
		return
	}
	vc.video.Scrollfront(lines)
}

func (vc *VC) eraseCell() Cell {
	return makeCell(' ', vc.attrs.computeByte(vc.screenMode))
}

// setScrollLock mirrors the TTY's stopped bit onto a notional SCROLLOCK
// LED state; hooked from the flow-control path (§4.1 step 5).
func (vc *VC) setScrollLock(on bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.vts != nil && vc.vts.kbd != nil {
		vc.vts.kbd.setLED(ledScrollLock, on)
	}
}

// VTSubsystem owns the fixed console array and the single physical screen
// (§2 "Console & VT Emulator").
type VTSubsystem struct {
	mu        sync.Mutex
	consoles  [numConsoles]*VC
	fg        int
	physical  *ScreenBuffer
	kbd       *Keyboard
	signaler  SignalSender
	speaker   *Speaker

	waitActive map[int][]chan struct{}

	blankAfter   int // ticks of inactivity before blanking; 0 disables
	idleTicks    int
	blanked      bool
	savedForeground []Cell

	// outputMirror, when set, receives a copy of every byte buffer written
	// to the foreground console. Used by the real-terminal CLI bridge
	// (terminal_host.go) to let the host's own terminal emulator render
	// the VT102 stream alongside the kernel's own parser, the way a serial
	// console's far end renders what the near end sends.
	outputMirror func(buf []byte)
}

// SetOutputMirror installs (or clears, with nil) the foreground-console
// output tap described above.
func (vts *VTSubsystem) SetOutputMirror(fn func(buf []byte)) {
	vts.mu.Lock()
	defer vts.mu.Unlock()
	vts.outputMirror = fn
}

func NewVTSubsystem(rows, cols int) *VTSubsystem {
	vts := &VTSubsystem{
		physical:   NewScreenBuffer(cols, rows),
		waitActive: make(map[int][]chan struct{}),
	}
	for i := range vts.consoles {
		vts.consoles[i] = newVC(vts, i, rows, cols)
	}
	vts.consoles[0].video = vts.physical
	return vts
}

func (vts *VTSubsystem) Foreground() *VC {
	vts.mu.Lock()
	defer vts.mu.Unlock()
	return vts.consoles[vts.fg]
}

func (vts *VTSubsystem) Console(n int) *VC {
	if n < 0 || n >= numConsoles {
		return nil
	}
	vts.mu.Lock()
	defer vts.mu.Unlock()
	return vts.consoles[n]
}

// Activate drives change_console(n) (§4.2 "VC switching handshake"). It
// returns immediately if the outgoing VC must wait for a controlling
// process's VT_RELDISP acknowledgement.
func (vts *VTSubsystem) Activate(n int) {
	vts.mu.Lock()
	cur := vts.fg
	outgoing := vts.consoles[cur]
	vts.mu.Unlock()

	if n == cur {
		return
	}

	outgoing.mu.Lock()
	managed := outgoing.vtMode == VTProcess
	pid := outgoing.vtPid
	outgoing.mu.Unlock()

	if managed {
		if vts.signaler != nil {
			vts.signaler.SendSignalToGroup(pid, SIGTTIN) // relsig: release request
			if vts.signaler.IsOrphaned(pid) {
				outgoing.mu.Lock()
				outgoing.vtMode = VTAuto
				outgoing.mu.Unlock()
				if vts.kbd != nil {
					vts.kbd.mode = KBXlate
				}
				vts.completeChangeConsole(n)
				return
			}
		}
		outgoing.mu.Lock()
		outgoing.pendingNewVT = n
		outgoing.mu.Unlock()
		return
	}
	vts.completeChangeConsole(n)
}

// ReleaseDisplay implements the VT_RELDISP acknowledgement: 0 aborts the
// pending switch, non-zero completes it.
func (vts *VTSubsystem) ReleaseDisplay(n int, arg int) {
	vc := vts.Console(n)
	if vc == nil {
		return
	}
	vc.mu.Lock()
	target := vc.pendingNewVT
	vc.pendingNewVT = 0
	vc.mu.Unlock()
	if arg == 0 || target == 0 {
		return
	}
	vts.completeChangeConsole(target)
}

func (vts *VTSubsystem) completeChangeConsole(n int) {
	vts.mu.Lock()
	cur := vts.fg
	outgoing := vts.consoles[cur]
	incoming := vts.consoles[n]
	vts.mu.Unlock()

	outgoing.mu.Lock()
	outgoing.shadow.Restore(vts.physical.Snapshot())
	outgoing.video = nil
	outgoing.mu.Unlock()

	incoming.mu.Lock()
	vts.physical.Restore(incoming.shadow.Snapshot())
	incoming.video = vts.physical
	acquiring := incoming.vtMode == VTProcess
	pid := incoming.vtPid
	incoming.mu.Unlock()

	vts.mu.Lock()
	vts.fg = n
	vts.mu.Unlock()

	if acquiring && vts.signaler != nil {
		vts.signaler.SendSignalToGroup(pid, SIGCONT) // acqsig
	}
	vts.wake(n)
}

func (vts *VTSubsystem) WaitActive(n int, cancel <-chan struct{}) {
	vts.mu.Lock()
	if vts.fg == n {
		vts.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	vts.waitActive[n] = append(vts.waitActive[n], ch)
	vts.mu.Unlock()
	select {
	case <-ch:
	case <-cancel:
	}
}

func (vts *VTSubsystem) wake(n int) {
	vts.mu.Lock()
	waiters := vts.waitActive[n]
	delete(vts.waitActive, n)
	vts.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// Tick advances the screen-blanking timer by one unit (§4.2 "Screen
// blanking"); call this from a periodic driver loop.
func (vts *VTSubsystem) Tick() {
	vts.mu.Lock()
	defer vts.mu.Unlock()
	if vts.blankAfter == 0 || vts.blanked {
		return
	}
	vts.idleTicks++
	if vts.idleTicks >= vts.blankAfter {
		fg := vts.consoles[vts.fg]
		vts.savedForeground = vts.physical.Snapshot()
		vts.physical.Clear(fg.eraseCell())
		vts.blanked = true
	}
}

func (vts *VTSubsystem) NoteActivity() {
	vts.mu.Lock()
	defer vts.mu.Unlock()
	vts.idleTicks = 0
	if vts.blanked {
		vts.physical.Restore(vts.savedForeground)
		vts.blanked = false
	}
}
