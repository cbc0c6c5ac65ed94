// kernel_console.go - wiring that assembles the VT/keyboard/console-TTY
// subsystems into a Kernel (§9 Design Notes strategy: "a single opaque
// context threaded through every subsystem entry point").

package main

// SetupVirtualConsoles builds the VC array and keyboard, opens one
// console-line TTY per VC through the ordinary Kernel.Open path, and cross
// links each TTY<->VC pair (§3 "console TTYs keep a back-pointer", §6). It
// installs a Speaker for KIOCSOUND/KDMKTONE and stores the finished
// subsystems on k so vc.ioctl's vts.kbd/vts.speaker lookups resolve.
func SetupVirtualConsoles(k *Kernel, rows, cols int, signaler SignalSender) (*VTSubsystem, *Keyboard, error) {
	vts := NewVTSubsystem(rows, cols)
	kbd := NewKeyboard(vts)
	vts.kbd = kbd
	vts.signaler = signaler

	speaker, err := NewSpeaker()
	if err != nil {
		return nil, nil, newKernelError("console setup", "speaker init", err)
	}
	vts.speaker = speaker

	for i := 0; i < numConsoles; i++ {
		vc := vts.Console(i)
		tty, err := k.Open(i, &VCDriver{vc: vc}, signaler)
		if err != nil {
			return nil, nil, err
		}
		vc.mu.Lock()
		vc.tty = tty
		vc.mu.Unlock()
		tty.mu.Lock()
		tty.console = vc
		tty.mu.Unlock()
	}

	k.mu.Lock()
	k.vts = vts
	k.kbd = kbd
	k.mu.Unlock()

	return vts, kbd, nil
}

// DeliverHostByte feeds one already-translated host byte (ASCII or part of
// an escape sequence) into the foreground console's TTY raw queue. Host
// adapters that already decode keys to bytes themselves - the ebiten
// backend's key handler, the stdin raw-mode bridge - use this instead of
// the scancode decoder, which is reserved for synthetic/hardware-style
// scancode input (§4.3).
func (vts *VTSubsystem) DeliverHostByte(b byte) {
	fg := vts.Foreground()
	if fg == nil {
		return
	}
	fg.mu.Lock()
	tty := fg.tty
	fg.mu.Unlock()
	if tty == nil {
		return
	}
	tty.rawQ.PutByte(b, false)
	tty.k.bh.Notify(tty)
	vts.NoteActivity()
}
