// vc_driver.go - HostDriver adapter binding a console TTY to its VC (§3
// "console TTYs are attached to a virtual console instead of a serial
// line", §6).

package main

// VCDriver is the HostDriver a console-line TTY is opened with: writes go
// straight into the VT102 parser, and the KD/VT ioctl family is left for
// tty_ioctl.go's existing t.console fallthrough to handle, so Ioctl here
// never claims anything.
type VCDriver struct {
	vc *VC
}

func (d *VCDriver) Write(tty *TTY, buf []byte) (int, error) {
	d.vc.Write(buf)

	d.vc.mu.Lock()
	vts := d.vc.vts
	num := d.vc.num
	d.vc.mu.Unlock()
	if vts != nil {
		vts.mu.Lock()
		isFg := vts.fg == num
		mirror := vts.outputMirror
		vts.mu.Unlock()
		if isFg && mirror != nil {
			mirror(buf)
		}
	}

	return len(buf), nil
}

// Hangup resets the console to its initial VT state, mirroring what a real
// serial line's hangup does to its line discipline (§4.1 "hangup(line)").
func (d *VCDriver) Hangup(tty *TTY) {
	d.vc.mu.Lock()
	d.vc.reset()
	d.vc.mu.Unlock()
}

// Throttle is a no-op: the virtual console's screen buffer has no backlog
// of its own to stall, unlike a real serial chip's FIFO.
func (d *VCDriver) Throttle(tty *TTY, state ThrottleState) {}

// Ioctl never claims anything; tty_ioctl.go already tries t.console.ioctl
// before falling through to the attached driver.
func (d *VCDriver) Ioctl(tty *TTY, cmd uint32, arg any) (any, bool, error) {
	return nil, false, nil
}
