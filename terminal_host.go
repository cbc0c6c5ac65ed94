//go:build !windows

// terminal_host.go - bridges the host's own real terminal into the foreground
// console (§4.2 "Host-bridge CLI mode", SPEC_FULL AMBIENT STACK/DOMAIN STACK:
// x/term raw-mode handling). Keystrokes read from the host's stdin are fed to
// the foreground VC exactly like the ebiten backend's key handler
// (kernel_console.go's VTSubsystem.DeliverHostByte); output written by the
// foreground console is mirrored back to the host's real stdout unmodified,
// letting the host's own terminal emulator render the VT102 stream the same
// way a physical serial console's far end would.

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// TerminalHost is only instantiated from main.go's -cli flag; it never
// appears in tests, which drive the kernel through DeliverHostByte directly.
type TerminalHost struct {
	vts          *VTSubsystem
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

// NewTerminalHost creates a host adapter that reads stdin into vts's
// foreground console and mirrors its output back to stdout.
func NewTerminalHost(vts *VTSubsystem) *TerminalHost {
	return &TerminalHost{
		vts:    vts,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts the host's stdin in raw mode (so the kernel's own line
// discipline owns echo and line editing, not the host terminal driver),
// installs the output mirror, and begins reading in a goroutine. Call Stop
// to restore stdin.
func (h *TerminalHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	h.vts.SetOutputMirror(func(buf []byte) {
		os.Stdout.Write(buf)
	})

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				h.vts.DeliverHostByte(buf[0])
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the stdin reading goroutine, clears the output mirror, and
// restores the host's terminal to its prior state.
func (h *TerminalHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	h.vts.SetOutputMirror(nil)
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
