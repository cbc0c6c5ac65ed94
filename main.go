// main.go - boot entry point: assembles a Kernel (TTY core, VT/keyboard
// console subsystem, SCSI mid-layer) and drives it from either a real
// graphical window (ebiten backend) or headlessly under test, optionally
// bridging the host's own terminal for keyboard-only interactive use
// (§4.2 "Host-bridge CLI mode").

package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// validateResolutionOverride accepts a width/height pair only when both are
// positive; a partial override (only one of the two set) is rejected rather
// than silently falling back to a default for the unset dimension.
func validateResolutionOverride(width, height int) (int, int, bool) {
	if (width > 0) != (height > 0) {
		return 0, 0, false
	}
	if width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// fitScale picks the largest integer scale (clamped via ClampScale) that
// keeps a baseW x baseH frame within a requested window resolution.
func fitScale(baseW, baseH, wantW, wantH int) int {
	if baseW <= 0 || baseH <= 0 {
		return 1
	}
	sw := wantW / baseW
	sh := wantH / baseH
	scale := sw
	if sh < scale {
		scale = sh
	}
	return ClampScale(scale)
}

func main() {
	rows := flag.Int("rows", 25, "text-mode rows for every virtual console")
	cols := flag.Int("cols", 80, "text-mode columns for every virtual console")
	scale := flag.Int("scale", 2, "integer pixel scale for the video backend")
	fullscreen := flag.Bool("fullscreen", false, "start the video backend fullscreen")
	width := flag.Int("width", 0, "override window width in pixels (requires -height)")
	height := flag.Int("height", 0, "override window height in pixels (requires -width)")
	blankSeconds := flag.Int("blank-after", 0, "seconds of keyboard inactivity before the screen blanks (0 disables)")
	cli := flag.Bool("cli", false, "bridge the host's own terminal into the foreground console for keyboard/output instead of relying on the graphical window alone")
	flag.Parse()

	if *rows <= 0 || *cols <= 0 {
		fmt.Fprintln(os.Stderr, "rows and cols must be positive")
		os.Exit(1)
	}

	k := NewKernel()
	signaler := NewProcessSignaler()
	vts, _, err := SetupVirtualConsoles(k, *rows, *cols, signaler)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console setup: %v\n", err)
		os.Exit(1)
	}
	if *blankSeconds > 0 {
		vts.blankAfter = *blankSeconds * tickHz
	}

	video, err := NewVideoOutput(VIDEO_BACKEND_EBITEN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "video backend: %v\n", err)
		os.Exit(1)
	}

	baseW, baseH := *cols*glyphWidth, *rows*glyphHeight
	effScale := ClampScale(*scale)
	if w, h, ok := validateResolutionOverride(*width, *height); ok {
		effScale = fitScale(baseW, baseH, w, h)
	}

	cfg := DisplayConfig{
		Width:       baseW,
		Height:      baseH,
		Scale:       effScale,
		PixelFormat: PixelFormatRGBA,
		RefreshRate: tickHz,
		VSync:       true,
		Fullscreen:  *fullscreen,
	}
	if err := video.SetDisplayConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "display config: %v\n", err)
		os.Exit(1)
	}

	if kh, ok := video.(KeyboardInput); ok {
		kh.SetKeyHandler(vts.DeliverHostByte)
	}
	if hr, ok := video.(HardResettable); ok {
		hr.SetHardResetHandler(func() {
			fg := vts.Foreground()
			fg.mu.Lock()
			fg.reset()
			fg.mu.Unlock()
		})
	}
	if ss, ok := video.(SelectionSource); ok {
		ss.SetSelectionProvider(func() []byte {
			return vts.Foreground().SelectedText()
		})
	}
	if si, ok := video.(SelectionInput); ok {
		si.SetSelectionHandlers(
			func(x, y int) { vts.Foreground().StartSelection(x, y, SelectionChar) },
			func(x, y int) { vts.Foreground().ExtendSelection(x, y) },
			func() { vts.Foreground().ClearSelection() },
		)
	}

	var bridge *TerminalHost
	if *cli {
		bridge = NewTerminalHost(vts)
		bridge.Start()
		defer bridge.Stop()
	}

	if err := video.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "video start: %v\n", err)
		os.Exit(1)
	}
	defer video.Close()

	runDisplayLoop(video, vts)
}

// tickHz is the cooperative scheduler's tick rate: once per tick the screen
// blanking timer advances (§4.2 "Screen blanking") and a frame is rendered.
const tickHz = 60

// runDisplayLoop renders the foreground console into the video backend
// until the backend reports it has stopped (window closed or Stop called).
func runDisplayLoop(video VideoOutput, vts *VTSubsystem) {
	ticker := time.NewTicker(time.Second / tickHz)
	defer ticker.Stop()

	for range ticker.C {
		if !video.IsStarted() {
			return
		}
		vts.Tick()

		pixels, _, _ := RenderFrame(vts.Foreground())
		if err := video.UpdateFrame(pixels); err != nil {
			fmt.Fprintf(os.Stderr, "frame update: %v\n", err)
		}
	}
}
