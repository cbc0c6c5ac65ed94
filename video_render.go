// video_render.go - rasterizes a VC's screen buffer into RGBA pixels for
// VideoOutput.UpdateFrame (§6 "Character generator"), combining
// consoleFont8x16 with the 16-entry hardware color table computeByte packs
// attributes into (§4.2 "Attributes").

package main

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

const (
	glyphWidth  = 8
	glyphHeight = 16
)

// vgaPalette16 is the standard VGA 16-color text-mode palette, indexed the
// way computeByte packs a cell's attribute byte: bits 2-0 plus the
// intensity bit select one of these 16 entries.
var vgaPalette16 = [16][3]byte{
	{0x00, 0x00, 0x00}, {0x00, 0x00, 0xAA}, {0x00, 0xAA, 0x00}, {0x00, 0xAA, 0xAA},
	{0xAA, 0x00, 0x00}, {0xAA, 0x00, 0xAA}, {0xAA, 0x55, 0x00}, {0xAA, 0xAA, 0xAA},
	{0x55, 0x55, 0x55}, {0x55, 0x55, 0xFF}, {0x55, 0xFF, 0x55}, {0x55, 0xFF, 0xFF},
	{0xFF, 0x55, 0x55}, {0xFF, 0x55, 0xFF}, {0xFF, 0xFF, 0x55}, {0xFF, 0xFF, 0xFF},
}

// RenderFrame rasterizes vc's current screen (shadow or physical, whichever
// screen() returns) into an RGBA buffer sized cols*8 by rows*16, drawing
// the cursor cell with foreground and background swapped when the cursor
// is visible. nil vc renders as a single
// black pixel, so callers never need a nil check before UpdateFrame.
func RenderFrame(vc *VC) (pixels []byte, width, height int) {
	if vc == nil {
		return []byte{0, 0, 0, 0xFF}, 1, 1
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	screen := vc.screen()
	cols, rows := screen.Cols(), screen.Rows()
	width = cols * glyphWidth
	height = rows * glyphHeight
	pixels = make([]byte, width*height*4)

	showCursor := vc.cursorVisible && !screen.Viewing()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			cell := screen.ViewCell(x, y)
			ch := cell.Char()
			attr := cell.Attr()
			fgIdx := attr & 0x0F
			bgIdx := (attr >> 4) & 0x07
			if showCursor && x == vc.cursorX && y == vc.cursorY {
				fgIdx, bgIdx = bgIdx, fgIdx
			}
			fg := vgaPalette16[fgIdx]
			bg := vgaPalette16[bgIdx]
			base := int(ch) * glyphHeight

			for row := 0; row < glyphHeight; row++ {
				bits := consoleFont8x16[base+row]
				rowOff := ((y*glyphHeight + row) * width) * 4
				for col := 0; col < glyphWidth; col++ {
					px := bg
					if bits&(0x80>>uint(col)) != 0 {
						px = fg
					}
					off := rowOff + (x*glyphWidth+col)*4
					pixels[off] = px[0]
					pixels[off+1] = px[1]
					pixels[off+2] = px[2]
					pixels[off+3] = 0xFF
				}
			}
		}
	}
	return pixels, width, height
}

// SaveSnapshotPNG renders vc, upscales it by scale using nearest-neighbor
// (the same blocky pixel look the ebiten backend's integer window scaling
// gives a live session), and writes it to path as a PNG. A debug/CLI
// convenience for capturing what a console looked like without a GUI.
func SaveSnapshotPNG(path string, vc *VC, scale int) error {
	scale = ClampScale(scale)
	pixels, width, height := RenderFrame(vc)

	src := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * 4
			src.Set(x, y, color.RGBA{pixels[off], pixels[off+1], pixels[off+2], pixels[off+3]})
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	f, err := os.Create(path)
	if err != nil {
		return newKernelError("snapshot", "create file", err)
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return newKernelError("snapshot", "encode png", err)
	}
	return nil
}
