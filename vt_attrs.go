// vt_attrs.go - SGR attribute computation (§4.2 "Attributes")

package main

// Intensity levels a VC's current attribute set can hold.
type Intensity int

const (
	IntensityHalf Intensity = iota
	IntensityNormal
	IntensityBold
)

// vtColorTable maps the 8 ANSI color indices (30-37/40-47 mod 8) to the
// 16-entry hardware palette index (§4.2 "mapped through a 16-entry color
// table").
var vtColorTable = [8]byte{0, 4, 2, 6, 1, 5, 3, 7}

// Attrs holds the SGR-controlled rendition state of one virtual console.
type Attrs struct {
	Intensity  Intensity
	Underline  bool
	Blink      bool
	Reverse    bool
	Foreground byte // 0-15 logical color index
	Background byte
	ULColor    byte // color substituted for fg when Underline set
	HalfColor  byte // color substituted for fg when IntensityHalf
	Default    bool // true for colors 39/49, cheapens reverse's special case
}

func defaultAttrs() Attrs {
	return Attrs{
		Intensity:  IntensityNormal,
		Foreground: 7,
		Background: 0,
		ULColor:    7,
		HalfColor:  7,
		Default:    true,
	}
}

// computeByte recomputes the packed attribute byte (bit7 blink, bits 6-4
// bg, bit3 intensity, bits 2-0 fg) from Attrs and the VC's screen-mode
// flag (DECSCNM, reverse video), per §4.2 "Attributes".
func (a Attrs) computeByte(screenMode bool) byte {
	fg := a.Foreground & 0x07
	bg := a.Background & 0x07
	bold := byte(0)

	switch a.Intensity {
	case IntensityBold:
		bold = 1
	case IntensityHalf:
		fg = a.HalfColor & 0x07
	}
	if a.Underline {
		fg = a.ULColor & 0x07
	}

	if a.Reverse != screenMode {
		fg, bg = bg, fg
	}

	attr := (bg << 4) | fg
	if bold == 1 {
		attr ^= 0x08
	}
	if a.Blink {
		attr ^= 0x80
	}
	return attr
}

// invertByte implements console.c's invert_screen (the can_do_color branch:
// `(*p & 0x88) | (((*p>>4)|(*p<<4)) & 0x77)`), a nibble swap that preserves
// the blink (0x80) and bold (0x08) bits and exchanges foreground/background
// color otherwise. The !can_do_color fallback
// (`*p ^= *p & 0x07 == 1 ? 0x70 : 0x77`) only matters on monochrome adapters;
// this emulator models only the 16-color CGA/EGA attribute byte (§3's Attrs
// has no mono mode), so the color-capable branch is the only one reachable
// here and is the one §9's Open Question resolves to.
func invertByte(attr byte) byte {
	return (attr & 0x88) | (((attr >> 4) | (attr << 4)) & 0x77)
}
