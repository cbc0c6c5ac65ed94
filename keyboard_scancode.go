// keyboard_scancode.go - scancode decoder (§4.3 "Scancode decode", §6 "Wire layout (keyboard)")

package main

// scancode prefix-memory states (§3 "one byte of prefix memory").
const (
	prefixNone = iota
	prefixE0
	prefixE1
)

// pause sequence recognized as a whole (§4.3): E1 1D 45 E1 9D C5.
var pauseSequence = []byte{0x1d, 0x45, 0xe1, 0x9d, 0xc5}

// fakeShiftScancodes are emitted by real keyboards around Ins/Del/arrow
// keys and must be silently discarded (§4.3).
var fakeShiftScancodes = map[byte]bool{
	0x2a: true, 0xaa: true, 0xb6: true, 0x36: true,
}

// extendedKeysymBase is added to an E0-prefixed scancode's low 7 bits to
// produce a keysym >= 96 (§4.3 "remaps via an 8-bit extended table").
const extendedKeysymBase = 96

// decodeResult is one fully decoded key transition.
type decodeResult struct {
	keysym  int
	release bool
	ok      bool // false when the byte was consumed into decoder state only
}

// feed advances the scancode decoder by one raw byte from port 0x60.
func (k *Keyboard) feed(b byte) decodeResult {
	switch k.prefix {
	case prefixE0:
		k.prefix = prefixNone
		if fakeShiftScancodes[b] {
			return decodeResult{}
		}
		release := b&0x80 != 0
		code := b &^ 0x80
		return decodeResult{keysym: extendedKeysymBase + int(code&0x7f), release: release, ok: true}

	case prefixE1:
		k.pauseBuf = append(k.pauseBuf, b)
		if len(k.pauseBuf) >= len(pauseSequence) {
			matched := true
			for i, pb := range pauseSequence {
				if k.pauseBuf[i] != pb {
					matched = false
					break
				}
			}
			k.pauseBuf = nil
			k.prefix = prefixNone
			if matched {
				return decodeResult{keysym: keysymPause, ok: true}
			}
		}
		return decodeResult{}
	}

	switch b {
	case 0xe0:
		k.prefix = prefixE0
		return decodeResult{}
	case 0xe1:
		k.prefix = prefixE1
		k.pauseBuf = k.pauseBuf[:0]
		return decodeResult{}
	}

	release := b&0x80 != 0
	code := b &^ 0x80
	return decodeResult{keysym: int(code), release: release, ok: true}
}
