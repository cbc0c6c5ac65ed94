// keyboard_keymap.go - keyboard state, key map and translation (§3 "Keyboard state", §4.3 "Modes"/"Translation")

package main

import "sync"

// KBMode is the keyboard delivery mode (§4.3 "Modes").
type KBMode int

const (
	KBRaw KBMode = iota
	KBXlate
	KBMediumRaw
)

// KeyType selects how a key-map entry's value is interpreted.
type KeyType byte

const (
	KTLatin KeyType = iota
	KTFn
	KTSpec
	KTPad
	KTDead
	KTConsSwitch
	KTCursor
	KTShift
	KTMeta
	KTAsciiDigit
	KTLock
	KTLowercase
	KTScroll
)

// KTScroll payload values: which way to page the console's scrollback
// history (console.c's scrll_back/scrll_forw fn-handler entries).
const (
	ScrollBack = iota
	ScrollFront
)

// KeyEntry is one key-map slot: a type tag plus an 8-bit payload.
type KeyEntry struct {
	Type  KeyType
	Value byte
}

// Special (KTSpec) values.
const (
	SpecEnter = iota
	SpecEsc
	SpecBackspace
	SpecTab
	SpecCapsLock
	SpecNumLock
	SpecScrollLock
)

// Shift-state / lock-state bits.
const (
	ShiftBit   = 1 << 0
	CtrlBit    = 1 << 1
	AltBit     = 1 << 2
	AltGrBit   = 1 << 3
	LockCaps   = 1 << 0
	LockNum    = 1 << 1
	LockScroll = 1 << 2
)

const (
	ledScrollLock = LockScroll
	ledNumLock    = LockNum
	ledCapsLock   = LockCaps
)

const keysymPause = 119

// Keyboard is the scancode-to-keysym decoder plus key-map translator
// feeding the foreground console's TTY raw queue (§3, §4.3).
type Keyboard struct {
	mu sync.Mutex

	prefix   int
	pauseBuf []byte

	depressed [256]bool
	modCount  [8]int

	shiftState byte
	lockState  byte
	ledVal     byte

	deadKey    byte
	padAccum   int
	padPending bool

	mode       KBMode
	metaEscape bool
	autorepeat bool

	keymap       [16][256]KeyEntry
	functionKeys [256]string
	diacritics   map[byte]map[byte]byte

	vts *VTSubsystem
}

func NewKeyboard(vts *VTSubsystem) *Keyboard {
	k := &Keyboard{vts: vts, autorepeat: true}
	k.installDefaultKeymap()
	k.diacritics = make(map[byte]map[byte]byte, len(accentTable))
	for accent, bases := range accentTable {
		row := make(map[byte]byte, len(bases))
		for base, result := range bases {
			row[base] = result
		}
		k.diacritics[accent] = row
	}
	return k
}

// usRowLetters/usRowDigits are the standard PC scancode set 1 positions
// for the alphanumeric rows, used to build a minimal but functional US
// QWERTY layout (§3 "key map (indexed by shift-state, then keysym)").
var usRowLetters = map[int]byte{
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y', 0x16: 'u',
	0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h', 0x24: 'j',
	0x25: 'k', 0x26: 'l',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b', 0x31: 'n', 0x32: 'm',
}

var usRowDigits = map[int]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
}

// installDefaultKeymap fills shift-index 0 (unshifted) and 1 (shifted)
// with a usable US layout, plus the universal control keys every row
// shares (§4.3 "Translation").
func (k *Keyboard) installDefaultKeymap() {
	for scan, ch := range usRowLetters {
		k.keymap[0][scan] = KeyEntry{Type: KTLowercase, Value: ch}
		k.keymap[ShiftBit][scan] = KeyEntry{Type: KTLatin, Value: ch - ('a' - 'A')}
	}
	for scan, ch := range usRowDigits {
		k.keymap[0][scan] = KeyEntry{Type: KTAsciiDigit, Value: ch}
	}
	k.keymap[0][0x39] = KeyEntry{Type: KTLatin, Value: ' '}
	k.keymap[0][0x1c] = KeyEntry{Type: KTSpec, Value: SpecEnter}
	k.keymap[0][0x01] = KeyEntry{Type: KTSpec, Value: SpecEsc}
	k.keymap[0][0x0e] = KeyEntry{Type: KTSpec, Value: SpecBackspace}
	k.keymap[0][0x0f] = KeyEntry{Type: KTSpec, Value: SpecTab}
	k.keymap[0][0x3a] = KeyEntry{Type: KTLock, Value: SpecCapsLock}
	k.keymap[0][0x45] = KeyEntry{Type: KTLock, Value: SpecNumLock}
	k.keymap[0][0x46] = KeyEntry{Type: KTLock, Value: SpecScrollLock}

	k.keymap[0][0x2a] = KeyEntry{Type: KTShift, Value: 0} // left shift
	k.keymap[0][0x36] = KeyEntry{Type: KTShift, Value: 0} // right shift
	k.keymap[0][0x1d] = KeyEntry{Type: KTShift, Value: 1} // left ctrl
	k.keymap[0][0x38] = KeyEntry{Type: KTShift, Value: 2} // left alt

	for row := 1; row < len(k.keymap); row++ {
		for _, scan := range []int{0x39, 0x1c, 0x01, 0x0e, 0x0f, 0x3a, 0x45, 0x46, 0x2a, 0x36, 0x1d, 0x38} {
			k.keymap[row][scan] = k.keymap[0][scan]
		}
	}

	for i := 0; i < 12; i++ {
		k.keymap[0][0x3b+i] = KeyEntry{Type: KTFn, Value: byte(i)}
		k.functionKeys[i] = ""
	}

	// Extended (E0-prefixed) cursor keys, consistent with extendedKeysymBase.
	k.keymap[0][extendedKeysymBase+0x48] = KeyEntry{Type: KTCursor, Value: 'A'} // up
	k.keymap[0][extendedKeysymBase+0x50] = KeyEntry{Type: KTCursor, Value: 'B'} // down
	k.keymap[0][extendedKeysymBase+0x4d] = KeyEntry{Type: KTCursor, Value: 'C'} // right
	k.keymap[0][extendedKeysymBase+0x4b] = KeyEntry{Type: KTCursor, Value: 'D'} // left

	// Shift+PageUp/PageDown page the console's scrollback history, same
	// binding as console.c's default keymap (scrll_back/scrll_forw).
	k.keymap[ShiftBit][extendedKeysymBase+0x49] = KeyEntry{Type: KTScroll, Value: ScrollBack}
	k.keymap[ShiftBit][extendedKeysymBase+0x51] = KeyEntry{Type: KTScroll, Value: ScrollFront}
}

func (k *Keyboard) setMode(m int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch m {
	case kbModeRaw:
		k.mode = KBRaw
	case kbModeMediumRaw:
		k.mode = KBMediumRaw
	default:
		k.mode = KBXlate
	}
}

func (k *Keyboard) getMode() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch k.mode {
	case KBRaw:
		return kbModeRaw
	case KBMediumRaw:
		return kbModeMediumRaw
	default:
		return kbModeXlate
	}
}

func (k *Keyboard) ledState() byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ledVal
}

func (k *Keyboard) setLEDMask(mask byte) {
	k.mu.Lock()
	k.ledVal = mask
	k.mu.Unlock()
}

func (k *Keyboard) setLED(bit byte, on bool) {
	k.mu.Lock()
	if on {
		k.ledVal |= bit
	} else {
		k.ledVal &^= bit
	}
	k.mu.Unlock()
}

// shiftIndex is (shift_state XOR lock_state), the effective key-map row
// (§4.3 "Translation").
func (k *Keyboard) shiftIndex() int {
	return int(k.shiftState^k.lockState) & 0x0f
}

// accentTable combines a dead key with the following base character
// (§4.3 "Dead keys combine with the next base character via an accent
// table").
var accentTable = map[byte]map[byte]byte{
	'`': {'a': 0xe0, 'e': 0xe8, 'i': 0xec, 'o': 0xf2, 'u': 0xf9},
	'\'': {'a': 0xe1, 'e': 0xe9, 'i': 0xed, 'o': 0xf3, 'u': 0xfa},
	'^': {'a': 0xe2, 'e': 0xea, 'i': 0xee, 'o': 0xf4, 'u': 0xfb},
	'~': {'a': 0xe3, 'n': 0xf1, 'o': 0xf5},
	'"': {'a': 0xe4, 'e': 0xeb, 'i': 0xef, 'o': 0xf6, 'u': 0xfc},
}

// composeDeadKey combines a pending dead-key accent with the following base
// character, consulting the keyboard's own diacritics table (§6 "KDGKBDIACR/
// KDSKBDIACR") rather than the built-in defaults, so edits made through that
// ioctl take effect.
func (k *Keyboard) composeDeadKey(accent, base byte) byte {
	if base == ' ' {
		return accent
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if table, ok := k.diacritics[accent]; ok {
		if composed, ok := table[base]; ok {
			return composed
		}
	}
	return base
}
