// tty_termios.go - termios mode flags and special-character table (§3, §6)
//
// This whole module targets Linux/x86 PC hardware (scancodes on ports
// 0x60/0x64, VGA text memory at 0xB8000) by construction, so termios flag
// values are taken from the Linux constant set in golang.org/x/sys/unix.

package main

import "golang.org/x/sys/unix"

// Termios mirrors the POSIX struct the spec names in §3 ("A termios record
// of mode flags ... and a special-character table"). Flag values are taken
// from golang.org/x/sys/unix rather than invented, the way the wider
// example pack pulls OS-level constants from that package instead of
// hand-rolling them.
type Termios struct {
	Iflag uint32 // input flags: IGNBRK, BRKINT, IGNPAR, PARMRK, ISTRIP, INLCR, IGNCR, ICRNL, IUCLC, IXON, IXANY, IXOFF, IMAXBEL
	Oflag uint32 // output flags: OPOST, ONLCR, OCRNL, ONOCR, ONLRET, OLCUC, XTABS(TABDLY)
	Cflag uint32 // control flags: CSIZE, CSTOPB, CREAD, PARENB, PARODD, HUPCL, CLOCAL
	Lflag uint32 // local flags: ISIG, ICANON, ECHO, ECHOE, ECHOK, ECHONL, ECHOCTL, ECHOPRT, ECHOKE, NOFLSH, TOSTOP, IEXTEN

	Cc [NumSpecialChars]byte // special-character table, indexed by VINTR, VQUIT, ...

	// VMIN/VTIME in non-canonical mode live in Cc[VMIN] and Cc[VTIME], as
	// in POSIX; there are no separate fields for them.
}

// Special-character table indices (POSIX cc_t slots the spec references:
// ERASE, WERASE, KILL, LNEXT, REPRINT, INTR, QUIT, SUSP, START, STOP, EOF,
// EOL, EOL2).
const (
	VINTR = iota
	VQUIT
	VERASE
	VKILL
	VEOF
	VTIME
	VMIN
	VSWTC
	VSTART
	VSTOP
	VSUSP
	VEOL
	VREPRINT
	VDISCARD
	VWERASE
	VLNEXT
	VEOL2
	NumSpecialChars
)

// Input flags.
const (
	IGNBRK uint32 = unix.IGNBRK
	BRKINT uint32 = unix.BRKINT
	IGNPAR uint32 = unix.IGNPAR
	PARMRK uint32 = unix.PARMRK
	ISTRIP uint32 = unix.ISTRIP
	INLCR  uint32 = unix.INLCR
	IGNCR  uint32 = unix.IGNCR
	ICRNL  uint32 = unix.ICRNL
	IUCLC  uint32 = unix.IUCLC
	IXON   uint32 = unix.IXON
	IXANY  uint32 = unix.IXANY
	IXOFF  uint32 = unix.IXOFF
)

// Output flags. XTABS is modeled on TABDLY==TAB3 (expand tabs to spaces),
// the historical BSD/Linux meaning the spec's "XTABS expands \t" refers to.
const (
	OPOST  uint32 = unix.OPOST
	ONLCR  uint32 = unix.ONLCR
	OCRNL  uint32 = unix.OCRNL
	ONOCR  uint32 = unix.ONOCR
	ONLRET uint32 = unix.ONLRET
	OLCUC  uint32 = unix.OLCUC
	XTABS  uint32 = unix.TABDLY
)

// Control flags.
const (
	CSIZE  uint32 = unix.CSIZE
	CS8    uint32 = unix.CS8
	CSTOPB uint32 = unix.CSTOPB
	CREAD  uint32 = unix.CREAD
	PARENB uint32 = unix.PARENB
	PARODD uint32 = unix.PARODD
	HUPCL  uint32 = unix.HUPCL
	CLOCAL uint32 = unix.CLOCAL
)

// Local flags.
const (
	ISIG    uint32 = unix.ISIG
	ICANON  uint32 = unix.ICANON
	ECHO    uint32 = unix.ECHO
	ECHOE   uint32 = unix.ECHOE
	ECHOK   uint32 = unix.ECHOK
	ECHONL  uint32 = unix.ECHONL
	ECHOCTL uint32 = unix.ECHOCTL
	ECHOPRT uint32 = unix.ECHOPRT
	ECHOKE  uint32 = unix.ECHOKE
	NOFLSH  uint32 = unix.NOFLSH
	TOSTOP  uint32 = unix.TOSTOP
	IEXTEN  uint32 = unix.IEXTEN
)

// DefaultTermios matches stty sane-ish defaults: canonical mode, echo,
// signals, ONLCR/OPOST output processing, ICRNL input translation.
func DefaultTermios() Termios {
	t := Termios{
		Iflag: ICRNL | IXON,
		Oflag: OPOST | ONLCR,
		Cflag: CS8 | CREAD | CLOCAL,
		Lflag: ISIG | ICANON | ECHO | ECHOE | ECHOK | ECHOCTL | IEXTEN,
	}
	t.Cc[VINTR] = 0x03    // ^C
	t.Cc[VQUIT] = 0x1c    // ^\
	t.Cc[VERASE] = 0x7f   // DEL
	t.Cc[VKILL] = 0x15    // ^U
	t.Cc[VEOF] = 0x04     // ^D
	t.Cc[VTIME] = 0
	t.Cc[VMIN] = 1
	t.Cc[VSTART] = 0x11   // ^Q
	t.Cc[VSTOP] = 0x13    // ^S
	t.Cc[VSUSP] = 0x1a    // ^Z
	t.Cc[VEOL] = 0xff     // disabled
	t.Cc[VREPRINT] = 0x12 // ^R
	t.Cc[VDISCARD] = 0x0f // ^O
	t.Cc[VWERASE] = 0x17  // ^W
	t.Cc[VLNEXT] = 0x16   // ^V
	t.Cc[VEOL2] = 0xff    // disabled
	return t
}
