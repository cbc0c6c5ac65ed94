package main

import "testing"

// newTestTTY builds a bare TTY with default termios, bypassing Kernel.Open's
// driver/discipline wiring since these tests drive the N_TTY handler
// functions directly.
func newTestTTY() *TTY {
	k := NewKernel()
	return k.AllocTTY(1)
}

// TestNTTY_CanonicalEchoAndErase mirrors spec scenario 1 ("Canonical echo &
// erase"): ICANON|ECHO|ECHOE, ERASE='\b', input a,b,c,\b,\n. A 16-byte read
// returns a,b,\n (3 bytes); write_q accumulates the 8-byte echo trace
// a,b,c,\b,' ',\b,\r,\n; the cursor column returns to 0.
func TestNTTY_CanonicalEchoAndErase(t *testing.T) {
	tty := newTestTTY()
	tty.termios = DefaultTermios()
	tty.termios.Cc[VERASE] = '\b'

	for _, b := range []byte{'a', 'b', 'c', '\b', '\n'} {
		tty.processInputByte(b, false)
	}

	buf := make([]byte, 16)
	n, err := NTTYDiscipline{}.Read(tty, buf, nil)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes read, got %d (%q)", n, buf[:n])
	}
	want := []byte{'a', 'b', '\n'}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got %q want %q", i, buf[i], want[i])
		}
	}

	gotOut := tty.wrQ.PeekRange(tty.wrQ.Tail())
	wantOut := []byte{'a', 'b', 'c', '\b', ' ', '\b', '\r', '\n'}
	if len(gotOut) != len(wantOut) {
		t.Fatalf("write_q length: got %d (%q) want %d (%q)", len(gotOut), gotOut, len(wantOut), wantOut)
	}
	for i := range wantOut {
		if gotOut[i] != wantOut[i] {
			t.Fatalf("write_q byte %d: got %q want %q", i, gotOut[i], wantOut[i])
		}
	}

	tty.mu.Lock()
	col := tty.column
	tty.mu.Unlock()
	if col != 0 {
		t.Fatalf("expected column 0 after trailing newline, got %d", col)
	}
}

// TestNTTY_TabExpansion mirrors spec scenario 3: OPOST|XTABS, column=3,
// writing a single tab expands to 5 spaces and advances column to 8.
func TestNTTY_TabExpansion(t *testing.T) {
	tty := newTestTTY()
	tty.termios = DefaultTermios()
	tty.termios.Oflag |= XTABS
	tty.column = 3

	n, err := opost(tty, []byte{'\t'})
	if err != nil {
		t.Fatalf("opost returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected opost to report 1 input byte consumed, got %d", n)
	}

	got := tty.wrQ.PeekRange(tty.wrQ.Tail())
	if len(got) != 5 {
		t.Fatalf("expected 5 space bytes in write_q, got %d (%q)", len(got), got)
	}
	for i, b := range got {
		if b != ' ' {
			t.Fatalf("byte %d: got %q want space", i, b)
		}
	}

	tty.mu.Lock()
	col := tty.column
	tty.mu.Unlock()
	if col != 8 {
		t.Fatalf("expected column 8, got %d", col)
	}
}

// TestNTTY_NonCanonicalPassthrough checks that with ICANON off, bytes flow
// straight into secondary_q without erase/kill/echo-line semantics.
func TestNTTY_NonCanonicalPassthrough(t *testing.T) {
	tty := newTestTTY()
	tty.termios = DefaultTermios()
	tty.termios.Lflag &^= ICANON
	tty.termios.Lflag &^= ECHO
	tty.termios.Cc[VMIN] = 1
	tty.termios.Cc[VTIME] = 0

	for _, b := range []byte{'x', 'y', 'z'} {
		tty.processInputByte(b, false)
	}

	buf := make([]byte, 3)
	n, err := NTTYDiscipline{}.Read(tty, buf, nil)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != 3 || string(buf) != "xyz" {
		t.Fatalf("expected \"xyz\", got %q (n=%d)", buf[:n], n)
	}
}

// TestNTTY_FlowControlStopStart checks IXON STOP/START toggle the stopped
// bit without the byte itself reaching secondary_q.
func TestNTTY_FlowControlStopStart(t *testing.T) {
	tty := newTestTTY()
	tty.termios = DefaultTermios()

	tty.processInputByte(tty.termios.Cc[VSTOP], false)
	tty.mu.Lock()
	stopped := tty.stopped
	tty.mu.Unlock()
	if !stopped {
		t.Fatalf("expected stopped after STOP char")
	}

	tty.processInputByte(tty.termios.Cc[VSTART], false)
	tty.mu.Lock()
	stopped = tty.stopped
	tty.mu.Unlock()
	if stopped {
		t.Fatalf("expected resumed after START char")
	}

	if tty.secQ.Len() != 0 {
		t.Fatalf("flow control bytes must not reach secondary_q, got len %d", tty.secQ.Len())
	}
}
