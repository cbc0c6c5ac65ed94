// tty_opost.go - output post-processor (§4.1 "Output post-processor")

package main

// opostExpand expands one input byte into at most a handful of output
// bytes according to Oflag, and reports the column the cursor will be at
// afterward. It does not touch write_q — callers decide atomicity.
func opostExpand(oflag uint32, col int, b byte) (out []byte, newCol int) {
	if oflag&OPOST == 0 {
		return []byte{b}, col
	}
	switch b {
	case '\n':
		if oflag&ONLCR != 0 {
			out = append(out, '\r', '\n')
			col = 0
		} else {
			out = append(out, '\n')
			if oflag&ONLRET != 0 {
				col = 0
			}
		}
		return out, col
	case '\r':
		switch {
		case oflag&OCRNL != 0:
			out = append(out, '\n')
			col = 0
		case oflag&ONOCR != 0 && col == 0:
			// suppressed: CR is redundant at column 0
		default:
			out = append(out, '\r')
			col = 0
		}
		return out, col
	case '\t':
		if oflag&XTABS != 0 {
			n := 8 - col%8
			for i := 0; i < n; i++ {
				out = append(out, ' ')
			}
			col += n
		} else {
			out = append(out, '\t')
		}
		return out, col
	case '\b':
		out = append(out, '\b')
		if col > 0 {
			col--
		}
		return out, col
	}
	if oflag&OLCUC != 0 && b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	out = append(out, b)
	if b >= 0x20 && b < 0x7f {
		col++
	}
	return out, col
}

// opost runs a whole buffer through opostExpand and attempts to enqueue the
// result into write_q atomically. On overflow it returns an error and
// leaves column/write_q untouched so the caller can retry the same input
// (§4.1: "opost fails with -1 when write_q cannot accept all bytes
// atomically; the caller must retry").
func opost(t *TTY, input []byte) (int, error) {
	t.mu.Lock()
	col := t.column
	oflag := t.termios.Oflag
	t.mu.Unlock()

	var produced []byte
	col2 := col
	for _, b := range input {
		var out []byte
		out, col2 = opostExpand(oflag, col2, b)
		produced = append(produced, out...)
	}

	if t.wrQ.Room() < len(produced) {
		return 0, errQueueFull
	}
	t.wrQ.PutBytes(produced)

	t.mu.Lock()
	t.column = col2
	t.mu.Unlock()
	return len(input), nil
}
