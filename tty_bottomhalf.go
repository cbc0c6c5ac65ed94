// tty_bottomhalf.go - deferred input/output draining (§4.1 "Bottom half", §5)

package main

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BottomHalf is the single deferred task that drains the raw queue of every
// TTY whose line discipline has pending input, and pushes queued write data
// out to the device once write_q has room. Interrupt-context code (the
// keyboard driver, a host driver's receive path) calls Notify/NotifyWrite
// instead of doing the work inline, matching §5's "mark a bottom-half bit
// and return" discipline.
type BottomHalf struct {
	pendingRead  chan *TTY
	pendingWrite chan *TTY
}

func NewBottomHalf() *BottomHalf {
	return &BottomHalf{
		pendingRead:  make(chan *TTY, 256),
		pendingWrite: make(chan *TTY, 256),
	}
}

// Notify marks tty as having raw_q input to drain. Safe to call from an
// interrupt-like context; never blocks the caller for long (buffered,
// drops the notification if the bottom half is already saturated with
// this tty's backlog since draining re-checks the queue anyway).
func (b *BottomHalf) Notify(t *TTY) {
	select {
	case b.pendingRead <- t:
	default:
	}
}

// NotifyWrite marks tty as having write_q room to fill from a pending
// write_data continuation.
func (b *BottomHalf) NotifyWrite(t *TTY) {
	select {
	case b.pendingWrite <- t:
	default:
	}
}

// Run drains both queues until ctx is cancelled. Each TTY's own READ_BUSY
// flag (not a global lock) suppresses reentrant draining of the same line,
// so the two goroutines below never race on a single TTY's queues.
func (b *BottomHalf) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case t := <-b.pendingRead:
				t.drainInput()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case t := <-b.pendingWrite:
				t.drainWriteContinuation()
			}
		}
	})
	return g.Wait()
}

// drainInput runs the attached line discipline's InputHandler once,
// guarded by FlagReadBusy to suppress reentry (§4.1).
func (t *TTY) drainInput() {
	t.mu.Lock()
	if t.flags&FlagReadBusy != 0 {
		t.mu.Unlock()
		return
	}
	t.flags |= FlagReadBusy
	d := t.k.ldisc(t.ldisc)
	t.mu.Unlock()

	if d != nil {
		d.InputHandler(t)
	}

	t.mu.Lock()
	t.flags &^= FlagReadBusy
	t.mu.Unlock()
}

// flushWriteQueue hands as many queued bytes as the device accepts to the
// attached driver. It never blocks on the driver; a short write simply
// leaves the remainder in write_q for the next drain.
func (t *TTY) flushWriteQueue() {
	t.mu.Lock()
	driver := t.driver
	t.mu.Unlock()
	if driver == nil {
		return
	}
	for {
		chunk := t.wrQ.PeekRange(t.wrQ.Tail())
		if len(chunk) == 0 {
			return
		}
		n, err := driver.Write(t, chunk)
		for i := 0; i < n; i++ {
			t.wrQ.GetByte()
		}
		if err != nil || n < len(chunk) {
			return
		}
	}
}

// write_data (§4.1) enqueues as much of buf as fits immediately and
// records a continuation for the remainder; the bottom half invokes
// callback(arg) once the residual has fully drained. callback is never
// invoked synchronously from this call.
func (t *TTY) writeData(buf []byte, callback func(arg any), arg any) int {
	n, err := opost(t, buf)
	if err == nil && n == len(buf) {
		t.flushWriteQueue()
		if callback != nil {
			t.k.bh.NotifyWrite(t)
			t.mu.Lock()
			t.cont = &writeContinuation{callback: callback, arg: arg}
			t.mu.Unlock()
		}
		return n
	}

	t.mu.Lock()
	t.cont = &writeContinuation{buf: buf[n:], callback: callback, arg: arg}
	t.mu.Unlock()
	t.flushWriteQueue()
	return n
}

func (t *TTY) drainWriteContinuation() {
	t.mu.Lock()
	c := t.cont
	t.mu.Unlock()
	if c == nil {
		return
	}
	if len(c.buf) > 0 {
		n, err := opost(t, c.buf)
		t.mu.Lock()
		t.cont.buf = t.cont.buf[n:]
		t.mu.Unlock()
		t.flushWriteQueue()
		if err != nil || len(t.cont.buf) > 0 {
			t.k.bh.NotifyWrite(t)
			return
		}
	}
	t.mu.Lock()
	t.cont = nil
	t.mu.Unlock()
	if c.callback != nil {
		c.callback(c.arg)
	}
}
