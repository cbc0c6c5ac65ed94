// process_signaler.go - in-process SignalSender (§1 "process/signal
// primitives" external collaborator, §4.1 step 6, §4.2 "VC switching
// handshake").
//
// Real process groups and signal delivery are out of scope (§1 Non-goals);
// this kernel has no child processes to deliver POSIX signals to. What it
// does need is something that behaves like the collaborator the TTY core
// and VT switching handshake expect: a process group either has a live
// handler registered (the controlling process is still around to receive
// SIGTTIN/SIGCONT/SIGHUP/...) or it doesn't (orphaned). A registry of
// per-pgrp callbacks, guarded the way the teacher guards its hand-rolled
// stop channels in terminal_host.go, is the idiomatic Go shape for that.

package main

import "sync"

// ProcessSignaler is the default SignalSender: process groups register a
// handler while "alive" and are orphaned the moment nothing is registered
// for them, matching IsOrphaned's job-control contract.
type ProcessSignaler struct {
	mu       sync.Mutex
	handlers map[int]func(Signal)
}

func NewProcessSignaler() *ProcessSignaler {
	return &ProcessSignaler{handlers: make(map[int]func(Signal))}
}

// Register attaches a handler for pgrp, making it non-orphaned until
// Unregister is called. Passing a nil handler is equivalent to Unregister.
func (p *ProcessSignaler) Register(pgrp int, handler func(Signal)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if handler == nil {
		delete(p.handlers, pgrp)
		return
	}
	p.handlers[pgrp] = handler
}

func (p *ProcessSignaler) Unregister(pgrp int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, pgrp)
}

func (p *ProcessSignaler) SendSignalToGroup(pgrp int, sig Signal) {
	p.mu.Lock()
	h := p.handlers[pgrp]
	p.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

func (p *ProcessSignaler) IsOrphaned(pgrp int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[pgrp]
	return !ok
}
