// Package sched implements the multi-level feedback thread scheduler: three
// ready queues with distinct disciplines (shortest-job-first, priority,
// round-robin), periodic aging of starved threads, demotion of CPU hogs,
// and the context-switch machinery that hands the single simulated CPU
// from one thread to the next.
package sched

import (
	"fmt"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

// Status is the lifecycle state of a thread.
type Status int

const (
	// JustCreated means the thread exists but has never been made ready.
	JustCreated Status = iota
	// Ready means the thread sits in exactly one ready queue.
	Ready
	// Running means the thread owns the CPU.
	Running
	// Blocked means the thread sleeps until someone readies it again.
	Blocked
	// Zombie means the thread has finished; its carcass is reclaimed by
	// its successor.
	Zombie
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "just created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// AddressSpace is the opaque user address-space handle. The scheduler only
// needs to save and restore it around context switches of user threads.
type AddressSpace interface {
	SaveState()
	RestoreState()
}

// Thread is a thread control block. The goroutine behind it is the
// thread's stack; the park channel carries the single CPU token, so at any
// moment exactly one thread goroutine is runnable.
type Thread struct {
	id       int
	name     string
	priority int
	status   Status

	guessCPUBurst float64 // SJF estimate of the next CPU burst, in ticks
	cpuBurst      int     // ticks accumulated since the last estimate fold
	lastCPUTick   int     // when this thread last entered CPU or a queue

	space AddressSpace

	sched     *Scheduler
	fn        func()
	park      chan struct{}
	started   bool
	destroyed bool
}

// ID returns the thread's monotonically assigned identifier.
func (t *Thread) ID() int { return t.id }

// Name returns the debugging name given at creation.
func (t *Thread) Name() string { return t.name }

// Priority returns the scheduling priority in [0, 149].
func (t *Thread) Priority() int { return t.priority }

// Status returns the current lifecycle state.
func (t *Thread) Status() Status { return t.status }

// GuessCPUBurst returns the current SJF burst estimate in ticks.
func (t *Thread) GuessCPUBurst() float64 { return t.guessCPUBurst }

// SetSpace attaches a user address space; its state is saved and restored
// around context switches.
func (t *Thread) SetSpace(space AddressSpace) { t.space = space }

// Space returns the attached user address space, if any.
func (t *Thread) Space() AddressSpace { return t.space }

// level returns the queue band this thread's priority selects: 0 is the
// round-robin band, 1 the priority band, 2 the SJF band.
func (t *Thread) level() int { return t.priority / LevelGap }

// Fork gives the thread a function to run and makes it ready. The
// goroutine starts parked; it first runs when the scheduler dispatches it.
func (t *Thread) Fork(fn func()) {
	if t.started {
		panic(fmt.Sprintf("thread %d forked twice", t.id))
	}
	t.fn = fn
	t.started = true
	go t.threadRoot()

	old := t.sched.interrupt.SetLevel(machine.IntOff)
	t.sched.ReadyToRun(t)
	t.sched.interrupt.SetLevel(old)
}

// threadRoot is the outermost frame of every forked thread: wait for the
// first dispatch, clean up after the predecessor, run, finish.
func (t *Thread) threadRoot() {
	<-t.park
	t.begin()
	t.fn()
	t.Finish()
}

// begin runs on the thread's own stack the first time it is dispatched.
// The predecessor may have finished, so its carcass is reclaimed here.
func (t *Thread) begin() {
	t.sched.CheckToBeDestroyed()
	t.sched.interrupt.SetLevel(machine.IntOn)
}

// Yield relinquishes the CPU if any other thread is ready, placing this
// thread back in its ready queue. If nothing else is ready the thread
// keeps running.
func (t *Thread) Yield() {
	s := t.sched
	old := s.interrupt.SetLevel(machine.IntOff)
	if s.current != t {
		panic(fmt.Sprintf("thread %d yielding while not current", t.id))
	}

	if next := s.FindNextToRun(); next != nil {
		s.ReadyToRun(t)
		s.Run(next, false)
	}
	s.interrupt.SetLevel(old)
}

// Sleep blocks the thread until some other thread readies it again. With
// finishing set the thread becomes a zombie instead and never returns to
// the ready queues. Interrupts must already be off; if no thread is ready
// the machine idles until the timer makes one ready.
func (t *Thread) Sleep(finishing bool) {
	s := t.sched
	if s.current != t {
		panic(fmt.Sprintf("thread %d sleeping while not current", t.id))
	}
	if s.interrupt.GetLevel() != machine.IntOff {
		panic("sleep with interrupts enabled")
	}

	if finishing {
		t.status = Zombie
	} else {
		t.status = Blocked
	}

	next := s.FindNextToRun()
	for next == nil {
		s.interrupt.Idle()
		next = s.FindNextToRun()
	}
	s.Run(next, finishing)
}

// Finish terminates the thread. The stack cannot be reclaimed while we are
// still running on it, so destruction is deferred to the successor.
func (t *Thread) Finish() {
	s := t.sched
	s.interrupt.SetLevel(machine.IntOff)
	if s.current != t {
		panic(fmt.Sprintf("thread %d finishing while not current", t.id))
	}
	t.Sleep(true)
}

// dispatch hands the CPU token to this thread.
func (t *Thread) dispatch() {
	t.park <- struct{}{}
}

// block waits until the CPU token comes back.
func (t *Thread) block() {
	<-t.park
}
