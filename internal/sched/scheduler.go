package sched

import (
	"fmt"
	"io"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

const (
	// LevelGap is the width of one priority band.
	LevelGap = 50
	// NumLevels is the number of ready queues.
	NumLevels = 3
	// PriorityLimit bounds thread priorities: valid values are
	// [0, PriorityLimit).
	PriorityLimit = LevelGap * NumLevels

	levelRR       = 0 // round-robin band, priorities 0-49, queue L3
	levelPriority = 1 // priority band, priorities 50-99, queue L2
	levelSJF      = 2 // shortest-job-first band, priorities 100-149, queue L1
)

// Options are the scheduler tunables. Zero values select the defaults.
type Options struct {
	// AgingTicks is how long a ready thread may be denied CPU before its
	// priority is raised. Default 1500.
	AgingTicks int
	// DemoteLimitTicks is how long the running thread may keep the CPU
	// before it is demoted a band. Default 100.
	DemoteLimitTicks int
	// BurstAlpha weights the most recent burst in the SJF estimate fold.
	// Default 0.5.
	BurstAlpha float64
	// Events receives the scheduler event stream, one line per queue
	// insertion, removal and priority change. Default discards.
	Events io.Writer
}

func (o Options) withDefaults() Options {
	if o.AgingTicks == 0 {
		o.AgingTicks = 1500
	}
	if o.DemoteLimitTicks == 0 {
		o.DemoteLimitTicks = 100
	}
	if o.BurstAlpha == 0 {
		o.BurstAlpha = 0.5
	}
	if o.Events == nil {
		o.Events = io.Discard
	}
	return o
}

// Scheduler owns the three ready queues and the current-thread slot. All
// operations assume the caller has disabled interrupts: on a uniprocessor
// that alone gives mutual exclusion, and we could not use blocking locks
// here anyway without recursing into FindNextToRun.
type Scheduler struct {
	interrupt *machine.Interrupt
	stats     *machine.Stats
	opts      Options

	queues        [NumLevels]readyQueue
	current       *Thread
	toBeDestroyed *Thread
	nextID        int
}

// New creates a scheduler with empty ready queues.
func New(interrupt *machine.Interrupt, stats *machine.Stats, opts Options) *Scheduler {
	s := &Scheduler{
		interrupt: interrupt,
		stats:     stats,
		opts:      opts.withDefaults(),
	}
	s.queues[levelRR] = &fifoQueue{}
	s.queues[levelPriority] = newSortedQueue(comparePriority)
	s.queues[levelSJF] = newSortedQueue(compareSJF)
	return s
}

// NewThread allocates a thread control block with the next id. The thread
// is inert until Fork or Bootstrap.
func (s *Scheduler) NewThread(name string, priority int) *Thread {
	if priority < 0 || priority >= PriorityLimit {
		panic(fmt.Sprintf("thread priority %d out of range [0, %d)", priority, PriorityLimit))
	}
	t := &Thread{
		id:       s.nextID,
		name:     name,
		priority: priority,
		status:   JustCreated,
		sched:    s,
		park:     make(chan struct{}, 1),
	}
	s.nextID++
	return t
}

// Bootstrap turns the calling goroutine into the initial running thread.
// Every machine needs one: the scheduler can only switch away from a
// thread that exists.
func (s *Scheduler) Bootstrap(name string, priority int) *Thread {
	if s.current != nil {
		panic("bootstrap with a thread already running")
	}
	t := s.NewThread(name, priority)
	t.started = true
	t.status = Running
	t.lastCPUTick = s.stats.TotalTicks
	s.current = t
	return t
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	return s.current
}

// ReadyToRun marks thread t ready and inserts it into the queue its
// priority band selects, returning that level. If t would preempt the
// running thread, a yield is requested from the interrupt layer; the
// actual switch happens at interrupt return, never here.
func (s *Scheduler) ReadyToRun(t *Thread) int {
	s.assertIntOff()
	if t.priority < 0 || t.priority >= PriorityLimit {
		panic(fmt.Sprintf("thread %d priority %d out of range [0, %d)", t.id, t.priority, PriorityLimit))
	}

	level := t.level()
	t.lastCPUTick = s.stats.TotalTicks
	s.queues[level].Insert(t)
	s.logQueueEvent(t, level, "inserted into")
	t.status = Ready

	if s.current != nil && s.current != t && s.isPreempted(s.current, t) {
		s.interrupt.YieldOnReturn()
	}
	return level
}

// FindNextToRun removes and returns the front of the highest non-empty
// queue, trying L1, then L2, then L3. Returns nil if every queue is empty.
func (s *Scheduler) FindNextToRun() *Thread {
	s.assertIntOff()

	for level := levelSJF; level >= levelRR; level-- {
		if s.queues[level].Len() == 0 {
			continue
		}
		t := s.queues[level].RemoveFront()
		s.logQueueEvent(t, level, "removed from")
		return t
	}
	return nil
}

// Run dispatches the CPU to next. The caller must already have moved the
// current thread's status away from Running. With finishing set the
// current thread is stashed for destruction once its successor is fully
// switched in; a thread never reclaims its own stack.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	old := s.current
	s.assertIntOff()

	if finishing {
		if s.toBeDestroyed != nil {
			panic("finishing thread while another awaits destruction")
		}
		s.toBeDestroyed = old
	}

	if old.space != nil {
		old.space.SaveState()
	}

	s.current = next
	next.status = Running
	next.lastCPUTick = s.stats.TotalTicks

	// Context switch: hand the CPU token to next. Control returns into
	// next the first time; later switches resume old right here.
	next.dispatch()
	if finishing {
		// Never coming back; the successor reclaims this thread.
		return
	}
	old.block()

	// Back on old's stack, and interrupts are still off.
	s.assertIntOff()
	s.CheckToBeDestroyed()
	if old.space != nil {
		old.space.RestoreState()
	}
}

// CheckToBeDestroyed reclaims the thread that finished just before the
// running one was switched in, if any.
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed != nil {
		s.toBeDestroyed.destroyed = true
		s.toBeDestroyed = nil
	}
}

// Aging raises the priority of every ready thread that has been denied
// CPU for AgingTicks or more. A thread whose raised priority reaches the
// priority band or above is re-inserted so it lands in the correct queue
// (and, within a sorted queue, at its correct slot); a thread still in the
// round-robin band stays put with its wait clock reset.
func (s *Scheduler) Aging() {
	s.assertIntOff()

	for level := levelRR; level <= levelSJF; level++ {
		for _, t := range s.queues[level].Threads() {
			if s.stats.TotalTicks-t.lastCPUTick < s.opts.AgingTicks {
				continue
			}

			oldPriority := t.priority
			t.priority = oldPriority + 10
			if t.priority >= PriorityLimit {
				t.priority = PriorityLimit - 1
			}
			s.logPriorityChange(t, oldPriority)

			if t.priority >= LevelGap {
				s.queues[level].Remove(t)
				s.logQueueEvent(t, level, "removed from")
				s.ReadyToRun(t)
			} else {
				// Not re-inserted, so reset the wait clock here to keep
				// the thread from being bumped again next tick.
				t.lastCPUTick = s.stats.TotalTicks
			}
		}
	}
}

// Demote checks whether the running thread has exceeded its CPU allowance
// and, if so, folds the observed burst into its SJF estimate and drops it
// to the top of the next-lower band, requesting a yield. Round-robin
// threads cannot drop further but still account their burst.
func (s *Scheduler) Demote() {
	cur := s.current
	if cur == nil {
		return
	}

	burst := s.stats.TotalTicks - cur.lastCPUTick
	if burst < s.opts.DemoteLimitTicks {
		return
	}

	cur.lastCPUTick = s.stats.TotalTicks
	cur.cpuBurst += burst
	cur.guessCPUBurst = s.opts.BurstAlpha*float64(cur.cpuBurst) +
		(1-s.opts.BurstAlpha)*cur.guessCPUBurst
	cur.cpuBurst = 0

	level := cur.level()
	if level > levelRR {
		oldPriority := cur.priority
		cur.priority = level*LevelGap - 1
		s.interrupt.YieldOnReturn()
		s.logPriorityChange(cur, oldPriority)
	}
}

// isPreempted reports whether pre strictly precedes cur under the
// dispatch order: when both sit in the SJF band the burst estimate
// decides, otherwise priority does, ids breaking ties either way.
func (s *Scheduler) isPreempted(cur, pre *Thread) bool {
	const l1LowerBound = LevelGap * levelSJF

	if cur.priority >= l1LowerBound && pre.priority >= l1LowerBound {
		return compareSJF(pre, cur) < 0
	}
	return comparePriority(pre, cur) < 0
}

// Dump writes the contents of the ready queues, for debugging.
func (s *Scheduler) Dump(w io.Writer) {
	for level := levelSJF; level >= levelRR; level-- {
		fmt.Fprintf(w, "L%d:", NumLevels-level)
		for _, t := range s.queues[level].Threads() {
			fmt.Fprintf(w, " %d(%s)", t.id, t.name)
		}
		fmt.Fprintln(w)
	}
}

func (s *Scheduler) assertIntOff() {
	if s.interrupt.GetLevel() != machine.IntOff {
		panic("scheduler entered with interrupts enabled")
	}
}

// Queue events use human numbering: L1 is the SJF queue, L3 round-robin.
func (s *Scheduler) logQueueEvent(t *Thread, level int, verb string) {
	fmt.Fprintf(s.opts.Events, "Tick %d: Thread %d is %s queue L%d (EST: %f, PRI: %d)\n",
		s.stats.TotalTicks, t.id, verb, NumLevels-level, t.guessCPUBurst, t.priority)
}

func (s *Scheduler) logPriorityChange(t *Thread, oldPriority int) {
	fmt.Fprintf(s.opts.Events, "Tick %d: Thread %d changes its priority from %d to %d\n",
		s.stats.TotalTicks, t.id, oldPriority, t.priority)
}
