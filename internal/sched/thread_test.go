package sched

import (
	"testing"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

// trace records execution order; the kernel is cooperative and
// uniprocessor, so appends never race.
type trace struct {
	entries []string
}

func (tr *trace) add(s string) { tr.entries = append(tr.entries, s) }

func TestForkYieldFinishRoundRobin(t *testing.T) {
	s, interrupt, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	tr := &trace{}
	for _, name := range []string{"w1", "w2", "w3"} {
		name := name
		w := s.NewThread(name, 0)
		w.Fork(func() { tr.add(name) })
	}

	// The first yield puts main behind the three workers, so they run to
	// completion in fork order before control comes back; the later
	// yields find the queues empty.
	for i := 0; i < 3; i++ {
		main.Yield()
	}

	want := []string{"w1", "w2", "w3"}
	if len(tr.entries) != len(want) {
		t.Fatalf("ran %d workers, want %d: %v", len(tr.entries), len(want), tr.entries)
	}
	for i, w := range want {
		if tr.entries[i] != w {
			t.Errorf("execution %d = %s, want %s", i, tr.entries[i], w)
		}
	}

	if s.Current() != main {
		t.Error("control should have returned to the main thread")
	}
	if interrupt.GetLevel() != machine.IntOff {
		t.Error("interrupts should be back off at the test's level")
	}
}

func TestYieldInterleavesEqualPriorityThreads(t *testing.T) {
	s, _, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	tr := &trace{}
	w := s.NewThread("worker", 0)
	w.Fork(func() {
		tr.add("worker:1")
		s.Current().Yield()
		tr.add("worker:2")
	})

	main.Yield() // worker runs its first leg, yields back
	tr.add("main")
	main.Yield() // worker finishes

	want := []string{"worker:1", "main", "worker:2"}
	for i, e := range want {
		if i >= len(tr.entries) || tr.entries[i] != e {
			t.Fatalf("trace = %v, want %v", tr.entries, want)
		}
	}
}

func TestFinishedThreadIsDestroyedBySuccessor(t *testing.T) {
	s, _, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	w := s.NewThread("worker", 0)
	w.Fork(func() {})

	main.Yield()

	if w.Status() != Zombie {
		t.Errorf("worker status = %v, want Zombie", w.Status())
	}
	if !w.destroyed {
		t.Error("worker carcass should have been reclaimed after the switch back")
	}
	if s.toBeDestroyed != nil {
		t.Error("no destruction should remain pending")
	}
}

func TestYieldWithEmptyQueuesKeepsRunning(t *testing.T) {
	s, _, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	main.Yield()

	if s.Current() != main {
		t.Error("with no ready threads, yield keeps the current thread running")
	}
	if main.Status() != Running {
		t.Errorf("status = %v, want Running", main.Status())
	}
}

func TestSleepUntilReadied(t *testing.T) {
	s, interrupt, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	tr := &trace{}
	var sleeper *Thread
	sleeper = s.NewThread("sleeper", 0)
	sleeper.Fork(func() {
		tr.add("sleeping")
		interrupt.SetLevel(machine.IntOff)
		sleeper.Sleep(false)
		tr.add("awake")
	})

	waker := s.NewThread("waker", 0)
	waker.Fork(func() {
		tr.add("waking")
		old := interrupt.SetLevel(machine.IntOff)
		s.ReadyToRun(sleeper)
		interrupt.SetLevel(old)
	})

	// sleeper runs and blocks; waker readies it; sleeper resumes.
	main.Yield()
	main.Yield()

	want := []string{"sleeping", "waking", "awake"}
	for i, e := range want {
		if i >= len(tr.entries) || tr.entries[i] != e {
			t.Fatalf("trace = %v, want %v", tr.entries, want)
		}
	}
	if sleeper.Status() != Zombie {
		t.Errorf("sleeper status = %v, want Zombie after finishing", sleeper.Status())
	}
}

type recordingSpace struct {
	saves    int
	restores int
}

func (r *recordingSpace) SaveState()    { r.saves++ }
func (r *recordingSpace) RestoreState() { r.restores++ }

func TestUserSpaceSavedAndRestoredAroundSwitch(t *testing.T) {
	s, _, _ := newTestScheduler(Options{})
	main := s.Bootstrap("main", 0)

	space := &recordingSpace{}
	main.SetSpace(space)

	w := s.NewThread("worker", 0)
	w.Fork(func() {})

	main.Yield()

	if space.saves != 1 {
		t.Errorf("space saved %d times, want 1", space.saves)
	}
	if space.restores != 1 {
		t.Errorf("space restored %d times, want 1", space.restores)
	}
}

func TestDoublePendingDestructionPanics(t *testing.T) {
	s, _, _ := newTestScheduler(Options{})
	s.Bootstrap("main", 0)

	stub := s.NewThread("stub", 0)
	s.toBeDestroyed = stub

	next := s.NewThread("next", 0)
	next.status = Ready

	defer func() {
		if recover() == nil {
			t.Error("a second pending destruction must panic")
		}
		s.toBeDestroyed = nil
	}()
	s.Run(next, true)
}
