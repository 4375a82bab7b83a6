// Package kernel wires the simulated machine, the scheduler and the file
// system into one process-wide handle and exposes the system-call surface
// on top of it. The handle is passed explicitly; nothing in here lives in
// a package global.
package kernel

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pelicanproject/go-pelican/internal/config"
	"github.com/pelicanproject/go-pelican/internal/filesys"
	"github.com/pelicanproject/go-pelican/internal/machine"
	"github.com/pelicanproject/go-pelican/internal/sched"
)

// Options selects how the kernel comes up.
type Options struct {
	// Format lays the disk out from scratch instead of opening it.
	Format bool
	// Console receives user-visible output (PrintInt, halt statistics).
	Console io.Writer
	// SchedEvents receives the scheduler event stream.
	SchedEvents io.Writer
}

// Kernel is the process-wide kernel state: the machine devices, the
// scheduler and the file system.
type Kernel struct {
	Config     *config.Config
	Stats      *machine.Stats
	Interrupt  *machine.Interrupt
	Timer      *machine.Timer
	Disk       *machine.Disk
	Scheduler  *sched.Scheduler
	FileSystem *filesys.FileSystem

	console io.Writer
}

// New builds the machine and attaches the kernel subsystems to it. The
// timer interrupt drives scheduler aging and demotion; a preemption
// request raised by either is serviced at interrupt return by yielding
// the running thread.
func New(cfg *config.Config, opts Options) (*Kernel, error) {
	if opts.Console == nil {
		opts.Console = io.Discard
	}

	stats := &machine.Stats{}
	interrupt := machine.NewInterrupt(stats)

	var disk *machine.Disk
	var err error
	if opts.Format {
		disk, err = machine.CreateDisk(cfg.DiskPath, stats)
	} else {
		disk, err = machine.OpenDisk(cfg.DiskPath, stats)
	}
	if err != nil {
		return nil, err
	}

	scheduler := sched.New(interrupt, stats, sched.Options{
		AgingTicks:       cfg.AgingTicks,
		DemoteLimitTicks: cfg.DemoteLimitTicks,
		BurstAlpha:       cfg.BurstAlpha,
		Events:           opts.SchedEvents,
	})

	fs, err := filesys.New(disk, opts.Format)
	if err != nil {
		disk.Close()
		return nil, fmt.Errorf("failed to attach file system: %w", err)
	}

	k := &Kernel{
		Config:     cfg,
		Stats:      stats,
		Interrupt:  interrupt,
		Disk:       disk,
		Scheduler:  scheduler,
		FileSystem: fs,
		console:    opts.Console,
	}

	k.Timer = machine.NewTimer(cfg.TimerInterval, k.alarm)
	interrupt.RegisterTimer(k.Timer)
	interrupt.SetYieldHandler(func() {
		if cur := scheduler.Current(); cur != nil {
			cur.Yield()
		}
	})

	return k, nil
}

// Bootstrap turns the calling goroutine into the initial kernel thread
// and enables interrupts, which starts the clock.
func (k *Kernel) Bootstrap(name string) *sched.Thread {
	t := k.Scheduler.Bootstrap(name, 0)
	k.Interrupt.SetLevel(machine.IntOn)
	return t
}

// alarm is the periodic timer handler: age the queues, then check the
// running thread's CPU allowance.
func (k *Kernel) alarm() {
	k.Scheduler.Aging()
	k.Scheduler.Demote()
}

// Halt prints the machine statistics and stops the simulation.
func (k *Kernel) Halt() {
	slog.Debug("machine halting")
	fmt.Fprintln(k.console, "Machine halting!")
	k.Stats.Dump(k.console)
	k.Interrupt.Halt()
}

// Close releases the disk image.
func (k *Kernel) Close() error {
	return k.Disk.Close()
}
