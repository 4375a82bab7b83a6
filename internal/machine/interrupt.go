package machine

import "fmt"

// IntStatus is the interrupt enable state of the simulated CPU.
type IntStatus int

const (
	// IntOff means interrupts are disabled.
	IntOff IntStatus = iota
	// IntOn means interrupts are enabled.
	IntOn
)

func (s IntStatus) String() string {
	if s == IntOff {
		return "off"
	}
	return "on"
}

// Interrupt is the software interrupt controller. Mutual exclusion on
// kernel state is provided solely by disabling interrupts, so the
// controller is also where the simulated clock lives: time advances when
// interrupts are re-enabled, when user instructions retire, and when the
// machine idles waiting for the next timer event.
type Interrupt struct {
	level IntStatus
	stats *Stats
	timer *Timer

	yieldOnReturn bool
	yieldHandler  func()
	inHandler     bool
	halted        bool
}

// NewInterrupt creates the controller with interrupts disabled, the state
// the machine powers up in.
func NewInterrupt(stats *Stats) *Interrupt {
	return &Interrupt{level: IntOff, stats: stats}
}

// GetLevel returns the current interrupt enable state.
func (i *Interrupt) GetLevel() IntStatus {
	return i.level
}

// SetLevel changes the interrupt enable state and returns the previous
// one. Re-enabling interrupts advances the clock by one system tick, which
// may fire the timer and service a pending yield request.
func (i *Interrupt) SetLevel(level IntStatus) IntStatus {
	old := i.level
	i.level = level
	if old == IntOff && level == IntOn {
		i.OneTick(SystemTick)
	}
	return old
}

// YieldOnReturn records that the running thread should give up the CPU
// when the current interrupt completes. The switch happens at interrupt
// return, never inline.
func (i *Interrupt) YieldOnReturn() {
	if i.level != IntOff {
		panic("interrupt: YieldOnReturn with interrupts enabled")
	}
	i.yieldOnReturn = true
}

// YieldPending reports whether a yield request awaits the next interrupt
// return.
func (i *Interrupt) YieldPending() bool {
	return i.yieldOnReturn
}

// SetYieldHandler installs the kernel callback that performs the actual
// yield when a YieldOnReturn request is serviced.
func (i *Interrupt) SetYieldHandler(fn func()) {
	i.yieldHandler = fn
}

// RegisterTimer attaches the periodic timer device to the controller.
func (i *Interrupt) RegisterTimer(t *Timer) {
	i.timer = t
}

// OneTick advances the simulated clock by ticks of system time.
func (i *Interrupt) OneTick(ticks int) {
	i.advance(ticks, &i.stats.SystemTicks)
}

// OneUserTick retires one simulated user-mode instruction.
func (i *Interrupt) OneUserTick() {
	i.advance(UserTick, &i.stats.UserTicks)
}

// Idle advances the clock straight to the next timer event, charging the
// gap as idle time. Called when there is nothing to run; without a timer
// there is nothing that could ever wake the machine up again.
func (i *Interrupt) Idle() {
	if i.timer == nil {
		panic("interrupt: idle with no pending interrupts")
	}
	i.advance(i.timer.TicksUntilDue(), &i.stats.IdleTicks)
}

// Halt requests that the machine stop at the next opportunity.
func (i *Interrupt) Halt() {
	i.halted = true
}

// Halted reports whether Halt has been requested.
func (i *Interrupt) Halted() bool {
	return i.halted
}

// advance moves the clock forward, fires the timer if it comes due, and
// services a pending yield request once the "interrupt handler" returns.
func (i *Interrupt) advance(ticks int, counter *int) {
	i.stats.TotalTicks += ticks
	*counter += ticks

	if i.timer != nil {
		due := i.timer.accumulate(ticks)
		for ; due > 0; due-- {
			i.runHandler(i.timer.handler)
		}
	}

	if i.yieldOnReturn && i.yieldHandler != nil {
		i.yieldOnReturn = false
		i.yieldHandler()
	}
}

// runHandler invokes a device handler with interrupts forced off, the way
// a hardware interrupt would arrive.
func (i *Interrupt) runHandler(handler func()) {
	if handler == nil {
		return
	}
	if i.inHandler {
		panic(fmt.Sprintf("interrupt: nested handler at tick %d", i.stats.TotalTicks))
	}
	old := i.level
	i.level = IntOff
	i.inHandler = true
	handler()
	i.inHandler = false
	i.level = old
}
