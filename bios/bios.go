// Package bios simulates the machine substrate that the kernel core treats
// as an external collaborator: a monotonic clock, one alarm timer per core,
// and inter-core interrupts used to halt and restart idle cores.
//
// A real BIOS delivers the alarm as a hardware interrupt that can preempt
// code at any instruction boundary. Go offers no such hook to library code,
// so this simulation only guarantees that the alarm *has fired* by the time
// the running thread next calls Core.ConsumeAlarm — the kernel scheduler
// turns that into a preemption at its own cooperative checkpoints. See
// SPEC_FULL.md section A for the full rationale.
package bios

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tick is a monotonic timestamp, measured in nanoseconds since the machine
// booted. It plays the role of bios_clock()'s return value.
type Tick int64

// Machine owns a fixed number of simulated cores and their shared clock.
type Machine struct {
	bootAt time.Time
	cores  []*Core
}

// NewMachine creates a machine with the given number of cores. numCores
// must be at least 1.
func NewMachine(numCores int) *Machine {
	if numCores < 1 {
		numCores = 1
	}
	m := &Machine{bootAt: time.Now(), cores: make([]*Core, numCores)}
	for i := range m.cores {
		m.cores[i] = newCore(i)
	}
	return m
}

// NumCores returns the number of simulated cores.
func (m *Machine) NumCores() int { return len(m.cores) }

// Core returns the simulated core with the given id.
func (m *Machine) Core(id int) *Core { return m.cores[id] }

// Now returns the current monotonic tick, i.e. bios_clock().
func (m *Machine) Now() Tick { return Tick(time.Since(m.bootAt)) }

// RestartOne sends an inter-core interrupt to the given core, waking it if
// it is halted. Mirrors cpu_core_restart_one.
func (m *Machine) RestartOne(id int) { m.cores[id].wake() }

// RestartAll wakes every core. Mirrors cpu_core_restart_all.
func (m *Machine) RestartAll() {
	for _, c := range m.cores {
		c.wake()
	}
}

// Core is one simulated CPU: it owns a one-shot alarm timer and can be
// halted until an inter-core interrupt arrives.
type Core struct {
	id int

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	armed    bool

	fired atomic.Bool

	ici chan struct{}
}

func newCore(id int) *Core {
	return &Core{id: id, ici: make(chan struct{}, 1)}
}

// ID returns the core's index.
func (c *Core) ID() int { return c.id }

// SetAlarm arms the core's one-shot alarm to fire after d. Mirrors
// bios_set_timer. A zero or negative duration fires immediately.
func (c *Core) SetAlarm(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.fired.Store(false)
	c.armed = true
	c.deadline = time.Now().Add(d)
	c.timer = time.AfterFunc(d, func() { c.fired.Store(true) })
}

// CancelAlarm disarms the alarm and returns the time remaining until it
// would have fired (zero if it had already fired or none was armed).
// Mirrors bios_cancel_timer, which the scheduler uses to capture a
// preempted thread's leftover quantum.
func (c *Core) CancelAlarm() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return 0
	}
	remaining := time.Until(c.deadline)
	c.stopLocked()
	c.fired.Store(false)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Core) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false
}

// ConsumeAlarm reports whether the alarm has fired since it was last armed
// or consumed, clearing the flag. This is the scheduler's sole preemption
// checkpoint.
func (c *Core) ConsumeAlarm() bool { return c.fired.Swap(false) }

// Halt blocks the calling goroutine (the core's idle thread) until an
// inter-core interrupt wakes it, mirroring cpu_core_halt.
func (c *Core) Halt() { <-c.ici }

func (c *Core) wake() {
	select {
	case c.ici <- struct{}{}:
	default:
	}
}
