package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Hardware path behind the antenna: one output line and
 *		the tick sources that drive it.
 *
 * Description:	A front end is chosen once, when the antenna is built.
 *		Generators only ever see this interface so the state
 *		machines carry no knowledge of how a level reaches the
 *		air or where their ticks come from.
 *
 *		Tick handlers are our interrupt context.  All clocks of
 *		one front end fire from a single context, one handler at
 *		a time, so generator state needs no locking.  Handlers
 *		must not block: counters, flags, Write, and Start/Stop/
 *		SetPeriod on clocks only.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// OutputLine is a single-bit digital output.  *gpiocdev.Line satisfies it.
type OutputLine interface {
	SetValue(value int) error
	Close() error
}

// Clock is a periodic tick source handed out by a front end.
type Clock interface {
	// Start arms the clock one period from now.  Safe from tick context.
	Start()

	// Stop disarms the clock.  Safe from tick context.
	Stop()

	// SetPeriod changes the period used for the next deadline.  Safe from tick context.
	SetPeriod(period time.Duration)

	// Close removes the clock.  Task context only; waits for an in-flight tick.
	Close() error
}

type Frontend interface {
	// Write drives the output line.  Safe from tick context, never blocks.
	Write(level int)

	// NewClock returns a stopped clock calling tick every period once started.
	NewClock(name string, period time.Duration, tick func()) (Clock, error)

	// Idle puts the front end back in its resting state after a transmission.
	Idle() error

	Close() error
}

/*-------------------------------------------------------------------
 *
 * Name:        clockSet
 *
 * Purpose:     Deadline bookkeeping shared by every front end.
 *
 * Description:	Time is an abstract int64 count: nanoseconds for the
 *		software tick loop and the simulator, data clock edges
 *		for a clocked radio.  fire() runs every due handler
 *		while holding mu, which is what lets Close wait out an
 *		in-flight tick.  Start/Stop/SetPeriod are atomics only
 *		so handlers may call them while mu is held.
 *
 *--------------------------------------------------------------------*/

type clockSet struct {
	mu     sync.Mutex
	clocks []*setClock

	now   func() int64
	units func(time.Duration) int64
	wake  func()
}

type setClock struct {
	set  *clockSet
	name string
	tick func()

	period  atomic.Int64
	next    atomic.Int64
	running atomic.Bool

	closed bool // guarded by set.mu
}

func (s *clockSet) add(name string, period time.Duration, tick func()) (*setClock, error) {
	var units = s.units(period)
	if units <= 0 {
		return nil, fmt.Errorf("clock %s with period %s: %w", name, period, ErrClockPeriod)
	}

	var c = &setClock{set: s, name: name, tick: tick} //nolint:exhaustruct
	c.period.Store(units)

	s.mu.Lock()
	s.clocks = append(s.clocks, c)
	s.mu.Unlock()

	return c, nil
}

func (s *clockSet) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clocks {
		if c.running.Load() {
			return true
		}
	}

	return false
}

func (s *clockSet) nextDeadline() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best int64
	var found bool

	for _, c := range s.clocks {
		if !c.running.Load() {
			continue
		}

		var next = c.next.Load()
		if !found || next < best {
			best = next
			found = true
		}
	}

	return best, found
}

// fire runs, in creation order, every clock due at or before now.
func (s *clockSet) fire(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clocks {
		if !c.running.Load() {
			continue
		}

		var due = c.next.Load()
		if due > now {
			continue
		}

		c.tick()

		// A handler that restarted or stopped its own clock owns the deadline.
		if c.running.Load() && c.next.Load() == due {
			c.next.Store(due + c.period.Load())
		}
	}
}

func (c *setClock) Start() {
	c.next.Store(c.set.now() + c.period.Load())
	c.running.Store(true)
	c.set.wake()
}

func (c *setClock) Stop() {
	c.running.Store(false)
}

func (c *setClock) SetPeriod(period time.Duration) {
	c.period.Store(max(c.set.units(period), 1))
}

func (c *setClock) Close() error {
	var s = c.set

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return fmt.Errorf("clock %s: %w", c.name, ErrClockClosed)
	}

	c.closed = true
	c.running.Store(false)
	s.clocks = slices.DeleteFunc(s.clocks, func(other *setClock) bool { return other == c })

	return nil
}
