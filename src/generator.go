package rfcompanion

import (
	"sync/atomic"
)

// Generator encodes one kind of payload onto an antenna.
//
// Begin sets up clocks on the antenna's front end, registers its tick
// handlers and returns; the encoding itself happens in tick context.
// An error means nothing was started and no clock was left behind.
type Generator interface {
	Begin(a *Antenna, tx *Transmission) error
}

// Payload is the variant part of a Transmission: PulseCode or FixedCode.
type Payload interface {
	Kind() string
}

// Transmission describes what to send.  Descriptors are immutable and
// owned by the signal table; the engine borrows one per transmission.
type Transmission struct {
	Name      string
	Generator Generator
	Payload   Payload
}

/*-------------------------------------------------------------------
 *
 * Name:        txRun
 *
 * Purpose:     What every in-flight transmission has in common: the
 *		clocks to tear down and the once-only termination.
 *
 * Description:	terminate() is the only way to end a transmission,
 *		from a tick handler when the last repetition is out or
 *		from Antenna.Cancel.  The compare-and-swaps make sure
 *		exactly one cleanup is ever queued, however many
 *		trailing ticks arrive before the clocks are closed.
 *		If the queue is full the token is offered again on the
 *		next tick or cancel.
 *
 *--------------------------------------------------------------------*/

type txRun struct {
	antenna *Antenna
	tx      *Transmission
	clocks  []Clock

	terminated atomic.Bool
	scheduled  atomic.Bool
	cause      error // written once, by the terminate() that won
}

func (r *txRun) write(level int) {
	r.antenna.frontend.Write(level)
}

func (r *txRun) terminate(cause error) bool {
	if !r.terminated.CompareAndSwap(false, true) {
		return false
	}

	r.cause = cause
	r.scheduleCleanup()

	return true
}

// ended reports whether the run has terminated.  A cleanup the dispatcher
// turned away is offered again, so trailing ticks keep retrying until it
// is queued.
func (r *txRun) ended() bool {
	if !r.terminated.Load() {
		return false
	}

	r.scheduleCleanup()

	return true
}

func (r *txRun) scheduleCleanup() {
	if !r.scheduled.CompareAndSwap(false, true) {
		return
	}

	if r.antenna.dispatcher.Schedule(r.cleanup, r.tx) != nil {
		r.scheduled.Store(false)
	}
}

func (r *txRun) abort() {
	if !r.terminate(ErrCancelled) {
		r.scheduleCleanup()
	}
}

// cleanup runs in the dispatcher task.
func (r *txRun) cleanup(_ *Transmission) {
	r.closeClocks()
	r.write(0)
	r.antenna.release(r, r.cause)
}

func (r *txRun) closeClocks() {
	for _, c := range r.clocks {
		if err := c.Close(); err != nil {
			r.antenna.log.Warn("Closing clock", "signal", r.tx.Name, "err", err)
		}
	}

	r.clocks = nil
}
