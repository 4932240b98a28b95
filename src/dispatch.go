package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Deferred completion: move end-of-transmission work out
 *		of tick context into a task.
 *
 * Description:	Closing clocks, releasing the antenna and telling the
 *		outside world are not things a tick handler may do.
 *		The handler that decides a transmission is over hands a
 *		token to this queue and returns; the dispatcher task
 *		runs the cleanup.
 *
 *		Each transmission enqueues at most one token (its
 *		terminated flag is compare-and-swapped before Schedule)
 *		and the antenna stays busy until the cleanup releases
 *		it, so cleanups never overlap the next transmission.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"sync/atomic"
)

const DEFAULT_DISPATCH_QUEUE = 16

type CleanupFunc func(tx *Transmission)

type cleanupJob struct {
	fn CleanupFunc
	tx *Transmission
}

type Dispatcher struct {
	queue    chan cleanupJob
	running  atomic.Bool
	rejected atomic.Uint32
}

func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = DEFAULT_DISPATCH_QUEUE
	}

	return &Dispatcher{queue: make(chan cleanupJob, size)} //nolint:exhaustruct
}

// Schedule queues fn(tx) for the dispatcher task.  Never blocks; safe from tick context.
func (d *Dispatcher) Schedule(fn CleanupFunc, tx *Transmission) error {
	select {
	case d.queue <- cleanupJob{fn: fn, tx: tx}:
		return nil
	default:
		d.rejected.Add(1)

		return ErrDispatchQueueFull
	}
}

// Rejected returns how many Schedule calls found the queue full since the
// last call.
func (d *Dispatcher) Rejected() uint32 {
	return d.rejected.Swap(0)
}

// Run executes cleanups until ctx is done, then drains what is left so
// no antenna stays busy on shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer d.running.Store(false)

	for {
		select {
		case job := <-d.queue:
			job.fn(job.tx)
		case <-ctx.Done():
			d.Drain()

			return nil
		}
	}
}

// Drain runs every queued cleanup in the caller's context and returns how many ran.
func (d *Dispatcher) Drain() int {
	var n = 0

	for {
		select {
		case job := <-d.queue:
			job.fn(job.tx)
			n++
		default:
			return n
		}
	}
}

func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
