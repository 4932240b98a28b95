package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Single-writer arbitration of the physical transmitter.
 *
 * Description:	There is one antenna and at most one transmission on it.
 *		Acquire and release are the only writers of the busy
 *		state and run in task context under mu.  A run only
 *		ever releases the antenna it still owns.  Tick handlers
 *		never touch the antenna state; they only reach it
 *		through the dispatcher once they are finished.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// BeginHook runs inside Acquire once a transmission is admitted, before the
// generator starts.  EndHook runs inside Release; cause is nil for a
// transmission that ran to completion.  Hooks are called with the antenna
// locked and must not call back into Acquire, Release, Begin or Cancel.
type (
	BeginHook func(a *Antenna, tx *Transmission)
	EndHook   func(a *Antenna, tx *Transmission, cause error)
)

type Antenna struct {
	Name string

	// Set before the first transmission.
	OnBegin BeginHook
	OnEnd   EndHook

	frontend   Frontend
	dispatcher *Dispatcher
	log        *log.Logger

	mu            sync.Mutex
	active        *Transmission
	run           *txRun
	cancelPending bool
	busy          atomic.Bool
}

func NewAntenna(name string, frontend Frontend, dispatcher *Dispatcher, logger *log.Logger) *Antenna {
	return &Antenna{ //nolint:exhaustruct
		Name:       name,
		frontend:   frontend,
		dispatcher: dispatcher,
		log:        logger.WithPrefix("antenna " + name),
	}
}

// Acquire admits tx if nothing is on the air.  ErrBusy is a normal outcome.
func (a *Antenna) Acquire(tx *Transmission) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		return ErrBusy
	}

	a.active = tx
	a.run = nil
	a.cancelPending = false
	a.busy.Store(true)

	if a.OnBegin != nil {
		a.OnBegin(a, tx)
	}

	return nil
}

// Release frees the antenna.  Releasing a free antenna does nothing.  A
// transmission whose generator is running is cancelled instead, and the
// antenna is free once its cleanup has run.
func (a *Antenna) Release() {
	a.mu.Lock()
	var run = a.run
	a.mu.Unlock()

	if run != nil {
		run.abort()

		return
	}

	a.release(nil, nil)
}

// release frees the antenna if run still owns it.  A nil run is the owner
// between Acquire and attach.
func (a *Antenna) release(run *txRun, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var tx = a.active
	if tx == nil || a.run != run {
		return
	}

	if err := a.frontend.Idle(); err != nil {
		a.log.Warn("Front end did not go idle cleanly", "signal", tx.Name, "err", err)
	}

	if n := a.dispatcher.Rejected(); n > 0 {
		a.log.Warn("Cleanup was turned away by a full queue", "signal", tx.Name, "times", n)
	}

	a.active = nil
	a.run = nil
	a.cancelPending = false
	a.busy.Store(false)

	if a.OnEnd != nil {
		a.OnEnd(a, tx, cause)
	}
}

func (a *Antenna) IsBusy() bool {
	return a.busy.Load()
}

// Active returns the transmission on the air, or nil.
func (a *Antenna) Active() *Transmission {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.active
}

/*-------------------------------------------------------------------
 *
 * Name:        Begin
 *
 * Purpose:     Acquire the antenna for tx and start its generator.
 *
 * Returns:	ErrBusy if something else is on the air.
 *		A hardware fault from the generator, in which case the
 *		antenna has already been released again.
 *
 *--------------------------------------------------------------------*/

func (a *Antenna) Begin(tx *Transmission) error {
	if err := a.Acquire(tx); err != nil {
		return err
	}

	a.log.Info("Begin transmission", "signal", tx.Name, "kind", tx.Payload.Kind())

	if err := tx.Generator.Begin(a, tx); err != nil {
		a.log.Error("Generator failed to start", "signal", tx.Name, "err", err)
		a.release(nil, err)

		return fmt.Errorf("begin %s: %w", tx.Name, err)
	}

	// A cancel that arrived while the generator was starting.
	if run := a.takePendingCancel(); run != nil {
		a.log.Info("Cancelling transmission", "signal", tx.Name)
		run.abort()
	}

	return nil
}

// Cancel stops the transmission on the air.  Cleanup still goes through the
// dispatcher, so the antenna is free only once that has run.  A cancel that
// arrives before the generator is running takes effect as soon as it is.
func (a *Antenna) Cancel() error {
	a.mu.Lock()
	var run = a.run

	if a.active == nil {
		a.mu.Unlock()

		return ErrNotBusy
	}

	if run == nil {
		a.cancelPending = true
		a.mu.Unlock()

		return nil
	}
	a.mu.Unlock()

	a.log.Info("Cancelling transmission")
	run.abort()

	return nil
}

// attach is called by a generator once its run exists, before its clocks start.
func (a *Antenna) attach(run *txRun) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.run = run
}

func (a *Antenna) takePendingCancel() *txRun {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cancelPending || a.run == nil {
		return nil
	}

	a.cancelPending = false

	return a.run
}
