package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Software timers for front ends without a clock of
 *		their own.
 *
 * Description:	One goroutine, locked to an OS thread, serves every
 *		clock of the front end.  It sleeps until shortly before
 *		the earliest deadline and then spins, which is the only
 *		way to get tens-of-microseconds periods out of a general
 *		purpose scheduler.  The thread can be pinned to a CPU and
 *		given a real-time priority, see realtime.go.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

const DEFAULT_SPIN_WINDOW = 200 * time.Microsecond

type tickLoop struct {
	clockSet

	epoch time.Time
	spin  time.Duration
	rt    RealtimeConfig
	log   *log.Logger

	wakeC chan struct{}
	stopC chan struct{}
	done  chan struct{}
}

func newTickLoop(spin time.Duration, rt RealtimeConfig, logger *log.Logger) *tickLoop {
	if spin <= 0 {
		spin = DEFAULT_SPIN_WINDOW
	}

	var l = &tickLoop{ //nolint:exhaustruct
		epoch: time.Now(),
		spin:  spin,
		rt:    rt,
		log:   logger,
		wakeC: make(chan struct{}, 1),
		stopC: make(chan struct{}),
		done:  make(chan struct{}),
	}

	l.now = func() int64 { return int64(time.Since(l.epoch)) }
	l.units = func(d time.Duration) int64 { return int64(d) }
	l.wake = func() {
		select {
		case l.wakeC <- struct{}{}:
		default:
		}
	}

	go l.run()

	return l
}

func (l *tickLoop) run() {
	defer close(l.done)

	if err := setupTickThread(l.rt); err != nil {
		l.log.Warn("Tick thread runs without real-time settings", "err", err)
	}

	for {
		var deadline, ok = l.nextDeadline()
		if !ok {
			select {
			case <-l.wakeC:
				continue
			case <-l.stopC:
				return
			}
		}

		if !l.sleepUntil(deadline) {
			return
		}

		l.fire(l.now())
	}
}

// sleepUntil returns false when the loop is stopping.  A wake-up cuts the
// sleep short; fire() then simply finds nothing due.
func (l *tickLoop) sleepUntil(deadline int64) bool {
	var wait = time.Duration(deadline - l.now())

	if wait > l.spin {
		var timer = time.NewTimer(wait - l.spin)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-l.wakeC:
			return true
		case <-l.stopC:
			return false
		}
	}

	for l.now() < deadline { //nolint:revive
	}

	return true
}

func (l *tickLoop) close() {
	select {
	case <-l.stopC:
	default:
		close(l.stopC)
	}

	<-l.done
}
