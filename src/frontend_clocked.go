package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Radio front end in synchronous serial mode.
 *
 * Description:	Transceivers like the CC1101 can be put in a mode where
 *		they output their own data clock on one pin and sample
 *		the data pin on every clock edge.  Here the radio is the
 *		timer: every clock handed to a generator is a divider of
 *		that data clock, and all of them fire from the edge
 *		event handler.
 *
 *		Getting the radio into that mode (registers, PA table,
 *		data rate) is configuration outside this program.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

type clockedFrontend struct {
	clockSet

	data  OutputLine
	clock OutputLine // the edge source; only ever closed
	rate  int

	edges     atomic.Int64
	writeErrs atomic.Uint32
}

func newClockedFrontend(data OutputLine, rate int) *clockedFrontend {
	var f = &clockedFrontend{data: data, rate: rate} //nolint:exhaustruct

	f.now = f.edges.Load
	f.units = func(d time.Duration) int64 {
		return int64(math.Round(d.Seconds() * float64(rate)))
	}
	f.wake = func() {}

	return f
}

// edge is one data clock period.  Runs in the gpiocdev event goroutine.
func (f *clockedFrontend) edge() {
	f.fire(f.edges.Add(1))
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenClockedFrontend
 *
 * Inputs:	cfg.Chip	- gpio chip both lines are on.
 *		cfg.Line	- data input of the radio (GDO0 on a CC1101).
 *		cfg.ClockLine	- data clock output of the radio (GDO2).
 *		cfg.ClockRate	- data rate the radio was configured for.
 *
 *--------------------------------------------------------------------*/

func OpenClockedFrontend(cfg FrontendConfig) (Frontend, error) {
	if cfg.ClockRate <= 0 {
		return nil, fmt.Errorf("clocked front end needs a clock rate, got %d", cfg.ClockRate)
	}

	var options = []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(CONSUMER_NAME),
	}
	if cfg.Invert {
		options = append(options, gpiocdev.AsActiveLow)
	}

	var data, err = gpiocdev.RequestLine(cfg.Chip, cfg.Line, options...)
	if err != nil {
		return nil, fmt.Errorf("request data line %s:%d: %w", cfg.Chip, cfg.Line, err)
	}

	var f = newClockedFrontend(data, cfg.ClockRate)

	var clock, clockErr = gpiocdev.RequestLine(cfg.Chip, cfg.ClockLine,
		gpiocdev.WithConsumer(CONSUMER_NAME+"-clk"),
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { f.edge() }))
	if clockErr != nil {
		return nil, errors.Join(
			fmt.Errorf("request clock line %s:%d: %w", cfg.Chip, cfg.ClockLine, clockErr),
			data.Close())
	}

	f.clock = clock

	return f, nil
}

func (f *clockedFrontend) Write(level int) {
	if f.data.SetValue(level) != nil {
		f.writeErrs.Add(1)
	}
}

func (f *clockedFrontend) NewClock(name string, period time.Duration, tick func()) (Clock, error) {
	return f.add(name, period, tick)
}

func (f *clockedFrontend) Idle() error {
	if n := f.writeErrs.Swap(0); n > 0 {
		return fmt.Errorf("clocked front end: %d failed data line writes during transmission", n)
	}

	return nil
}

func (f *clockedFrontend) Close() error {
	var errs []error
	if f.clock != nil {
		errs = append(errs, f.clock.Close())
	}

	errs = append(errs, f.data.Close())

	return errors.Join(errs...)
}
