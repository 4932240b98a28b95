package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Front ends that bit-bang an output line on software
 *		timers: a GPIO line through the character device, the
 *		RTS or DTR control line of a serial port, or nothing at
 *		all for dry runs.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

const CONSUMER_NAME = "rfcompanion"

type lineFrontend struct {
	name string
	line OutputLine
	loop *tickLoop

	writeErrs atomic.Uint32
}

func newLineFrontend(name string, line OutputLine, spin time.Duration, rt RealtimeConfig, logger *log.Logger) *lineFrontend {
	return &lineFrontend{ //nolint:exhaustruct
		name: name,
		line: line,
		loop: newTickLoop(spin, rt, logger.WithPrefix(name+" ticks")),
	}
}

func (f *lineFrontend) Write(level int) {
	if f.line.SetValue(level) != nil {
		f.writeErrs.Add(1)
	}
}

func (f *lineFrontend) NewClock(name string, period time.Duration, tick func()) (Clock, error) {
	return f.loop.add(name, period, tick) //nolint:wrapcheck
}

// Idle reports write failures seen since the last Idle; the tick handlers can't.
func (f *lineFrontend) Idle() error {
	if n := f.writeErrs.Swap(0); n > 0 {
		return fmt.Errorf("%s: %d failed line writes during transmission", f.name, n)
	}

	return nil
}

func (f *lineFrontend) Close() error {
	f.loop.close()

	return f.line.Close() //nolint:wrapcheck
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenGPIOFrontend
 *
 * Purpose:     Drive the transmitter data pin directly.
 *
 * Inputs:	cfg.Chip	- e.g. gpiochip0
 *		cfg.Line	- line offset on that chip.
 *		cfg.Invert	- line is active low.
 *
 *--------------------------------------------------------------------*/

func OpenGPIOFrontend(cfg FrontendConfig, rt RealtimeConfig, logger *log.Logger) (Frontend, error) {
	var options = []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(CONSUMER_NAME),
	}
	if cfg.Invert {
		options = append(options, gpiocdev.AsActiveLow)
	}

	var line, err = gpiocdev.RequestLine(cfg.Chip, cfg.Line, options...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}

	return newLineFrontend(fmt.Sprintf("gpio %s:%d", cfg.Chip, cfg.Line), line, cfg.Spin, rt, logger), nil
}

// serialControlLine keys RTS or DTR, the same lines a serial PTT uses.
type serialControlLine struct {
	f      *os.File
	bit    int
	invert bool
}

func (s *serialControlLine) SetValue(value int) error {
	var on = (value != 0) != s.invert

	var fd = int(s.f.Fd()) //nolint:gosec

	var stuff, err = unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return fmt.Errorf("TIOCMGET: %w", err)
	}

	if on {
		stuff |= s.bit
	} else {
		stuff &= ^s.bit
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCMSET, stuff); err != nil {
		return fmt.Errorf("TIOCMSET: %w", err)
	}

	return nil
}

func (s *serialControlLine) Close() error {
	return s.f.Close() //nolint:wrapcheck
}

func OpenSerialFrontend(cfg FrontendConfig, rt RealtimeConfig, logger *log.Logger) (Frontend, error) {
	var bit int

	switch strings.ToLower(cfg.Control) {
	case "", "rts":
		bit = unix.TIOCM_RTS
	case "dtr":
		bit = unix.TIOCM_DTR
	default:
		return nil, fmt.Errorf("serial control line %q: want rts or dtr", cfg.Control)
	}

	var f, err = os.OpenFile(cfg.Device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	var line = &serialControlLine{f: f, bit: bit, invert: cfg.Invert}
	if err := line.SetValue(0); err != nil {
		return nil, errors.Join(err, f.Close())
	}

	return newLineFrontend("serial "+cfg.Device, line, cfg.Spin, rt, logger), nil
}

type nullLine struct{}

func (nullLine) SetValue(int) error { return nil }
func (nullLine) Close() error       { return nil }
