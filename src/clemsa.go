package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Pulse code generator for Clemsa style gate remotes.
 *
 * Description:	Two clocks drive the output.
 *
 *		The base clock is a square wave that splits time into
 *		cycles.  Its rising edge decides what the cycle carries;
 *		its falling edge always forces the output low and stops
 *		the sub-carrier.
 *
 *		The sub-carrier (ASK) clock is much faster and only runs
 *		while one digit of the code is being sent.  It toggles
 *		the output a number of times that depends on the digit,
 *		few for a 0 and many for a 1, then stops by itself.
 *
 *		A transmission is a sync preamble of continuous carrier,
 *		a short wait, and then the code repeated a number of
 *		times with a gap between repetitions:
 *
 *		 sync  wait  code  gap  code  gap ... code
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CLEMSA_DEFAULT_CODE_SIZE        = 36
	CLEMSA_DEFAULT_REPETITION_COUNT = 10
	CLEMSA_DEFAULT_SUBCARRIER_HZ    = 16670
	CLEMSA_DEFAULT_SYNC_CYCLES      = 79
	CLEMSA_DEFAULT_WAIT_CYCLES      = 5
	CLEMSA_DEFAULT_GAP_CYCLES       = 5
	CLEMSA_DEFAULT_ASK_TICKS_ZERO   = 15
	CLEMSA_DEFAULT_ASK_TICKS_ONE    = 100
	CLEMSA_DEFAULT_BASE_HIGH        = 2070 * time.Microsecond
	CLEMSA_DEFAULT_BASE_LOW         = 1030 * time.Microsecond
)

// ClemsaTiming holds the constants of the code.  Cycles are base clock cycles.
type ClemsaTiming struct {
	// Cycles of continuous carrier before anything else.
	SyncCycles int `yaml:"sync_cycles"`

	// Cycles between the end of sync and the first repetition.
	WaitCycles int `yaml:"wait_cycles"`

	// Cycles between repetitions.
	GapCycles int `yaml:"gap_cycles"`

	// Sub-carrier toggles emitted for each digit.
	AskTicksZero int `yaml:"ask_ticks_zero"`
	AskTicksOne  int `yaml:"ask_ticks_one"`

	BaseHigh     time.Duration `yaml:"base_high"`
	BaseLow      time.Duration `yaml:"base_low"`
	SubcarrierHz int           `yaml:"subcarrier_hz"`
}

func DefaultClemsaTiming() ClemsaTiming {
	return ClemsaTiming{
		SyncCycles:   CLEMSA_DEFAULT_SYNC_CYCLES,
		WaitCycles:   CLEMSA_DEFAULT_WAIT_CYCLES,
		GapCycles:    CLEMSA_DEFAULT_GAP_CYCLES,
		AskTicksZero: CLEMSA_DEFAULT_ASK_TICKS_ZERO,
		AskTicksOne:  CLEMSA_DEFAULT_ASK_TICKS_ONE,
		BaseHigh:     CLEMSA_DEFAULT_BASE_HIGH,
		BaseLow:      CLEMSA_DEFAULT_BASE_LOW,
		SubcarrierHz: CLEMSA_DEFAULT_SUBCARRIER_HZ,
	}
}

func (t ClemsaTiming) Validate() error {
	var errs []error

	if t.SyncCycles < 0 || t.WaitCycles < 0 || t.GapCycles < 0 {
		errs = append(errs, errors.New("cycle counts must not be negative"))
	}

	if t.AskTicksZero <= 0 || t.AskTicksOne <= t.AskTicksZero {
		errs = append(errs, fmt.Errorf("need 0 < ask_ticks_zero (%d) < ask_ticks_one (%d)", t.AskTicksZero, t.AskTicksOne))
	}

	if t.BaseHigh <= 0 || t.BaseLow <= 0 {
		errs = append(errs, fmt.Errorf("base clock high %s and low %s must be positive", t.BaseHigh, t.BaseLow))
	}

	if t.SubcarrierHz <= 0 {
		errs = append(errs, fmt.Errorf("subcarrier_hz %d must be positive", t.SubcarrierHz))
	}

	return errors.Join(errs...)
}

func (t ClemsaTiming) SubcarrierPeriod() time.Duration {
	return time.Second / time.Duration(t.SubcarrierHz)
}

func (t ClemsaTiming) CyclePeriod() time.Duration {
	return t.BaseHigh + t.BaseLow
}

// RepetitionStart is the cycle repetition n (counting from 0) begins on.
func (t ClemsaTiming) RepetitionStart(n int, codeLen int) uint32 {
	return uint32(t.SyncCycles + t.WaitCycles + (codeLen+t.GapCycles)*n) //nolint:gosec
}

// PulseCode is the payload of a ClemsaGenerator transmission.
type PulseCode struct {
	Bits        []bool
	Repetitions int
}

func (PulseCode) Kind() string { return "clemsa" }

// ParsePulseCode reads digits like "1011 0010"; spaces and underscores are ignored.
func ParsePulseCode(digits string, repetitions int) (PulseCode, error) {
	var code = PulseCode{Repetitions: repetitions} //nolint:exhaustruct

	for i, r := range digits {
		switch r {
		case '0':
			code.Bits = append(code.Bits, false)
		case '1':
			code.Bits = append(code.Bits, true)
		case ' ', '_':
		default:
			return PulseCode{}, fmt.Errorf("code digit %q at %d is not 0 or 1", r, i) //nolint:exhaustruct
		}
	}

	if len(code.Bits) == 0 {
		return PulseCode{}, errors.New("empty code") //nolint:exhaustruct
	}

	if repetitions <= 0 {
		return PulseCode{}, fmt.Errorf("repetitions %d must be positive", repetitions) //nolint:exhaustruct
	}

	return code, nil
}

func (c PulseCode) String() string {
	var sb strings.Builder
	for _, b := range c.Bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

type ClemsaGenerator struct {
	Timing ClemsaTiming
}

func NewClemsaGenerator(timing ClemsaTiming) *ClemsaGenerator {
	return &ClemsaGenerator{Timing: timing}
}

// clemsaRun is the generator state of one transmission.  Only tick handlers
// touch it once the base clock has started.
type clemsaRun struct {
	txRun

	timing ClemsaTiming
	code   PulseCode

	base Clock
	ask  Clock

	baseHigh bool // next base tick is a fall

	cycles              uint32
	nextBit             int
	askRunning          bool
	askHigh             bool
	remainingAskTicks   int
	nextRepetitionStart uint32
	timesSent           int
}

func (g *ClemsaGenerator) Begin(a *Antenna, tx *Transmission) error {
	var code, ok = tx.Payload.(PulseCode)
	if !ok {
		return fmt.Errorf("%w: clemsa generator given %s payload", ErrPayloadMismatch, tx.Payload.Kind())
	}

	if len(code.Bits) == 0 || code.Repetitions <= 0 {
		return fmt.Errorf("%w: empty code or no repetitions", ErrPayloadMismatch)
	}

	var r = &clemsaRun{ //nolint:exhaustruct
		txRun:  txRun{antenna: a, tx: tx}, //nolint:exhaustruct
		timing: g.Timing,
		code:   code,
	}
	r.nextRepetitionStart = g.Timing.RepetitionStart(0, len(code.Bits))

	// The sub-carrier is created first so that on an instant where both are
	// due its tick comes before the base edge.
	var ask, askErr = a.frontend.NewClock("ask", g.Timing.SubcarrierPeriod(), r.askTick)
	if askErr != nil {
		return fmt.Errorf("sub-carrier clock: %w", askErr)
	}

	r.clocks = append(r.clocks, ask)

	var base, baseErr = a.frontend.NewClock("base", g.Timing.BaseLow, r.baseTick)
	if baseErr != nil {
		r.closeClocks()

		return fmt.Errorf("base clock: %w", baseErr)
	}

	r.clocks = append(r.clocks, base)
	r.ask = ask
	r.base = base

	a.attach(&r.txRun)
	r.write(0)
	base.Start()

	return nil
}

// baseTick alternates between the rising and falling edge of the base clock.
func (r *clemsaRun) baseTick() {
	if r.baseHigh {
		r.base.SetPeriod(r.timing.BaseLow)
		r.fall()
	} else {
		r.base.SetPeriod(r.timing.BaseHigh)
		r.rise()
	}

	r.baseHigh = !r.baseHigh
}

func (r *clemsaRun) rise() {
	if r.ended() {
		r.write(0)

		return
	}

	switch {
	case r.cycles < uint32(r.timing.SyncCycles): //nolint:gosec
		// Sync: continuous carrier.
		r.write(1)

	case r.cycles < r.nextRepetitionStart:
		// Wait before the first repetition, or the gap between two.
		r.write(0)

	case r.nextBit < len(r.code.Bits):
		var bit = r.code.Bits[r.nextBit]
		r.nextBit++

		if bit {
			r.remainingAskTicks = r.timing.AskTicksOne
		} else {
			r.remainingAskTicks = r.timing.AskTicksZero
		}

		r.askHigh = false
		r.askEnable(true)

	default:
		// Repetition done; this cycle already counts towards the gap.
		r.write(0)
		r.timesSent++

		if r.timesSent >= r.code.Repetitions {
			r.terminate(nil)
		} else {
			r.nextBit = 0
			r.nextRepetitionStart = r.timing.RepetitionStart(r.timesSent, len(r.code.Bits))
		}
	}
}

func (r *clemsaRun) fall() {
	r.askEnable(false)
	r.write(0)
	r.cycles++
}

func (r *clemsaRun) askTick() {
	if r.remainingAskTicks <= 0 {
		r.write(0)
		r.askEnable(false)

		return
	}

	r.remainingAskTicks--
	r.askHigh = !r.askHigh

	if r.askHigh {
		r.write(1)
	} else {
		r.write(0)
	}
}

func (r *clemsaRun) askEnable(enable bool) {
	if enable {
		if !r.askRunning {
			r.askRunning = true
			r.ask.Start()
		}
	} else if r.askRunning {
		r.ask.Stop()
		r.askRunning = false
	}
}
