package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Fixed code generator: a stored bit pattern played out
 *		at a constant bit rate.
 *
 * Description:	One clock, one tick per bit.  Bits go out MSB first.
 *		After the last bit of the pattern the output is held low
 *		for a number of ticks, then the pattern starts again, as
 *		many times as the signal asks for.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FixedCode is the payload of a FixedCodeGenerator transmission.
type FixedCode struct {
	Data                    []byte
	BitRate                 int
	Repetitions             int
	TicksBetweenRepetitions int
}

func (FixedCode) Kind() string { return "fixed" }

func (c FixedCode) Bits() int {
	return len(c.Data) * 8
}

func (c FixedCode) Validate() error {
	switch {
	case len(c.Data) == 0:
		return fmt.Errorf("%w: no data", ErrPayloadMismatch)
	case c.BitRate <= 0:
		return fmt.Errorf("%w: bit rate %d", ErrPayloadMismatch, c.BitRate)
	case c.Repetitions <= 0:
		return fmt.Errorf("%w: repetitions %d", ErrPayloadMismatch, c.Repetitions)
	case c.TicksBetweenRepetitions < 0:
		return fmt.Errorf("%w: negative gap %d", ErrPayloadMismatch, c.TicksBetweenRepetitions)
	}

	return nil
}

// ParseHexData accepts "02 aa 0x55" style dumps as well as plain hex.
func ParseHexData(s string) ([]byte, error) {
	var clean = strings.NewReplacer("0x", "", "0X", "", " ", "", ",", "", "\n", "", "\t", "").Replace(s)

	var data, err = hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("hex data: %w", err)
	}

	return data, nil
}

type FixedCodeGenerator struct{}

type fixedRun struct {
	txRun

	code FixedCode

	tick                uint32
	nextBit             int
	repetition          int
	nextRepetitionStart uint32
}

func (g *FixedCodeGenerator) Begin(a *Antenna, tx *Transmission) error {
	var code, ok = tx.Payload.(FixedCode)
	if !ok {
		return fmt.Errorf("%w: fixed code generator given %s payload", ErrPayloadMismatch, tx.Payload.Kind())
	}

	if err := code.Validate(); err != nil {
		return err
	}

	var r = &fixedRun{ //nolint:exhaustruct
		txRun: txRun{antenna: a, tx: tx}, //nolint:exhaustruct
		code:  code,
	}

	var clk, err = a.frontend.NewClock("bit", time.Second/time.Duration(code.BitRate), r.onTick)
	if err != nil {
		return fmt.Errorf("bit clock: %w", err)
	}

	r.clocks = append(r.clocks, clk)

	a.attach(&r.txRun)
	r.write(0)
	clk.Start()

	return nil
}

func (r *fixedRun) onTick() {
	if r.ended() {
		return
	}

	switch {
	case r.tick < r.nextRepetitionStart:
		r.write(0)

	case r.nextBit >= r.code.Bits():
		r.write(0)
		r.repetition++

		if r.repetition >= r.code.Repetitions {
			r.terminate(nil)
		} else {
			r.nextRepetitionStart = r.tick + uint32(r.code.TicksBetweenRepetitions) //nolint:gosec
			r.nextBit = 0
		}

	default:
		var b = r.code.Data[r.nextBit/8] >> (7 - r.nextBit%8) & 1
		r.write(int(b))
		r.nextBit++
	}

	r.tick++
}
