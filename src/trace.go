package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Read a recorded output back as symbols, the way a
 *		receiver would see it.
 *
 * Description:	Pulse codes are read one base clock cycle at a time,
 *		looking only at the high half of the cycle:
 *
 *		  H	carrier on for the whole half (sync)
 *		  L	nothing
 *		  0 / 1	a sub-carrier burst, short or long
 *
 *		Fixed codes are read one level per bit slot.
 *
 *---------------------------------------------------------------*/

import (
	"strings"
	"time"
)

// Output is what a trace needs from a recording front end.
type Output interface {
	Transitions() []Sample
}

// CycleStart is when base cycle n rises, counting from Begin.
func (t ClemsaTiming) CycleStart(n int) time.Duration {
	return t.BaseLow + time.Duration(n)*t.CyclePeriod()
}

func ReadCycles(out Output, t ClemsaTiming, cycles int) string {
	var trans = out.Transitions()
	var sb strings.Builder

	// A burst of this many sub-carrier pulses or fewer is a 0.
	var zeroPulses = (t.AskTicksZero + 1) / 2

	for n := range cycles {
		var start = t.CycleStart(n)
		var end = start + t.BaseHigh

		var rises, falls int
		var risesAtStart bool

		for _, s := range trans {
			if s.At < start || s.At >= end {
				continue
			}

			if s.Level != 0 {
				rises++
				risesAtStart = risesAtStart || s.At == start
			} else {
				falls++
			}
		}

		switch {
		case rises == 0:
			sb.WriteByte('L')
		case rises == 1 && falls == 0 && risesAtStart:
			sb.WriteByte('H')
		case rises > zeroPulses:
			sb.WriteByte('1')
		default:
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

// ReadBitSlots returns the level of each of n bit slots.  The first slot
// ends one period after Begin.
func ReadBitSlots(out Output, period time.Duration, n int) string {
	var trans = out.Transitions()
	var sb strings.Builder

	var level = 0
	var next = 0

	for i := range n {
		var at = time.Duration(i+1) * period

		for next < len(trans) && trans[next].At <= at {
			level = trans[next].Level
			next++
		}

		if level != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}
