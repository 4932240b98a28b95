package rfcompanion

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func levels(samples []Sample) []int {
	var out = make([]int, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Level)
	}

	return out
}

func Test_FixedCodeScenario(t *testing.T) {
	var rig = newSimRig()
	var code = FixedCode{Data: []byte{0xA0}, BitRate: 1000, Repetitions: 2, TicksBetweenRepetitions: 3}
	var tx = &Transmission{Name: "a0", Generator: new(FixedCodeGenerator), Payload: code}

	require.NoError(t, rig.antenna.Begin(tx))
	rig.runToTermination(t)

	var samples = rig.sim.Samples()
	require.NotEmpty(t, samples)
	assert.Equal(t, time.Duration(0), samples[0].At, "line forced low at Begin")

	assert.Equal(t, []int{
		1, 0, 1, 0, 0, 0, 0, 0, // first repetition
		0, 0, 0, // gap
		1, 0, 1, 0, 0, 0, 0, 0, // second repetition
		0, // end
	}, levels(samples[1:]))

	assert.Equal(t, "10100000"+"000"+"10100000"+"0", ReadBitSlots(rig.sim, time.Millisecond, 20))
	assert.Equal(t, 20*time.Millisecond, rig.sim.Now())

	assert.Equal(t, 1, rig.dispatcher.Drain())
	assert.False(t, rig.antenna.IsBusy())
	assert.False(t, rig.sim.Step())
}

func Test_FixedCodeMSBFirst(t *testing.T) {
	var rig = newSimRig()
	var code = FixedCode{Data: []byte{0x01, 0x80}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}
	var tx = &Transmission{Name: "msb", Generator: new(FixedCodeGenerator), Payload: code}

	require.NoError(t, rig.antenna.Begin(tx))
	rig.runToTermination(t)

	assert.Equal(t, "0000000110000000"+"0", ReadBitSlots(rig.sim, time.Millisecond, 17))
}

func Test_FixedCodeTrailingTicks(t *testing.T) {
	var rig = newSimRig()
	var code = FixedCode{Data: []byte{0xFF}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}
	var tx = &Transmission{Name: "ff", Generator: new(FixedCodeGenerator), Payload: code}

	require.NoError(t, rig.antenna.Begin(tx))
	rig.runToTermination(t)

	var written = len(rig.sim.Samples())

	for range 10 {
		require.True(t, rig.sim.Step())
	}

	assert.Len(t, rig.sim.Samples(), written, "a terminated generator does not write")
	assert.Equal(t, 1, rig.dispatcher.Pending())
}

func Test_FixedCodeValidate(t *testing.T) {
	var good = FixedCode{Data: []byte{1}, BitRate: 10, Repetitions: 1, TicksBetweenRepetitions: 0}
	require.NoError(t, good.Validate())

	for name, mutate := range map[string]func(*FixedCode){
		"no data":      func(c *FixedCode) { c.Data = nil },
		"no bit rate":  func(c *FixedCode) { c.BitRate = 0 },
		"no reps":      func(c *FixedCode) { c.Repetitions = 0 },
		"negative gap": func(c *FixedCode) { c.TicksBetweenRepetitions = -1 },
	} {
		var c = good
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), ErrPayloadMismatch, name)
	}
}

func Test_FixedCodeRejectsPulsePayload(t *testing.T) {
	var rig = newSimRig()
	var tx = &Transmission{Name: "wrong", Generator: new(FixedCodeGenerator), Payload: mustPulseCode(t, "1", 1)}

	require.ErrorIs(t, rig.antenna.Begin(tx), ErrPayloadMismatch)
	assert.False(t, rig.antenna.IsBusy())
}

func Test_ParseHexData(t *testing.T) {
	var data, err = ParseHexData("0x02, 0xAA\n2b")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xAA, 0x2B}, data)

	_, err = ParseHexData("zz")
	require.Error(t, err)
}

func Test_FixedCodeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var code = FixedCode{
			Data:                    rapid.SliceOfN(rapid.Byte(), 1, 4).Draw(t, "data"),
			BitRate:                 1000,
			Repetitions:             rapid.IntRange(1, 3).Draw(t, "reps"),
			TicksBetweenRepetitions: rapid.IntRange(0, 4).Draw(t, "gap"),
		}

		var bits strings.Builder
		for i := range code.Bits() {
			if code.Data[i/8]>>(7-i%8)&1 == 1 {
				bits.WriteByte('1')
			} else {
				bits.WriteByte('0')
			}
		}

		var expected strings.Builder
		for rep := range code.Repetitions {
			if rep > 0 {
				expected.WriteString(strings.Repeat("0", max(code.TicksBetweenRepetitions, 1)))
			}

			expected.WriteString(bits.String())
		}

		expected.WriteString("0")

		var rig = newSimRig()
		require.NoError(t, rig.antenna.Begin(&Transmission{Name: "prop", Generator: new(FixedCodeGenerator), Payload: code}))
		rig.runToTermination(t)

		require.Equal(t, expected.String(), ReadBitSlots(rig.sim, time.Millisecond, expected.Len()))
		require.Equal(t, 1, rig.dispatcher.Drain())
		require.False(t, rig.antenna.IsBusy())
	})
}
