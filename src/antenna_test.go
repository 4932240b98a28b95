package rfcompanion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingGenerator struct{ err error }

func (g failingGenerator) Begin(*Antenna, *Transmission) error { return g.err }

type nopPayload struct{}

func (nopPayload) Kind() string { return "nop" }

func Test_AcquireTwice(t *testing.T) {
	var rig = newSimRig()
	var first = &Transmission{Name: "first", Generator: failingGenerator{}, Payload: nopPayload{}}
	var second = &Transmission{Name: "second", Generator: failingGenerator{}, Payload: nopPayload{}}

	require.NoError(t, rig.antenna.Acquire(first))
	assert.ErrorIs(t, rig.antenna.Acquire(second), ErrBusy)

	assert.True(t, rig.antenna.IsBusy())
	assert.Same(t, first, rig.antenna.Active())
}

func Test_ReleaseIsIdempotent(t *testing.T) {
	var rig = newSimRig()
	var ends = 0
	rig.antenna.OnEnd = func(*Antenna, *Transmission, error) { ends++ }

	rig.antenna.Release()
	assert.Equal(t, 0, ends, "releasing a free antenna does nothing")

	require.NoError(t, rig.antenna.Acquire(&Transmission{Name: "x", Generator: failingGenerator{}, Payload: nopPayload{}}))
	rig.antenna.Release()
	rig.antenna.Release()

	assert.Equal(t, 1, ends)
	assert.False(t, rig.antenna.IsBusy())
	assert.Nil(t, rig.antenna.Active())
	assert.Equal(t, 1, rig.sim.Idles())
}

func Test_LifecycleHooks(t *testing.T) {
	var rig = newSimRig()
	var calls []string

	rig.antenna.OnBegin = func(a *Antenna, tx *Transmission) {
		assert.True(t, a.IsBusy())
		calls = append(calls, "begin "+tx.Name)
	}
	rig.antenna.OnEnd = func(a *Antenna, tx *Transmission, cause error) {
		assert.False(t, a.IsBusy())
		assert.NoError(t, cause)
		calls = append(calls, "end "+tx.Name)
	}

	var code = FixedCode{Data: []byte{0x80}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}
	require.NoError(t, rig.antenna.Begin(&Transmission{Name: "ping", Generator: new(FixedCodeGenerator), Payload: code}))
	assert.Equal(t, []string{"begin ping"}, calls)

	rig.runToTermination(t)
	assert.Equal(t, []string{"begin ping"}, calls, "end waits for the dispatcher")

	rig.dispatcher.Drain()
	assert.Equal(t, []string{"begin ping", "end ping"}, calls)
}

func Test_BeginFailureReleases(t *testing.T) {
	var rig = newSimRig()
	var fault = errors.New("timer setup failed")
	var cause error

	rig.antenna.OnEnd = func(_ *Antenna, _ *Transmission, c error) { cause = c }

	var err = rig.antenna.Begin(&Transmission{Name: "broken", Generator: failingGenerator{err: fault}, Payload: nopPayload{}})

	require.ErrorIs(t, err, fault)
	assert.ErrorIs(t, cause, fault)
	assert.False(t, rig.antenna.IsBusy())
	assert.Equal(t, 0, rig.dispatcher.Pending())
}

func Test_NoAdmissionBeforeCleanup(t *testing.T) {
	var rig = newSimRig()
	var code = FixedCode{Data: []byte{0x80}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}
	var tx = &Transmission{Name: "ping", Generator: new(FixedCodeGenerator), Payload: code}

	require.NoError(t, rig.antenna.Begin(tx))
	rig.runToTermination(t)

	// Logically finished, but cleanup hasn't run.
	assert.ErrorIs(t, rig.antenna.Begin(tx), ErrBusy)

	rig.dispatcher.Drain()
	require.NoError(t, rig.antenna.Begin(tx))
}

func Test_Cancel(t *testing.T) {
	var rig = newSimRig()
	var cause error

	rig.antenna.OnEnd = func(_ *Antenna, _ *Transmission, c error) { cause = c }

	assert.ErrorIs(t, rig.antenna.Cancel(), ErrNotBusy)

	var code = FixedCode{Data: []byte{0xFF, 0xFF}, BitRate: 1000, Repetitions: 3, TicksBetweenRepetitions: 5}
	require.NoError(t, rig.antenna.Begin(&Transmission{Name: "long", Generator: new(FixedCodeGenerator), Payload: code}))

	for range 4 {
		require.True(t, rig.sim.Step())
	}

	assert.Equal(t, 1, rig.sim.Level())

	require.NoError(t, rig.antenna.Cancel())
	assert.True(t, rig.antenna.IsBusy(), "cleanup still goes through the dispatcher")

	// A second cancel before cleanup schedules nothing more.
	require.NoError(t, rig.antenna.Cancel())
	assert.Equal(t, 1, rig.dispatcher.Pending())

	assert.Equal(t, 1, rig.dispatcher.Drain())
	assert.ErrorIs(t, cause, ErrCancelled)
	assert.False(t, rig.antenna.IsBusy())
	assert.Equal(t, 0, rig.sim.Level())
	assert.Equal(t, 4*time.Millisecond, rig.sim.Now())
}

func pingTransmission(name string) *Transmission {
	var code = FixedCode{Data: []byte{0x80}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}

	return &Transmission{Name: name, Generator: new(FixedCodeGenerator), Payload: code}
}

func Test_ReleaseCancelsRunningGenerator(t *testing.T) {
	var rig = newSimRig()
	var ended []string
	var cause error

	rig.antenna.OnEnd = func(_ *Antenna, tx *Transmission, c error) {
		ended = append(ended, tx.Name)
		cause = c
	}

	require.NoError(t, rig.antenna.Begin(pingTransmission("a")))
	require.True(t, rig.sim.Step())

	rig.antenna.Release()

	assert.True(t, rig.antenna.IsBusy(), "the running generator still owns the line")
	assert.ErrorIs(t, rig.antenna.Begin(pingTransmission("b")), ErrBusy)
	assert.Equal(t, 1, rig.dispatcher.Pending())

	rig.dispatcher.Drain()
	assert.Equal(t, []string{"a"}, ended)
	assert.ErrorIs(t, cause, ErrCancelled)
	assert.False(t, rig.antenna.IsBusy())
	assert.False(t, rig.sim.Running(), "clocks of a are closed")

	require.NoError(t, rig.antenna.Begin(pingTransmission("b")))
	assert.True(t, rig.sim.Running())
}

func Test_StaleCleanupDoesNotReleaseNext(t *testing.T) {
	var rig = newSimRig()
	var ended []string

	rig.antenna.OnEnd = func(_ *Antenna, tx *Transmission, _ error) { ended = append(ended, tx.Name) }

	require.NoError(t, rig.antenna.Begin(pingTransmission("a")))

	var runA = rig.antenna.run
	require.NotNil(t, runA)

	rig.runToTermination(t)
	rig.dispatcher.Drain()

	var b = pingTransmission("b")
	require.NoError(t, rig.antenna.Begin(b))

	// A second release on behalf of a must not touch b.
	rig.antenna.release(runA, nil)

	assert.True(t, rig.antenna.IsBusy())
	assert.Same(t, b, rig.antenna.Active())
	assert.Equal(t, []string{"a"}, ended)
	assert.True(t, rig.sim.Running())

	rig.runToTermination(t)
	rig.dispatcher.Drain()
	assert.Equal(t, []string{"a", "b"}, ended)
	assert.False(t, rig.antenna.IsBusy())
}

// cancellingGenerator asks for a cancel while the antenna is acquired but
// before the wrapped generator is running.
type cancellingGenerator struct {
	t     *testing.T
	inner Generator
}

func (g cancellingGenerator) Begin(a *Antenna, tx *Transmission) error {
	assert.NoError(g.t, a.Cancel(), "busy while starting")

	return g.inner.Begin(a, tx)
}

func Test_CancelWhileStarting(t *testing.T) {
	var rig = newSimRig()
	var cause error

	rig.antenna.OnEnd = func(_ *Antenna, _ *Transmission, c error) { cause = c }

	var code = FixedCode{Data: []byte{0xFF}, BitRate: 1000, Repetitions: 1, TicksBetweenRepetitions: 0}
	var tx = &Transmission{Name: "early", Generator: cancellingGenerator{t: t, inner: new(FixedCodeGenerator)}, Payload: code}

	require.NoError(t, rig.antenna.Begin(tx))
	assert.Equal(t, 1, rig.dispatcher.Pending(), "the cancel is honoured once the generator runs")

	rig.dispatcher.Drain()
	assert.ErrorIs(t, cause, ErrCancelled)
	assert.False(t, rig.antenna.IsBusy())
	assert.Equal(t, 0, rig.sim.Level())
}

func Test_CancelAfterAcquire(t *testing.T) {
	var rig = newSimRig()

	require.NoError(t, rig.antenna.Acquire(&Transmission{Name: "x", Generator: failingGenerator{}, Payload: nopPayload{}}))
	require.NoError(t, rig.antenna.Cancel())

	rig.antenna.Release()
	assert.False(t, rig.antenna.IsBusy())
	assert.ErrorIs(t, rig.antenna.Cancel(), ErrNotBusy)

	// A new transmission does not inherit the old cancel.
	require.NoError(t, rig.antenna.Begin(pingTransmission("next")))
	assert.Equal(t, 0, rig.dispatcher.Pending())
}

func Test_CleanupRetriedWhenQueueFull(t *testing.T) {
	var rig = newSimRigQueue(1)
	var ended = 0

	rig.antenna.OnEnd = func(*Antenna, *Transmission, error) { ended++ }

	require.NoError(t, rig.dispatcher.Schedule(func(*Transmission) {}, nil))
	require.NoError(t, rig.antenna.Begin(pingTransmission("ping")))

	var run = rig.antenna.run
	for !run.terminated.Load() {
		require.True(t, rig.sim.Step())
	}

	assert.Equal(t, 1, rig.dispatcher.Pending(), "only the earlier job is queued")
	assert.Equal(t, uint32(1), rig.dispatcher.Rejected())

	rig.dispatcher.Drain()
	assert.True(t, rig.antenna.IsBusy())

	// The next trailing tick offers the cleanup again.
	require.True(t, rig.sim.Step())
	assert.Equal(t, 1, rig.dispatcher.Pending())

	rig.dispatcher.Drain()
	assert.Equal(t, 1, ended)
	assert.False(t, rig.antenna.IsBusy())
}
