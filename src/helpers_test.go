package rfcompanion

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPflag(args []string) {
	os.Args = args
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
}

// captureStdout runs command with os.Stdout redirected and returns what it printed.
func captureStdout(t *testing.T, command func()) string {
	t.Helper()

	var oldStdout = os.Stdout
	defer func() {
		os.Stdout = oldStdout
	}()

	var r, w, err = os.Pipe()
	require.NoError(t, err)

	os.Stdout = w

	command()

	w.Close() //nolint:gosec

	os.Stdout = oldStdout

	var outputBytes, readErr = io.ReadAll(r)
	require.NoError(t, readErr)

	return string(outputBytes)
}

func assertOutputContains(t *testing.T, command func(), expectedOutputContains string) {
	t.Helper()

	assert.Contains(t, captureStdout(t, command), expectedOutputContains)
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// mockLine is a test double for an OutputLine that records calls without
// requiring GPIO hardware or the gpio-sim kernel module.
type mockLine struct {
	values []int
	closed bool
	fail   bool
}

func (m *mockLine) SetValue(v int) error {
	if m.fail {
		return errors.New("line gone")
	}

	m.values = append(m.values, v)

	return nil
}

func (m *mockLine) Close() error {
	m.closed = true

	return nil
}

func (m *mockLine) value() int {
	if len(m.values) == 0 {
		return -1
	}

	return m.values[len(m.values)-1]
}

type simRig struct {
	sim        *SimFrontend
	dispatcher *Dispatcher
	antenna    *Antenna
}

func newSimRig() *simRig {
	return newSimRigQueue(0)
}

func newSimRigQueue(size int) *simRig {
	var sim = NewSimFrontend()
	var d = NewDispatcher(size)

	return &simRig{sim: sim, dispatcher: d, antenna: NewAntenna("test", sim, d, testLogger())}
}

// runToTermination steps until a cleanup is waiting and returns the number of steps.
func (r *simRig) runToTermination(t require.TestingT) int {
	var steps = 0

	for r.dispatcher.Pending() == 0 {
		require.True(t, r.sim.Step(), "clocks stopped before the transmission terminated")

		steps++
		require.Less(t, steps, 1_000_000, "transmission never terminated")
	}

	return steps
}

// Small, exact numbers: 20 us base cycles, a 1 us sub-carrier.
func testClemsaTiming() ClemsaTiming {
	return ClemsaTiming{
		SyncCycles:   4,
		WaitCycles:   1,
		GapCycles:    1,
		AskTicksZero: 2,
		AskTicksOne:  6,
		BaseHigh:     10 * time.Microsecond,
		BaseLow:      10 * time.Microsecond,
		SubcarrierHz: 1_000_000,
	}
}

func mustPulseCode(t require.TestingT, digits string, reps int) PulseCode {
	var code, err = ParsePulseCode(digits, reps)
	require.NoError(t, err)

	return code
}

// queued counts notifications published but not yet received by a subscriber.
func (h *Hub) queued() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var n = 0
	for s := range h.subs {
		n += len(s.c)
	}

	return n
}
