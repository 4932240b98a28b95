package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Utility program to check a signal without a radio.
 *
 * Description:	Runs the signal through the generators on the simulated
 *		front end and prints what a receiver would see, cycle by
 *		cycle for pulse codes and bit by bit for fixed codes.
 *
 *		rftrace -c rfcompanion.yaml tesla-charger
 *		rftrace 1 --transitions
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Nothing in the table comes near this; it stops a runaway simulation.
const RFTRACE_MAX_VIRTUAL_TIME = 10 * time.Minute

type TraceResult struct {
	Tx      *Transmission
	AirTime time.Duration
	Sim     *SimFrontend
}

// TraceSignal plays tx on a simulated antenna until its cleanup has run.
func TraceSignal(tx *Transmission, cfg *Config, w io.Writer) (*TraceResult, error) {
	var logger, err = NewLogger(LogConfig{Level: "warn", Format: "text"}, w)
	if err != nil {
		return nil, err
	}

	var sim = NewSimFrontend()
	var dispatcher = NewDispatcher(cfg.Dispatcher.QueueSize)
	var antenna = NewAntenna(cfg.Antenna, sim, dispatcher, logger)

	if err := antenna.Begin(tx); err != nil {
		return nil, err
	}

	for dispatcher.Pending() == 0 && sim.Now() < RFTRACE_MAX_VIRTUAL_TIME && sim.Step() {
	}

	var airTime = sim.Now()

	if dispatcher.Drain() == 0 {
		return nil, fmt.Errorf("%s did not finish within %s of virtual time", tx.Name, RFTRACE_MAX_VIRTUAL_TIME)
	}

	return &TraceResult{Tx: tx, AirTime: airTime, Sim: sim}, nil
}

func printTrace(w io.Writer, r *TraceResult, timing ClemsaTiming, transitions bool) {
	switch p := r.Tx.Payload.(type) {
	case PulseCode:
		fmt.Fprintf(w, "Signal %s: pulse code %s, %d repetitions\n", r.Tx.Name, p, p.Repetitions)

		var cycles = int((r.AirTime-timing.BaseLow)/timing.CyclePeriod()) + 1
		var trace = ReadCycles(r.Sim, timing, cycles)

		var head = min(timing.SyncCycles+timing.WaitCycles, len(trace))
		fmt.Fprintf(w, "sync+wait  %s\n", trace[:head])

		var stride = len(p.Bits) + max(timing.GapCycles, 1)
		for rep, at := 0, head; at < len(trace); rep, at = rep+1, at+stride {
			fmt.Fprintf(w, "rep %-6d %s\n", rep, trace[at:min(at+stride, len(trace))])
		}

	case FixedCode:
		fmt.Fprintf(w, "Signal %s: %d bytes at %d bit/s, %d repetitions\n", r.Tx.Name, len(p.Data), p.BitRate, p.Repetitions)

		var period = time.Second / time.Duration(p.BitRate)
		var slots = int(r.AirTime / period)
		var trace = ReadBitSlots(r.Sim, period, slots)

		var stride = p.Bits() + max(p.TicksBetweenRepetitions, 1)
		for rep, at := 0, 0; at < len(trace); rep, at = rep+1, at+stride {
			fmt.Fprintf(w, "rep %-6d %s\n", rep, trace[at:min(at+p.Bits(), len(trace))])
		}
	}

	fmt.Fprintf(w, "Air time %s\n", r.AirTime)

	if transitions {
		for _, s := range r.Sim.Transitions() {
			fmt.Fprintf(w, "%12d us  %d\n", s.At.Microseconds(), s.Level)
		}
	}
}

func RftraceMain() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.  Default: search the usual locations.")
	var transitions = pflag.BoolP("transitions", "t", false, "Also print every level change with its time.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Show what a stored signal looks like on the air.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] signal-name-or-id\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help || pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	var cfg, _, err = LoadConfig(*configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var signals, sigErr = NewSignalTable(cfg.Signals, NewClemsaGenerator(cfg.Timing))
	if sigErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", sigErr)
		os.Exit(1)
	}

	var tx, lookupErr = signals.Lookup(pflag.Arg(0))
	if lookupErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", lookupErr)

		if errors.Is(lookupErr, ErrUnknownSignal) {
			fmt.Fprintf(os.Stderr, "Known signals:\n")
			listSignals(signals)
		}

		os.Exit(1)
	}

	var result, traceErr = TraceSignal(tx, cfg, os.Stderr)
	if traceErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", traceErr)
		os.Exit(1)
	}

	printTrace(os.Stdout, result, cfg.Timing, *transitions)
}
