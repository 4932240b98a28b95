package rfcompanion

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one Write seen by the simulator.
type Sample struct {
	At    time.Duration
	Level int
}

// SimFrontend runs clocks on virtual time and records every write.
// Nothing happens until the owner calls Step.
type SimFrontend struct {
	clockSet

	vnow atomic.Int64

	traceMu sync.Mutex
	level   int
	samples []Sample
	idles   int
}

func NewSimFrontend() *SimFrontend {
	var s = new(SimFrontend)

	s.now = s.vnow.Load
	s.units = func(d time.Duration) int64 { return int64(d) }
	s.wake = func() {}

	return s
}

// Step advances virtual time to the earliest deadline and fires everything due.
// It returns false when no clock is running.
func (s *SimFrontend) Step() bool {
	var next, ok = s.nextDeadline()
	if !ok {
		return false
	}

	var at = max(next, s.vnow.Load())
	s.vnow.Store(at)
	s.fire(at)

	return true
}

// Run steps until no clock is running or virtual time passes limit.
func (s *SimFrontend) Run(limit time.Duration) {
	for s.Now() <= limit && s.Step() {
	}
}

func (s *SimFrontend) Now() time.Duration {
	return time.Duration(s.vnow.Load())
}

func (s *SimFrontend) Running() bool {
	return s.running()
}

func (s *SimFrontend) Write(level int) {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	s.level = level
	s.samples = append(s.samples, Sample{At: s.Now(), Level: level})
}

func (s *SimFrontend) Level() int {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	return s.level
}

// Samples returns a copy of every write so far.
func (s *SimFrontend) Samples() []Sample {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	return append([]Sample(nil), s.samples...)
}

// Transitions reduces the samples to level changes, starting from low.
func (s *SimFrontend) Transitions() []Sample {
	var out []Sample
	var level = 0

	for _, sample := range s.Samples() {
		if sample.Level != level {
			out = append(out, sample)
			level = sample.Level
		}
	}

	return out
}

func (s *SimFrontend) Reset() {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	s.samples = nil
}

func (s *SimFrontend) Idles() int {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	return s.idles
}

func (s *SimFrontend) NewClock(name string, period time.Duration, tick func()) (Clock, error) {
	return s.add(name, period, tick)
}

func (s *SimFrontend) Idle() error {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()

	s.idles++

	return nil
}

func (s *SimFrontend) Close() error { return nil }
