package pipeline

import (
	"fmt"
	"sync/atomic"
)

// Stats accumulates per-outcome counters. The sink is the only
// writer; the driver reads the totals after the sink returns, so the
// atomics exist for the benefit of progress reporting and tests that
// observe a run in flight.
type Stats struct {
	Spawned     atomic.Int64
	Succeeded   atomic.Int64
	FailedState atomic.Int64
	TimedOut    atomic.Int64
	SpawnErrors atomic.Int64
	IoErrors    atomic.Int64
}

// record tallies one finished invocation.
func (s *Stats) record(o Outcome) {
	switch o.Kind {
	case OutcomeSuccess:
		s.Spawned.Add(1)
		s.Succeeded.Add(1)
	case OutcomeFailedStatus:
		s.Spawned.Add(1)
		s.FailedState.Add(1)
	case OutcomeTimeout:
		s.Spawned.Add(1)
		s.TimedOut.Add(1)
	case OutcomeSpawnError:
		s.SpawnErrors.Add(1)
	case OutcomeIoError:
		s.Spawned.Add(1)
		s.IoErrors.Add(1)
	}
}

// Failures returns the total count across all failure categories.
func (s *Stats) Failures() int64 {
	return s.FailedState.Load() + s.TimedOut.Load() + s.SpawnErrors.Load() + s.IoErrors.Load()
}

// ExitCode is 0 iff no failures of any category occurred.
func (s *Stats) ExitCode() int {
	if s.Failures() == 0 {
		return 0
	}
	return 1
}

// Summary renders the one-line per-category report emitted when a run
// had failures.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"commands: %d spawned, %d succeeded, %d failed, %d timed out, %d spawn errors, %d io errors",
		s.Spawned.Load(), s.Succeeded.Load(), s.FailedState.Load(),
		s.TimedOut.Load(), s.SpawnErrors.Load(), s.IoErrors.Load())
}
