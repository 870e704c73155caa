// Package pipeline implements the concurrent execution pipeline:
// source → builder → scheduler/runners → sink, connected by bounded
// channels and capped by a single semaphore of J permits.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// ID identifies one invocation within a run. IDs are assigned by the
// source in input order and form a contiguous sequence starting at 1.
type ID uint64

// Origin records where a record came from, for diagnostics.
type Origin struct {
	Source string // "command_line_args", "stdin", or a file path
	Line   int    // 1-based record number within the source
}

func (o Origin) String() string {
	return fmt.Sprintf("%s:%d", o.Source, o.Line)
}

// Record is one unit of input: either the fields of one input line or
// one tuple of the Cartesian product of ::: groups.
type Record struct {
	ID     ID
	Fields []string
	Origin Origin
}

// Line returns the record's joined form, which substitution regexes
// match against: the raw line for stream input, the space-joined
// tuple for argument input.
func (r Record) Line() string {
	if len(r.Fields) == 1 {
		return r.Fields[0]
	}
	return strings.Join(r.Fields, " ")
}

// DiscardMode selects which child streams are routed to the null
// device instead of being captured.
type DiscardMode int

const (
	DiscardNone DiscardMode = iota
	DiscardStdout
	DiscardStderr
	DiscardAll
)

// ParseDiscard maps the --discard-output flag value.
func ParseDiscard(s string) (DiscardMode, error) {
	switch s {
	case "":
		return DiscardNone, nil
	case "stdout":
		return DiscardStdout, nil
	case "stderr":
		return DiscardStderr, nil
	case "all":
		return DiscardAll, nil
	}
	return DiscardNone, fmt.Errorf("invalid discard mode %q (want stdout, stderr, or all)", s)
}

func (d DiscardMode) stdout() bool { return d == DiscardStdout || d == DiscardAll }
func (d DiscardMode) stderr() bool { return d == DiscardStderr || d == DiscardAll }

// SpawnRequest is a fully-formed command ready to run. Argv[0] is the
// name as typed; Path is its resolved executable.
type SpawnRequest struct {
	ID      ID
	Origin  Origin
	Argv    []string
	Path    string
	Timeout time.Duration // 0 = no timeout
	Discard DiscardMode
}

// Display renders the request's command line for log output, elided
// past a fixed width. Never used for execution.
func (s *SpawnRequest) Display() string {
	return displayCommand(s.Argv)
}

const displayWidth = 120

func displayCommand(argv []string) string {
	joined := strings.Join(argv, " ")
	if len(joined) > displayWidth {
		return joined[:displayWidth-3] + "..."
	}
	return joined
}

// OutcomeKind classifies how an invocation ended.
type OutcomeKind int

const (
	// OutcomeSuccess: the child exited with status zero.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailedStatus: nonzero exit, or death by signal
	// (encoded as 128+signal, the shell convention).
	OutcomeFailedStatus
	// OutcomeTimeout: the per-command timeout fired.
	OutcomeTimeout
	// OutcomeSpawnError: the child could not be launched.
	OutcomeSpawnError
	// OutcomeIoError: pipe read or wait surfaced an OS error.
	OutcomeIoError
)

// Outcome is the terminal state of one invocation.
type Outcome struct {
	Kind OutcomeKind
	Code int   // exit status, for OutcomeFailedStatus
	Err  error // underlying error, for spawn and IO failures
}

func (o Outcome) ok() bool { return o.Kind == OutcomeSuccess }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailedStatus:
		return fmt.Sprintf("exited with status %d", o.Code)
	case OutcomeTimeout:
		return "timed out"
	case OutcomeSpawnError:
		return fmt.Sprintf("spawn failed: %v", o.Err)
	case OutcomeIoError:
		return fmt.Sprintf("io error: %v", o.Err)
	}
	return "unknown"
}

// OutputRecord carries one invocation's buffered output to the sink.
//
// A record with Skip set is a skip marker: it exists only to advance
// the keep-order counter past an invocation that produced no output
// (dry-run, regex miss) and carries no bytes or outcome.
type OutputRecord struct {
	ID      ID
	Origin  Origin
	Command string // display form, for diagnostics
	Stdout  []byte
	Stderr  []byte
	Outcome Outcome
	Skip    bool
}

// skipMarker builds the placeholder for a dropped invocation.
func skipMarker(id ID, origin Origin) OutputRecord {
	return OutputRecord{ID: id, Origin: origin, Skip: true}
}
