package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// argSourceName labels records produced from ::: argument groups.
const argSourceName = "command_line_args"

// maxRecordSize bounds a single input record. Records, not the whole
// input set, are what may be held in memory.
const maxRecordSize = 16 * 1024 * 1024

// source produces the stream of invocation records. Exactly one of
// groups (argument mode) or inputs (stream mode) is active.
type source struct {
	groups  [][]string
	inputs  []string // "-" means stdin
	nullSep bool
	stdin   io.Reader
	out     chan<- Record
	log     *zap.Logger
}

// run emits records until the inputs are exhausted or ctx is
// canceled, then closes the output channel.
func (s *source) run(ctx context.Context) {
	defer close(s.out)

	next := ID(1)
	emit := func(fields []string, origin Origin) bool {
		rec := Record{ID: next, Fields: fields, Origin: origin}
		select {
		case s.out <- rec:
			next++
			return true
		case <-ctx.Done():
			return false
		}
	}

	if len(s.groups) > 0 {
		s.runGroups(ctx, emit)
		return
	}
	s.runStreams(ctx, emit)
}

// runGroups walks the Cartesian product of the argument groups. The
// rightmost group varies fastest, so `::: A B ::: 1 2` yields
// (A,1) (A,2) (B,1) (B,2).
func (s *source) runGroups(ctx context.Context, emit func([]string, Origin) bool) {
	idx := make([]int, len(s.groups))
	line := 0
	for {
		tuple := make([]string, len(s.groups))
		for i, g := range s.groups {
			tuple[i] = g[idx[i]]
		}
		line++
		if !emit(tuple, Origin{Source: argSourceName, Line: line}) {
			return
		}

		// Odometer increment from the right.
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.groups[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// runStreams reads each input in order. A read failure aborts that
// input only; later inputs are still consumed.
func (s *source) runStreams(ctx context.Context, emit func([]string, Origin) bool) {
	for _, input := range s.inputs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !s.readStream(ctx, input, emit) {
			return
		}
	}
}

// readStream scans one input. Returns false only when emission was
// cut short by cancellation.
func (s *source) readStream(ctx context.Context, input string, emit func([]string, Origin) bool) bool {
	var (
		r    io.Reader
		name string
	)
	if input == "-" {
		r, name = s.stdin, "stdin"
	} else {
		f, err := os.Open(input)
		if err != nil {
			s.log.Error("cannot open input", zap.String("path", input), zap.Error(err))
			return true
		}
		defer f.Close()
		r, name = f, input
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecordSize)
	if s.nullSep {
		sc.Split(scanNullTerminated)
	}

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if !s.nullSep {
			text = strings.TrimRight(text, "\r")
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if !emit([]string{text}, Origin{Source: name, Line: line}) {
			return false
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Error("read failure on input", zap.String("path", name), zap.Error(err))
	}
	return true
}

// scanNullTerminated is the bufio.SplitFunc for -0 mode. Records are
// NUL-terminated; a trailing unterminated segment still counts.
func scanNullTerminated(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ProductSize returns the number of tuples the argument groups will
// produce, for progress-bar totals.
func ProductSize(groups [][]string) int64 {
	if len(groups) == 0 {
		return 0
	}
	n := int64(1)
	for _, g := range groups {
		n *= int64(len(g))
	}
	return n
}
