package pipeline

import (
	"container/heap"
	"io"

	"go.uber.org/zap"
)

// Progress is the sink's view of the progress bar.
type Progress interface {
	// Increment records one finished invocation.
	Increment()
	// Finish clears or finalizes the bar.
	Finish()
}

// sink is the single consumer of output records and the sole writer
// of the utility's stdout and stderr. Being one goroutine is what
// serializes the two streams: no other child's bytes can land between
// one record's stdout and stderr blocks.
type sink struct {
	keepOrder bool
	stdout    io.Writer
	stderr    io.Writer
	progress  Progress // nil when the bar is off
	onFailure func()   // trips --exit-on-error cancellation; nil otherwise
	stats     *Stats
	in        <-chan OutputRecord
	log       *zap.Logger
}

// run consumes records until the channel closes. In keep-order mode
// records are held in a min-heap until their ID is next; skip markers
// advance the counter like any other record.
func (s *sink) run() {
	if s.keepOrder {
		s.runOrdered()
	} else {
		for rec := range s.in {
			s.emit(rec)
		}
	}
	if s.progress != nil {
		s.progress.Finish()
	}
}

func (s *sink) runOrdered() {
	var h recordHeap
	heap.Init(&h)
	next := ID(1)

	for rec := range s.in {
		heap.Push(&h, rec)
		for h.Len() > 0 && h[0].ID == next {
			s.emit(heap.Pop(&h).(OutputRecord))
			next++
		}
	}

	// Cancellation can leave gaps in the sequence; whatever remains
	// is still emitted in ascending ID order.
	for h.Len() > 0 {
		s.emit(heap.Pop(&h).(OutputRecord))
	}
}

// emit writes one record's output as two contiguous blocks, stdout
// first, and updates statistics and progress.
func (s *sink) emit(rec OutputRecord) {
	if rec.Skip {
		if s.progress != nil {
			s.progress.Increment()
		}
		return
	}

	if len(rec.Stdout) > 0 {
		if _, err := s.stdout.Write(rec.Stdout); err != nil {
			s.log.Error("stdout write failed", zap.Error(err))
		}
	}
	if len(rec.Stderr) > 0 {
		if _, err := s.stderr.Write(rec.Stderr); err != nil {
			s.log.Error("stderr write failed", zap.Error(err))
		}
	}

	s.stats.record(rec.Outcome)
	if s.progress != nil {
		s.progress.Increment()
	}

	if !rec.Outcome.ok() {
		s.log.Warn("command failed",
			zap.String("command", rec.Command),
			zap.String("origin", rec.Origin.String()),
			zap.String("outcome", rec.Outcome.String()))
		if s.onFailure != nil {
			s.onFailure()
		}
	}
}

// recordHeap is a min-heap of output records keyed by ID, after the
// container/heap pattern.
type recordHeap []OutputRecord

func (h recordHeap) Len() int           { return len(h) }
func (h recordHeap) Less(i, j int) bool { return h[i].ID < h[j].ID }
func (h recordHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x any)        { *h = append(*h, x.(OutputRecord)) }
func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	*h = old[:n-1]
	return rec
}
