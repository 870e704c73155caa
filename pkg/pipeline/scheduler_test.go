package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// runScheduler feeds requests through a scheduler and collects every
// produced record.
func runScheduler(ctx context.Context, t *testing.T, jobs int64, reqs []SpawnRequest) []OutputRecord {
	t.Helper()
	in := make(chan SpawnRequest, len(reqs))
	results := make(chan OutputRecord, len(reqs))
	for _, req := range reqs {
		in <- req
	}
	close(in)

	s := &scheduler{
		jobs:    jobs,
		runner:  &runner{log: zap.NewNop()},
		in:      in,
		results: results,
	}
	s.run(ctx)
	close(results)

	var recs []OutputRecord
	for rec := range results {
		recs = append(recs, rec)
	}
	return recs
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	// Six 200ms sleeps with two permits need at least three waves.
	reqs := make([]SpawnRequest, 6)
	for i := range reqs {
		reqs[i] = shellReq(ID(i+1), "sleep 0.2")
	}

	start := time.Now()
	recs := runScheduler(context.Background(), t, 2, reqs)
	elapsed := time.Since(start)

	if len(recs) != 6 {
		t.Fatalf("expected 6 records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Outcome.Kind != OutcomeSuccess {
			t.Fatalf("record %d: %v", rec.ID, rec.Outcome)
		}
	}
	if elapsed < 550*time.Millisecond {
		t.Fatalf("semaphore did not bound concurrency: %v", elapsed)
	}
}

func TestScheduler_OneRecordPerRequest(t *testing.T) {
	reqs := []SpawnRequest{
		shellReq(1, "true"),
		shellReq(2, "false"),
		shellReq(3, "true"),
	}
	recs := runScheduler(context.Background(), t, 3, reqs)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	seen := map[ID]bool{}
	for _, rec := range recs {
		if seen[rec.ID] {
			t.Fatalf("duplicate record for ID %d", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs := runScheduler(ctx, t, 1, []SpawnRequest{shellReq(1, "sleep 5")})
	// The pre-canceled scheduler must not dispatch anything.
	if len(recs) != 0 {
		t.Fatalf("dispatched %d requests after cancellation", len(recs))
	}
}
