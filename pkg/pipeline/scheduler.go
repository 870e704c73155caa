package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// scheduler bounds concurrent children with a weighted semaphore of J
// permits. The permit is acquired before the next request is pulled,
// so a saturated semaphore backpressures through the bounded channels
// all the way to the source.
type scheduler struct {
	jobs   int64
	runner *runner

	in      <-chan SpawnRequest
	results chan<- OutputRecord
}

// run dispatches one runner goroutine per request and returns once
// every in-flight runner has delivered its result; Run closes the
// result channel after the builder and the scheduler return. On
// cancellation it stops pulling requests; runners already dispatched
// run to completion under the runner's own teardown rules.
func (s *scheduler) run(ctx context.Context) {
	sem := semaphore.NewWeighted(s.jobs)
	var wg sync.WaitGroup

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // canceled; drain nothing further
		}
		req, ok := <-s.in
		if !ok {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(req SpawnRequest) {
			defer wg.Done()
			defer sem.Release(1)
			rec := s.runner.run(ctx, req)
			// The result must land even under cancellation: the sink
			// drains until all senders are done.
			s.results <- rec
		}(req)
	}

	wg.Wait()
}
