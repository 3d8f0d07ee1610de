package sync

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// maxWorkers bounds concurrent uploads within one phase to limit open
// file handles and network sockets: min(4, NumCPU).
const maxWorkers = 4

// job is one unit of work dispatched to the pool: upload one photo,
// video or voice note. The pool does not
// know what a job does, only how to run it and recover from its panics.
type job func(ctx context.Context) jobResult

// jobResult reports a single job's outcome back to the phase driver.
type jobResult struct {
	Label   string
	Success bool
	Err     error
}

// workerPoolSize returns the configured concurrency for a phase's
// fan-out, capped at runtime.NumCPU() and never below 1.
func workerPoolSize() int {
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}

	if n < 1 {
		n = 1
	}

	return n
}

// runJobs executes jobs through a bounded pool of goroutines (capped via
// errgroup.SetLimit) and returns results indexed by submission order. A
// panicking job is recovered and reported as a failed jobResult rather
// than crashing the pool. Individual job failures never abort the group,
// only a cancelled ctx does, so every job always gets to run.
func runJobs(ctx context.Context, logger *slog.Logger, jobs []job, labels []string) []jobResult {
	if len(jobs) == 0 {
		return nil
	}

	workers := workerPoolSize()
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]jobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, j := range jobs {
		i, j := i, j

		g.Go(func() error {
			results[i] = safeRun(gctx, logger, labels[i], j)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// safeRun wraps a job with panic recovery so one bad upload doesn't take
// down the entire sync phase.
func safeRun(ctx context.Context, logger *slog.Logger, label string, j job) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync: panic in job execution",
				slog.String("label", label),
				slog.Any("panic", r),
			)

			result = jobResult{Label: label, Success: false, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return j(ctx)
}
