package pipeline

import (
	"context"
	"path/filepath"
	"sync"
)

// DefaultWorkers bounds batch concurrency when the caller does not.
const DefaultWorkers = 4

// BatchResult pairs one input recording with its outcome. Err is
// per-recording; one bad file never aborts the rest of the batch.
type BatchResult struct {
	FitPath string
	Result  *Result
	Err     error
}

// RunAll ingests every recording in paths, writing each one's
// artifacts to a subdirectory of opts.OutDir named after the file
// stem. Results are returned in input order. Cancelling ctx stops
// feeding new work; recordings not yet started report ctx.Err().
func RunAll(ctx context.Context, paths []string, opts Options, workers int) []BatchResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	opts.Log.Info().
		Int("recordings", len(paths)).
		Int("workers", workers).
		Msg("starting batch ingest")

	results := make([]BatchResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = runJob(ctx, paths[idx], opts)
			}
		}()
	}

	next := 0
feed:
	for ; next < len(paths); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Everything past next was never handed to a worker.
	for i := next; i < len(paths); i++ {
		results[i] = BatchResult{FitPath: paths[i], Err: ctx.Err()}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	opts.Log.Info().
		Int("recordings", len(paths)).
		Int("failed", failed).
		Msg("batch ingest finished")

	return results
}

func runJob(ctx context.Context, fitPath string, opts Options) BatchResult {
	if err := ctx.Err(); err != nil {
		return BatchResult{FitPath: fitPath, Err: err}
	}

	jobOpts := opts
	jobOpts.FitPath = fitPath
	jobOpts.OutDir = filepath.Join(opts.OutDir, activityName(fitPath))

	res, err := Run(jobOpts)
	if err != nil {
		opts.Log.Error().Err(err).Str("file", filepath.Base(fitPath)).Msg("ingest failed")
	}
	return BatchResult{FitPath: fitPath, Result: res, Err: err}
}
