// Package runner drives several independent streams concurrently, one chain
// per stream.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"chanlun/internal/engine"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/models"
	"chanlun/internal/stream"
)

// Job is one stream to process.
type Job struct {
	Identity stream.Identity
	Bars     []models.Bar
}

// Result summarises one finished stream.
type Result struct {
	Index       int
	Identity    stream.Identity
	StreamID    uuid.UUID
	Bars        int
	Events      int
	Violations  int
	Fingerprint string
	Last        *engine.Snapshot
	Elapsed     time.Duration
	Err         error
}

// ObserverFunc builds the per-stream observer installed on each chain.
type ObserverFunc func(id stream.Identity, index int) engine.Observer

// Runner runs jobs on a bounded goroutine pool.
type Runner struct {
	opts     engine.Options
	workers  int
	logger   zerolog.Logger
	observer ObserverFunc
}

// New returns a runner that uses at most workers goroutines. workers <= 0
// means one goroutine per job.
func New(opts engine.Options, workers int, logger zerolog.Logger) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Runner{opts: opts, workers: workers, logger: logger}, nil
}

// SetObserver installs fn; nil removes it.
func (r *Runner) SetObserver(fn ObserverFunc) {
	r.observer = fn
}

// Run processes every job and returns results in job order. A failing stream
// records its error in its Result and does not stop the others.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	p := pool.NewWithResults[Result]()
	if r.workers > 0 {
		p = p.WithMaxGoroutines(r.workers)
	}

	for i, job := range jobs {
		p.Go(func() Result {
			return r.runOne(ctx, i, job)
		})
	}

	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}

func (r *Runner) runOne(ctx context.Context, index int, job Job) Result {
	res := Result{Index: index, Identity: job.Identity, StreamID: job.Identity.ID()}
	logger := logging.WithStream(r.logger, res.StreamID.String(), job.Identity.Symbol, job.Identity.Interval)
	start := time.Now()

	chain, err := engine.NewChain(r.opts, logger)
	if err != nil {
		res.Err = err
		return res
	}
	if r.observer != nil {
		chain.SetObserver(r.observer(job.Identity, index))
	}

	for _, bar := range job.Bars {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		snap, err := chain.Step(bar)
		if err != nil {
			res.Err = apperrors.NewDataError("bars", job.Identity.String(), fmt.Sprintf("stopped after %d bars", chain.Len()), err)
			break
		}
		res.Violations += len(snap.Violations)
	}

	res.Bars = chain.Len()
	res.Events = len(chain.Events())
	res.Fingerprint = chain.Fingerprint()
	res.Last = chain.Last()
	res.Elapsed = time.Since(start)

	ev := logger.Info()
	if res.Err != nil {
		ev = logger.Error().Err(res.Err)
	}
	ev.Int("bars", res.Bars).
		Int("events", res.Events).
		Int("violations", res.Violations).
		Dur("elapsed", res.Elapsed).
		Msg("Stream finished")
	return res
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
