// Package fanout runs a batch of independent jobs with bounded parallelism,
// per-job timeout and retry, and deterministic result ordering. It is the one
// place retry/backoff/parallelism policy lives; the assembly and publish
// orchestrators both run their provider calls through it.
package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"courseforge/internal/apperr"
)

// Config tunes one fan-out run.
type Config struct {
	// MaxParallelism caps the number of jobs in flight at once.
	MaxParallelism int

	// PerJobTimeout bounds a single attempt. The caller's context deadline,
	// if sooner, wins.
	PerJobTimeout time.Duration

	// MaxRetries is the number of additional attempts after the first,
	// taken only for transient failures.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; it doubles per
	// retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = 4
	}
	if c.PerJobTimeout <= 0 {
		c.PerJobTimeout = 60 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Job is one unit of work. The context it receives carries the per-attempt
// deadline and must be honored by blocking calls inside.
type Job[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one job, pinned to the job's input index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Succeeded reports whether the job produced a value.
func (r Result[T]) Succeeded() bool { return r.Err == nil }

// Run executes jobs with the configured policy and returns one Result per
// job, in input order regardless of completion order. Each worker owns
// exactly its own result slot, so no further synchronization is needed.
//
// A job's failure never cancels or blocks its siblings. If the caller's
// context deadline elapses mid-run, jobs that have not finished are recorded
// as timeout failures and already-completed results are retained.
func Run[T any](ctx context.Context, cfg Config, jobs []Job[T]) []Result[T] {
	cfg = cfg.withDefaults()
	results := make([]Result[T], len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(cfg.MaxParallelism)

	for i, job := range jobs {
		g.Go(func() error {
			results[i] = runOne(ctx, cfg, i, job)
			// Workers always report nil: one job's failure must not
			// cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Single runs one job under the same retry/timeout policy and unwraps its
// result. Used for the prerequisite single-shot steps (model generation,
// course creation) that gate a subsequent fan-out.
func Single[T any](ctx context.Context, cfg Config, job Job[T]) (T, error) {
	res := Run(ctx, cfg, []Job[T]{job})[0]
	return res.Value, res.Err
}

func runOne[T any](ctx context.Context, cfg Config, index int, job Job[T]) Result[T] {
	res := Result[T]{Index: index}

	// Deadline already gone before the job got a worker slot.
	if ctx.Err() != nil {
		res.Err = apperr.Wrap(apperr.KindTimeout, "deadline elapsed before job started", ctx.Err())
		return res
	}

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerJobTimeout)
		value, err := job(attemptCtx)
		cancel()

		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		lastErr = err

		// Overall deadline gone: report a timeout, do not retry.
		if ctx.Err() != nil {
			res.Err = apperr.Wrap(apperr.KindTimeout, "overall deadline elapsed", lastErr)
			return res
		}

		if !apperr.IsTransient(err) {
			break
		}
		if attempt == cfg.MaxRetries {
			break
		}

		log.Warn().
			Int("job", index).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Job attempt failed, retrying")

		select {
		case <-ctx.Done():
			res.Err = apperr.Wrap(apperr.KindTimeout, "overall deadline elapsed during backoff", lastErr)
			return res
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) && apperr.KindOf(lastErr) == "" {
		res.Err = apperr.Wrap(apperr.KindTimeout, "job attempt timed out", lastErr)
	} else {
		res.Err = lastErr
	}
	return res
}

// Succeeded counts the successful results in rs.
func Succeeded[T any](rs []Result[T]) int {
	n := 0
	for _, r := range rs {
		if r.Succeeded() {
			n++
		}
	}
	return n
}
