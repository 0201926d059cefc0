// Package backfill scores persisted workouts that have no points yet.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/training/internal/scoring"
)

// ErrAlreadyScored is returned by Store.SaveScore when another writer scored the workout
// after it was listed.
var ErrAlreadyScored = errors.New("workout already scored")

// Candidate is a workout selected for scoring.
type Candidate struct {
	ID       string
	TenantID string
	Workout  scoring.Workout
}

// Store is the persistence used by the runner.
type Store interface {
	// ListUnscored returns workouts whose points or category is missing. limit <= 0 returns all.
	ListUnscored(ctx context.Context, limit int) ([]Candidate, error)
	// SaveScore persists both score fields, only while the workout is still unscored.
	SaveScore(ctx context.Context, c Candidate, r scoring.Result) error
	// SummarizeByCategory totals every scored workout per category.
	SummarizeByCategory(ctx context.Context) ([]scoring.CategoryTotal, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of records saved concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger overrides the logger used for progress and per-record failures.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDryRun computes scores without saving them.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithLimit caps the number of candidates processed per run.
func WithLimit(n int) Option {
	return func(r *Runner) {
		r.limit = n
	}
}

// Runner drives one recomputation pass over unscored workouts.
type Runner struct {
	store   Store
	workers int
	limit   int
	dryRun  bool
	logger  *log.Logger
}

// NewRunner constructs a Runner. It is sequential unless WithWorkers is given.
func NewRunner(store Store, opts ...Option) *Runner {
	r := &Runner{
		store:   store,
		workers: 1,
		logger:  log.New(log.Writer(), "[backfill] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run lists unscored workouts, scores each one and saves the result. A failed save is
// logged and counted without stopping the batch. Run returns an error only when listing
// fails or ctx is cancelled; in the latter case the partial report is returned too, and
// workouts whose save was cut short by the cancellation are left unscored, not counted.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	candidates, err := r.store.ListUnscored(ctx, r.limit)
	if err != nil {
		runsTotal.WithLabelValues(outcomeFailed).Inc()
		return Report{}, fmt.Errorf("list unscored workouts: %w", err)
	}

	report := Report{Found: len(candidates), DryRun: r.dryRun}
	r.logger.Printf("found %d workouts without points (workers=%d dry_run=%t)", len(candidates), r.workers, r.dryRun)

	var (
		mu       sync.Mutex
		computed = make(map[scoring.Category]*scoring.CategoryTotal)
	)

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := scoring.Calculate(c.Workout)
			saveErr := r.save(ctx, c, result)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case r.dryRun:
				report.Skipped++
				total, ok := computed[result.Category]
				if !ok {
					total = &scoring.CategoryTotal{Category: result.Category}
					computed[result.Category] = total
				}
				total.Count++
				total.Points += result.Points
			case errors.Is(saveErr, ErrAlreadyScored):
				report.Skipped++
			case ctx.Err() != nil && errors.Is(saveErr, ctx.Err()):
				// interrupted before the store saw it; the next run picks it up
			case saveErr != nil:
				report.Errors++
				report.FailedIDs = append(report.FailedIDs, c.ID)
				recordsFailed.Inc()
				r.logger.Printf("workout %s (tenant=%s): %v", c.ID, c.TenantID, saveErr)
			default:
				report.Updated++
				recordUpdated(result)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(started)
	runDuration.Observe(report.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		runsTotal.WithLabelValues(outcomeCancelled).Inc()
		r.logger.Printf("cancelled after %d of %d workouts", report.Updated+report.Errors+report.Skipped, report.Found)
		return report, err
	}

	if r.dryRun {
		report.Summary = orderedTotals(computed)
	} else {
		summary, err := r.store.SummarizeByCategory(ctx)
		if err != nil {
			r.logger.Printf("category summary unavailable: %v", err)
		} else {
			report.Summary = summary
		}
	}

	if report.Errors > 0 {
		runsTotal.WithLabelValues(outcomePartial).Inc()
	} else {
		runsTotal.WithLabelValues(outcomeSucceeded).Inc()
	}
	r.logger.Printf("updated=%d errors=%d skipped=%d in %s", report.Updated, report.Errors, report.Skipped, report.Duration.Round(time.Millisecond))
	return report, nil
}

func (r *Runner) save(ctx context.Context, c Candidate, result scoring.Result) error {
	if r.dryRun {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.SaveScore(ctx, c, result)
}

func orderedTotals(byCategory map[scoring.Category]*scoring.CategoryTotal) []scoring.CategoryTotal {
	out := make([]scoring.CategoryTotal, 0, len(byCategory))
	for _, c := range scoring.Categories() {
		if total, ok := byCategory[c]; ok {
			out = append(out, *total)
		}
	}
	return out
}
