// Package series runs one generation cycle of a series: load state, decide,
// generate, publish, and commit the new state.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/logging"
)

// Kind selects the runner of a series.
type Kind string

const (
	KindHistory Kind = "history"
	KindStory   Kind = "story"
)

// Result is the outcome of one cycle.
type Result struct {
	Series string
	Halted bool
	Reason journey.Reason
	Day    int
	Path   string
	Final  bool
}

// Status is the stored progress of a series and what the next run would do.
type Status struct {
	Series      string
	Day         int
	LastRunDate string
	State       any
	Decision    journey.Decision
}

// Runner runs cycles of one series.
type Runner interface {
	Name() string
	RunOnce(ctx context.Context, now time.Time) (*Result, error)
	Status(now time.Time) (*Status, error)
}

// RunAll runs every runner once. A failing series does not stop the others;
// the returned error joins every failure.
func RunAll(ctx context.Context, runners []Runner, now time.Time) ([]*Result, error) {
	logger := logging.FromContext(ctx)

	var (
		results []*Result
		errs    []error
	)
	for _, r := range runners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := r.RunOnce(logging.With(ctx, "series", r.Name()), now)
		if err != nil {
			logger.Error("Series failed", "series", r.Name(), logging.Err(err))
			errs = append(errs, fmt.Errorf("series %s: %w", r.Name(), err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
