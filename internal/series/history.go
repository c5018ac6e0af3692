package series

import (
	"context"
	"fmt"
	"time"

	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/logging"
	"github.com/aktagon/history-writer/internal/pipeline"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/state"
)

// History runs a chronological history series.
type History struct {
	Series    string
	Store     *state.Store[journey.State]
	Policy    journey.Policy
	Seed      pipeline.Seed
	Pipeline  *pipeline.History
	Publisher *publish.Publisher
}

func (h *History) Name() string {
	return h.Series
}

// RunOnce generates, publishes and commits one day of the series. State is
// saved only after the post is on disk.
func (h *History) RunOnce(ctx context.Context, now time.Time) (*Result, error) {
	logger := logging.FromContext(ctx)

	st, err := h.Store.Load()
	if err != nil {
		return nil, err
	}

	decision := h.Policy.Decide(st, now.Year())
	if decision.Verdict == journey.Halt {
		logger.Info("✓ Nothing to do", "reason", decision.Reason, "next_year", st.NextYear.String(), "threshold", decision.Threshold)
		return &Result{Series: h.Series, Halted: true, Reason: decision.Reason}, nil
	}

	// history posts are numbered from day 0
	day := st.DayCount
	logger.Info("→ Starting cycle", "day", day, "topic", decision.Topic, "year", decision.Year, "threshold", decision.Threshold)

	article, err := h.Pipeline.Generate(ctx, pipeline.Topic{
		Day:       day,
		Topic:     decision.Topic,
		Year:      journey.YearOf(decision.Year),
		LastTopic: st.LastTopic,
		LastYear:  st.CurrentYear,
	})
	if err != nil {
		return nil, err
	}

	content := article.Content
	final := h.Policy.IsFinal(article.Metadata, now.Year())
	if final {
		logger.Info("→ Final cycle, writing farewell", "next_year", article.Metadata.NextYear)
		var replaced bool
		content, replaced, err = h.Pipeline.Farewell(content, article.Metadata, h.Seed, h.Policy.Window)
		if err != nil {
			return nil, fmt.Errorf("rendering farewell: %w", err)
		}
		if !replaced {
			logger.Warn("Preview section not found, publishing without farewell", "header", h.Pipeline.PreviewHeader)
		}
	}

	path, err := h.Publisher.Publish(publish.FromContent(day, now, content))
	if err != nil {
		return nil, fmt.Errorf("publishing day %d: %w", day, err)
	}
	logger.Info("✓ Saved", "path", path)

	next := journey.Advance(st, article.Metadata, now)
	if err := h.Store.Save(next); err != nil {
		return nil, err
	}
	logger.Info("✓ State saved", "day_count", next.DayCount, "next_topic", next.NextTopic, "next_year", next.NextYear.String())

	return &Result{Series: h.Series, Day: day, Path: path, Final: final}, nil
}

func (h *History) Status(now time.Time) (*Status, error) {
	st, err := h.Store.Load()
	if err != nil {
		return nil, err
	}
	return &Status{
		Series:      h.Series,
		Day:         st.DayCount,
		LastRunDate: st.LastRunDate,
		State:       st,
		Decision:    h.Policy.Decide(st, now.Year()),
	}, nil
}
