package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/logging"
	"github.com/aktagon/history-writer/internal/pipeline"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/state"
)

// Story runs an episodic story series.
type Story struct {
	Series    string
	Title     string
	Store     *state.Store[journey.StoryState]
	Policy    journey.StoryPolicy
	Pipeline  *pipeline.Story
	Publisher *publish.Publisher
}

func (s *Story) Name() string {
	return s.Series
}

// RunOnce publishes the next passage. An empty passage ends the story
// without touching the state.
func (s *Story) RunOnce(ctx context.Context, now time.Time) (*Result, error) {
	logger := logging.FromContext(ctx)

	st, err := s.Store.Load()
	if err != nil {
		return nil, err
	}

	decision := s.Policy.Decide(st)
	if decision.Verdict == journey.Halt {
		logger.Info("✓ Nothing to do", "reason", decision.Reason)
		return &Result{Series: s.Series, Halted: true, Reason: decision.Reason}, nil
	}

	day := st.DayCount + 1
	logger.Info("→ Starting cycle", "day", day, "plot_log", len(st.PlotLog))

	passage, err := s.Pipeline.Generate(ctx, st)
	if errors.Is(err, pipeline.ErrNoPassage) {
		logger.Info("✓ Story complete, writer returned no passage")
		return &Result{Series: s.Series, Halted: true, Reason: journey.ReasonStoryComplete}, nil
	}
	if err != nil {
		return nil, err
	}

	post := publish.Post{
		Day:   day,
		Date:  now,
		Title: fmt.Sprintf("%s - Day %d", s.Title, day),
		Body:  s.Pipeline.Body(passage),
	}
	path, err := s.Publisher.Publish(post)
	if err != nil {
		return nil, fmt.Errorf("publishing day %d: %w", day, err)
	}
	logger.Info("✓ Saved", "path", path)

	next := journey.AdvanceStory(st, passage.Text, passage.Summary, passage.StoryBible, now)
	if err := s.Store.Save(next); err != nil {
		return nil, err
	}

	final := s.Policy.Finished(passage.Text)
	if final {
		logger.Info("✓ Story finished", "day", day)
	}
	logger.Info("✓ State saved", "day_count", next.DayCount)

	return &Result{Series: s.Series, Day: day, Path: path, Final: final}, nil
}

func (s *Story) Status(time.Time) (*Status, error) {
	st, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	return &Status{
		Series:      s.Series,
		Day:         st.DayCount,
		LastRunDate: st.LastRunDate,
		State:       st,
		Decision:    s.Policy.Decide(st),
	}, nil
}
