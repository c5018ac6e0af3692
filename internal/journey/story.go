package journey

import (
	"encoding/json"
	"strings"
	"time"
)

// StoryState is the persisted progress of an episodic story.
type StoryState struct {
	DayCount    int             `json:"day_count"`
	LastRunDate string          `json:"last_run_date"`
	Synopsis    string          `json:"synopsis"`
	StoryBible  json.RawMessage `json:"story_bible"`
	PlotLog     []string        `json:"plot_log"`
	LastPassage string          `json:"last_passage"`
}

// StoryPolicy ends a story once a passage closes with Sentinel.
type StoryPolicy struct {
	Sentinel string
}

// Finished reports whether passage is the closing passage of the story.
func (p StoryPolicy) Finished(passage string) bool {
	if p.Sentinel == "" {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(passage), p.Sentinel)
}

// Decide halts once the last stored passage carries the sentinel.
func (p StoryPolicy) Decide(s StoryState) Decision {
	if p.Finished(s.LastPassage) {
		return Decision{Verdict: Halt, Reason: ReasonStoryComplete}
	}
	return Decision{Verdict: Continue}
}

// AdvanceStory returns the story state after a published passage.
func AdvanceStory(old StoryState, passage, summary string, bible json.RawMessage, today time.Time) StoryState {
	log := make([]string, 0, len(old.PlotLog)+1)
	log = append(log, old.PlotLog...)
	if summary != "" {
		log = append(log, summary)
	}

	if len(bible) == 0 {
		bible = old.StoryBible
	}

	return StoryState{
		DayCount:    old.DayCount + 1,
		LastRunDate: today.Format(DateLayout),
		Synopsis:    old.Synopsis,
		StoryBible:  append(json.RawMessage(nil), bible...),
		PlotLog:     log,
		LastPassage: passage,
	}
}
