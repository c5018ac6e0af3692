// Package journey decides whether a series continues and computes the state
// that follows a successful generation cycle. Everything here is pure; loading
// and saving state happens in the caller.
package journey

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the layout of last_run_date.
const DateLayout = "2006-01-02"

// DefaultWindow is how many years before the current calendar year the
// history series stops.
const DefaultWindow = 3

// Verdict is the outcome of a progression check.
type Verdict int

const (
	Continue Verdict = iota
	Halt
)

func (v Verdict) String() string {
	if v == Halt {
		return "halt"
	}
	return "continue"
}

// Reason explains a Halt.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonJourneyComplete     Reason = "journey complete"
	ReasonInvalidInitialState Reason = "initial state invalid"
	ReasonStoryComplete       Reason = "story complete"
)

// Decision is returned by the progression checks.
type Decision struct {
	Verdict   Verdict
	Reason    Reason
	Threshold int

	// Topic and Year are the topic to cover this cycle when Verdict is Continue.
	Topic string
	Year  int
}

// State is the persisted progress of a history series.
type State struct {
	DayCount    int    `json:"day_count"`
	LastRunDate string `json:"last_run_date"`
	CurrentYear Year   `json:"current_year"`
	LastTopic   string `json:"last_topic"`
	NextTopic   string `json:"next_topic"`
	NextYear    Year   `json:"next_year"`
}

// NewState returns the state of a series that has not published anything yet.
func NewState(seedTopic string, seedYear int) State {
	return State{
		DayCount:  0,
		LastTopic: Placeholder,
		NextTopic: seedTopic,
		NextYear:  YearOf(seedYear),
	}
}

// ErrIncompleteMetadata is returned when cycle metadata lacks a required field.
var ErrIncompleteMetadata = errors.New("incomplete cycle metadata")

// Metadata is what the writer reports about the post it produced.
type Metadata struct {
	CurrentYear  int    `json:"current_year"`
	CurrentTopic string `json:"current_topic"`
	NextTopic    string `json:"next_topic"`
	NextYear     int    `json:"next_year"`
}

// UnmarshalJSON requires every field. "last_topic" is read only when
// "current_topic" is missing.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var w struct {
		CurrentYear  *int    `json:"current_year"`
		CurrentTopic *string `json:"current_topic"`
		LastTopic    *string `json:"last_topic"`
		NextTopic    *string `json:"next_topic"`
		NextYear     *int    `json:"next_year"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	topic := w.CurrentTopic
	if topic == nil {
		topic = w.LastTopic
	}

	switch {
	case w.CurrentYear == nil:
		return fmt.Errorf("%w: current_year", ErrIncompleteMetadata)
	case topic == nil:
		return fmt.Errorf("%w: current_topic", ErrIncompleteMetadata)
	case w.NextTopic == nil:
		return fmt.Errorf("%w: next_topic", ErrIncompleteMetadata)
	case w.NextYear == nil:
		return fmt.Errorf("%w: next_year", ErrIncompleteMetadata)
	}

	*m = Metadata{
		CurrentYear:  *w.CurrentYear,
		CurrentTopic: *topic,
		NextTopic:    *w.NextTopic,
		NextYear:     *w.NextYear,
	}
	return nil
}

// Policy holds the termination window of a history series.
type Policy struct {
	Window int
}

func (p Policy) window() int {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}

// Threshold is the first year the series refuses to cover.
func (p Policy) Threshold(calendarYear int) int {
	return calendarYear - p.window()
}

// Decide checks whether another cycle should run.
func (p Policy) Decide(s State, calendarYear int) Decision {
	threshold := p.Threshold(calendarYear)

	next, ok := s.NextYear.Int()
	if !ok || next >= threshold {
		reason := ReasonInvalidInitialState
		if s.DayCount > 0 {
			reason = ReasonJourneyComplete
		}
		return Decision{Verdict: Halt, Reason: reason, Threshold: threshold}
	}

	return Decision{
		Verdict:   Continue,
		Threshold: threshold,
		Topic:     s.NextTopic,
		Year:      next,
	}
}

// IsFinal reports whether the topic planned by this cycle is past the
// threshold, making the cycle the last one.
func (p Policy) IsFinal(m Metadata, calendarYear int) bool {
	return m.NextYear >= p.Threshold(calendarYear)
}

// Threshold uses DefaultWindow.
func Threshold(calendarYear int) int {
	return Policy{}.Threshold(calendarYear)
}

// Decide uses DefaultWindow.
func Decide(s State, calendarYear int) Decision {
	return Policy{}.Decide(s, calendarYear)
}

// IsFinal uses DefaultWindow.
func IsFinal(m Metadata, calendarYear int) bool {
	return Policy{}.IsFinal(m, calendarYear)
}

// Advance returns the state after a successful cycle. It always advances,
// including on the final cycle.
func Advance(old State, m Metadata, today time.Time) State {
	return State{
		DayCount:    old.DayCount + 1,
		LastRunDate: today.Format(DateLayout),
		CurrentYear: YearOf(m.CurrentYear),
		LastTopic:   m.CurrentTopic,
		NextTopic:   m.NextTopic,
		NextYear:    YearOf(m.NextYear),
	}
}
