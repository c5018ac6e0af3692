package journey

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sentinel = "Thank you for reading this story."

func TestStoryDecide(t *testing.T) {
	p := StoryPolicy{Sentinel: sentinel}

	tests := []struct {
		name    string
		passage string
		want    Verdict
	}{
		{"fresh story", "", Continue},
		{"mid story", "The rain kept falling on the library roof.", Continue},
		{"sentinel mid text", sentinel + " And then it went on.", Continue},
		{"closing passage", "He left the building.\n\n" + sentinel, Halt},
		{"closing passage trailing space", "He left.\n" + sentinel + "  \n", Halt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(StoryState{LastPassage: tt.passage})
			assert.Equal(t, tt.want, d.Verdict)
			if tt.want == Halt {
				assert.Equal(t, ReasonStoryComplete, d.Reason)
			}
		})
	}
}

func TestStoryPolicyWithoutSentinelNeverFinishes(t *testing.T) {
	assert.False(t, StoryPolicy{}.Finished("anything"))
}

func TestAdvanceStory(t *testing.T) {
	old := StoryState{
		DayCount:    2,
		Synopsis:    "synopsis",
		StoryBible:  json.RawMessage(`{"characters":{}}`),
		PlotLog:     []string{"one", "two"},
		LastPassage: "old",
	}
	today := time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)

	got := AdvanceStory(old, "new passage", "three", json.RawMessage(`{"characters":{"Suhyun":"engineer"}}`), today)

	assert.Equal(t, 3, got.DayCount)
	assert.Equal(t, "2025-11-17", got.LastRunDate)
	assert.Equal(t, "synopsis", got.Synopsis)
	assert.Equal(t, []string{"one", "two", "three"}, got.PlotLog)
	assert.Equal(t, "new passage", got.LastPassage)
	assert.JSONEq(t, `{"characters":{"Suhyun":"engineer"}}`, string(got.StoryBible))

	assert.Equal(t, []string{"one", "two"}, old.PlotLog, "old plot log untouched")
}

func TestAdvanceStoryKeepsBibleWhenEmpty(t *testing.T) {
	old := StoryState{StoryBible: json.RawMessage(`{"a":1}`)}
	got := AdvanceStory(old, "p", "", nil, time.Now())

	assert.JSONEq(t, `{"a":1}`, string(got.StoryBible))
	assert.Empty(t, got.PlotLog)
}
