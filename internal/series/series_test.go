package series

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/llm"
	"github.com/aktagon/history-writer/internal/llm/llmtest"
	"github.com/aktagon/history-writer/internal/pipeline"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/retry"
	"github.com/aktagon/history-writer/internal/state"
)

var now = time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)

const (
	previewHeader   = "## 📅 내일의 키워드 예고"
	citationsHeader = "## 📚 참고 문헌"
	disclaimer      = "이 콘텐츠는 AI에 의해 생성되었습니다."
	sentinel        = "지금까지 이 소설을 읽어주셔서 감사합니다"
)

func writerJSON(nextTopic string, nextYear int) string {
	out, _ := json.Marshal(map[string]any{
		"content": "# Day 3: 퍼셉트론\n\n안녕하세요!\n\n## 본론\n학습하는 기계.\n\n" + previewHeader + "\n다음은 " + nextTopic + "입니다.",
		"metadata": map[string]any{
			"current_year":  1958,
			"current_topic": "퍼셉트론",
			"next_topic":    nextTopic,
			"next_year":     nextYear,
		},
	})
	return string(out)
}

type scripts struct {
	research, planner, writer *llmtest.Scripted
}

func happyScripts(nextTopic string, nextYear int) scripts {
	return scripts{
		research: llmtest.New(llmtest.Reply("notes", citation.Source{URI: "https://ref.example/1", Title: "Cornell", Kind: citation.Web, Used: true})),
		planner:  llmtest.New(llmtest.Reply(`{"next_topic": "` + nextTopic + `", "next_year": 1960}`)),
		writer:   llmtest.New(llmtest.Reply(writerJSON(nextTopic, nextYear))),
	}
}

func newHistory(t *testing.T, dir string, s scripts) *History {
	t.Helper()
	prompts, err := pipeline.LoadPrompts("ai_history", "", false)
	require.NoError(t, err)

	once := retry.Policy{MaxAttempts: 1, Backoff: retry.Constant(0)}
	return &History{
		Series: "ai_history",
		Store: state.NewStore(filepath.Join(dir, "state", "ai_history.json"), func() journey.State {
			return journey.NewState("MCP 뉴런", 1943)
		}),
		Policy: journey.Policy{Window: 3},
		Seed:   pipeline.Seed{Topic: "MCP 뉴런", Year: 1943},
		Pipeline: &pipeline.History{
			Research:        pipeline.Agent{Generator: s.research, Model: "m"},
			Planner:         pipeline.Agent{Generator: s.planner, Model: "m"},
			Writer:          pipeline.Agent{Generator: s.writer, Model: "m"},
			Prompts:         prompts,
			Retry:           once,
			PreviewHeader:   previewHeader,
			CitationsHeader: citationsHeader,
			Disclaimer:      disclaimer,
		},
		Publisher: &publish.Publisher{OutputRoot: filepath.Join(dir, "_posts"), Category: "ai_history"},
	}
}

func midJourney() journey.State {
	return journey.State{
		DayCount:    3,
		LastRunDate: "2025-03-13",
		CurrentYear: journey.YearOf(1956),
		LastTopic:   "Dartmouth workshop",
		NextTopic:   "Perceptron",
		NextYear:    journey.YearOf(1958),
	}
}

func TestHistoryRunOnce(t *testing.T) {
	dir := t.TempDir()
	s := happyScripts("ADALINE", 1960)
	h := newHistory(t, dir, s)
	require.NoError(t, h.Store.Save(midJourney()))

	res, err := h.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Day)
	assert.False(t, res.Final)
	assert.Equal(t, filepath.Join(dir, "_posts", "ai_history", "2025-03-14-day3.md"), res.Path)

	post, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(post), "Day 3: 퍼셉트론")
	assert.Contains(t, string(post), "* [Cornell](https://ref.example/1)")
	assert.True(t, strings.HasSuffix(string(post), "*"+disclaimer+"*\n"))
	assert.NotContains(t, string(post), "\n# Day 3", "title line is moved into front matter")

	st, err := h.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, journey.State{
		DayCount:    4,
		LastRunDate: "2025-03-14",
		CurrentYear: journey.YearOf(1958),
		LastTopic:   "퍼셉트론",
		NextTopic:   "ADALINE",
		NextYear:    journey.YearOf(1960),
	}, st)

	assert.Contains(t, s.research.Requests()[0].Prompt, `"Perceptron"`)
	assert.Contains(t, s.writer.Requests()[0].Prompt, "Write the post for Day 3.")
}

func TestHistoryRunOnceFromDefaults(t *testing.T) {
	dir := t.TempDir()
	s := happyScripts("Hebbian learning", 1949)
	h := newHistory(t, dir, s)

	res, err := h.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Day)
	assert.Equal(t, filepath.Join(dir, "_posts", "ai_history", "2025-03-14-day0.md"), res.Path)
	assert.Contains(t, s.writer.Requests()[0].Prompt, "Write the post for Day 0.")

	st, err := h.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.DayCount)
	assert.Equal(t, "Hebbian learning", st.NextTopic)

	// the next run continues with day 1
	next := happyScripts("Perceptron", 1958)
	h.Pipeline.Research.Generator = next.research
	h.Pipeline.Planner.Generator = next.planner
	h.Pipeline.Writer.Generator = next.writer
	res, err = h.RunOnce(context.Background(), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Day)
	assert.Equal(t, filepath.Join(dir, "_posts", "ai_history", "2025-03-15-day1.md"), res.Path)
}

func TestHistoryRunOnceHalts(t *testing.T) {
	tests := []struct {
		name   string
		state  *journey.State
		reason journey.Reason
	}{
		{
			name:   "journey complete",
			state:  &journey.State{DayCount: 80, NextTopic: "GPT-4", NextYear: journey.YearOf(2023)},
			reason: journey.ReasonJourneyComplete,
		},
		{
			name:   "placeholder next year",
			state:  &journey.State{NextTopic: "x", NextYear: journey.Year{}},
			reason: journey.ReasonInvalidInitialState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := happyScripts("x", 1960)
			h := newHistory(t, dir, s)
			require.NoError(t, h.Store.Save(*tt.state))
			before, err := os.ReadFile(h.Store.Path())
			require.NoError(t, err)

			res, err := h.RunOnce(context.Background(), now)
			require.NoError(t, err)
			assert.True(t, res.Halted)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Zero(t, s.research.Calls())

			after, err := os.ReadFile(h.Store.Path())
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.NoDirExists(t, filepath.Join(dir, "_posts"))
		})
	}
}

func TestHistoryRunOnceFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	s := happyScripts("ADALINE", 1960)
	s.writer = llmtest.New(llmtest.Reply("not json at all"))
	h := newHistory(t, dir, s)
	require.NoError(t, h.Store.Save(midJourney()))

	_, err := h.RunOnce(context.Background(), now)
	assert.ErrorIs(t, err, llm.ErrMalformedOutput)

	st, err := h.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, midJourney(), st)
	assert.NoDirExists(t, filepath.Join(dir, "_posts"))
}

func TestHistoryRunOncePublishFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	h := newHistory(t, dir, happyScripts("ADALINE", 1960))
	require.NoError(t, h.Store.Save(midJourney()))

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	h.Publisher.OutputRoot = blocker

	_, err := h.RunOnce(context.Background(), now)
	require.Error(t, err)

	st, err := h.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, midJourney(), st)
}

func TestHistoryRunOnceFinalCycle(t *testing.T) {
	dir := t.TempDir()
	h := newHistory(t, dir, happyScripts("GPT-4", 2023))
	require.NoError(t, h.Store.Save(midJourney()))

	res, err := h.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, res.Final)

	post, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(post), previewHeader)
	assert.Contains(t, string(post), "## 🛑 긴 여정의 마침표")
	assert.Contains(t, string(post), "2023년의 'GPT-4'")
	assert.Contains(t, string(post), citationsHeader)

	st, err := h.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, st.DayCount)

	// the following run halts
	res, err = h.RunOnce(context.Background(), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, journey.ReasonJourneyComplete, res.Reason)
}

func TestHistoryStatus(t *testing.T) {
	h := newHistory(t, t.TempDir(), happyScripts("x", 1960))
	require.NoError(t, h.Store.Save(midJourney()))

	status, err := h.Status(now)
	require.NoError(t, err)
	assert.Equal(t, "ai_history", status.Series)
	assert.Equal(t, 3, status.Day)
	assert.Equal(t, "2025-03-13", status.LastRunDate)
	assert.Equal(t, midJourney(), status.State)
	assert.Equal(t, journey.Continue, status.Decision.Verdict)
	assert.Equal(t, 2022, status.Decision.Threshold)
}

func newStory(t *testing.T, dir string, writer, summarizer *llmtest.Scripted) *Story {
	t.Helper()
	prompts, err := pipeline.LoadPrompts("ghost_in_the_legacy", "", true)
	require.NoError(t, err)

	return &Story{
		Series: "ghost_in_the_legacy",
		Title:  "Ghost in the Legacy",
		Store: state.NewStore(filepath.Join(dir, "state", "ghost_in_the_legacy.json"), func() journey.StoryState {
			return journey.StoryState{Synopsis: "synopsis", StoryBible: json.RawMessage(`{}`)}
		}),
		Policy: journey.StoryPolicy{Sentinel: sentinel},
		Pipeline: &pipeline.Story{
			Writer:     pipeline.Agent{Generator: writer, Model: "m", Search: true, Maps: true},
			Summarizer: pipeline.Agent{Generator: summarizer, Model: "m"},
			Prompts:    prompts,
			Retry:      retry.Policy{MaxAttempts: 1, Backoff: retry.Constant(0)},
			Sentinel:   sentinel,
			BodyHeader: "## 본문",
			SourceHeaders: pipeline.SourceHeaders{
				WebUsed:    "## 웹 검색 (사용됨)",
				WebUnused:  "## 웹 검색 (미사용됨)",
				MapsUsed:   "## 맵 검색 (사용됨)",
				MapsUnused: "## 맵 검색 (미사용됨)",
			},
			Disclaimer: disclaimer,
		},
		Publisher: &publish.Publisher{OutputRoot: filepath.Join(dir, "_posts"), Category: "ghost_in_the_legacy"},
	}
}

func TestStoryRunOnce(t *testing.T) {
	dir := t.TempDir()
	writer := llmtest.New(llmtest.Reply("수현은 첫 출근을 했다.", citation.Source{URI: "https://map.example", Title: "판교역", Kind: citation.Maps, Used: true}))
	summarizer := llmtest.New(llmtest.Reply(`{"plot_summary": "수현의 첫 출근.", "story_bible": {"인물": {"이수현": ["신입"]}}}`))
	s := newStory(t, dir, writer, summarizer)

	res, err := s.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Day)
	assert.False(t, res.Final)

	post, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(post), "Ghost in the Legacy - Day 1")
	assert.Contains(t, string(post), "## 본문\n수현은 첫 출근을 했다.\n")
	assert.Contains(t, string(post), "## 맵 검색 (사용됨)\n* [판교역](https://map.example)\n")

	st, err := s.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.DayCount)
	assert.Equal(t, "2025-03-14", st.LastRunDate)
	assert.Equal(t, []string{"수현의 첫 출근."}, st.PlotLog)
	assert.Equal(t, "수현은 첫 출근을 했다.", st.LastPassage)
	assert.JSONEq(t, `{"인물": {"이수현": ["신입"]}}`, string(st.StoryBible))
	assert.Equal(t, "synopsis", st.Synopsis)
}

func TestStoryRunOnceFinalPassage(t *testing.T) {
	dir := t.TempDir()
	writer := llmtest.New(llmtest.Reply("마지막 장면. " + sentinel))
	summarizer := llmtest.New(llmtest.Reply(`{"plot_summary": "끝.", "story_bible": {}}`))
	s := newStory(t, dir, writer, summarizer)

	res, err := s.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, res.Final)

	res, err = s.RunOnce(context.Background(), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, journey.ReasonStoryComplete, res.Reason)
	assert.Equal(t, 1, writer.Calls())
}

func TestStoryRunOnceEmptyPassage(t *testing.T) {
	dir := t.TempDir()
	writer := llmtest.New(llmtest.Reply(""))
	s := newStory(t, dir, writer, llmtest.New())

	res, err := s.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, journey.ReasonStoryComplete, res.Reason)
	assert.False(t, s.Store.Exists())
	assert.NoDirExists(t, filepath.Join(dir, "_posts"))
}

func TestStoryRunOnceFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	writer := llmtest.New(llmtest.Fail(errors.New("quota exceeded")))
	s := newStory(t, dir, writer, llmtest.New())

	_, err := s.RunOnce(context.Background(), now)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.False(t, s.Store.Exists())
}

type fakeRunner struct {
	name string
	err  error
	ran  bool
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) RunOnce(context.Context, time.Time) (*Result, error) {
	f.ran = true
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Series: f.name}, nil
}

func (f *fakeRunner) Status(time.Time) (*Status, error) { return &Status{Series: f.name}, nil }

func TestRunAll(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeRunner{name: "a", err: boom}
	b := &fakeRunner{name: "b"}

	results, err := RunAll(context.Background(), []Runner{a, b}, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "series a")
	assert.True(t, b.ran, "a failure does not stop the other series")
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Series)
}

func TestRunAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeRunner{name: "a"}
	_, err := RunAll(ctx, []Runner{a}, now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.ran)
}

func TestStoryStatus(t *testing.T) {
	s := newStory(t, t.TempDir(), llmtest.New(), llmtest.New())
	require.NoError(t, s.Store.Save(journey.StoryState{DayCount: 5, LastRunDate: "2025-03-13", LastPassage: "끝. " + sentinel}))

	status, err := s.Status(now)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Day)
	assert.Equal(t, "2025-03-13", status.LastRunDate)
	assert.Equal(t, journey.Halt, status.Decision.Verdict)
	assert.Equal(t, journey.ReasonStoryComplete, status.Decision.Reason)
}
