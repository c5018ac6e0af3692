package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/llm"
	"github.com/aktagon/history-writer/internal/pipeline"
	"github.com/aktagon/history-writer/internal/retry"
	"github.com/aktagon/history-writer/internal/series"
)

const defaultConfigDir = ".history-writer"

//go:embed config/settings.yaml
var defaultSettings string

// Agent roles looked up in Settings.Agents.
const (
	roleResearch    = "research"
	rolePlanner     = "planner"
	roleWriter      = "writer"
	roleStoryWriter = "story_writer"
	roleSummarizer  = "summarizer"
)

// AgentSettings configures one model role.
type AgentSettings struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	MaxTokens      int     `yaml:"max_tokens"`
	ThinkingBudget *int    `yaml:"thinking_budget"`
	Search         bool    `yaml:"search"`
	Maps           bool    `yaml:"maps"`
}

type CitationSettings struct {
	Timeout            time.Duration `yaml:"timeout"`
	Concurrency        int           `yaml:"concurrency"`
	FetchMissingTitles bool          `yaml:"fetch_missing_titles"`
}

type RetrySettings struct {
	Attempts       int           `yaml:"attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	BackoffStep    time.Duration `yaml:"backoff_step"`
}

// SeriesSettings describes one series. History fields and story fields are
// used according to Kind.
type SeriesSettings struct {
	Name       string      `yaml:"name"`
	Kind       series.Kind `yaml:"kind"`
	Category   string      `yaml:"category"`
	Enabled    bool        `yaml:"enabled"`
	PromptsDir string      `yaml:"prompts_dir"`

	// Agents overrides the non-zero fields of the shared agent settings.
	Agents map[string]AgentSettings `yaml:"agents"`

	Window          int    `yaml:"window"`
	SeedTopic       string `yaml:"seed_topic"`
	SeedYear        int    `yaml:"seed_year"`
	PreviewHeader   string `yaml:"preview_header"`
	CitationsHeader string `yaml:"citations_header"`

	Title         string                 `yaml:"title"`
	Sentinel      string                 `yaml:"sentinel"`
	BodyHeader    string                 `yaml:"body_header"`
	SourceHeaders pipeline.SourceHeaders `yaml:"source_headers"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	OutputRoot   string                   `yaml:"output_root"`
	StateDir     string                   `yaml:"state_dir"`
	TemplatePath string                   `yaml:"template_path"`
	Disclaimer   string                   `yaml:"disclaimer"`
	Citations    CitationSettings         `yaml:"citations"`
	Retry        RetrySettings            `yaml:"retry"`
	Agents       map[string]AgentSettings `yaml:"agents"`
	Series       []SeriesSettings         `yaml:"series"`
}

// roles returns the agent roles a series kind needs.
func roles(kind series.Kind) []string {
	if kind == series.KindStory {
		return []string{roleStoryWriter, roleSummarizer}
	}
	return []string{roleResearch, rolePlanner, roleWriter}
}

// Validate reports every problem in the settings at once.
func (s *Settings) Validate() error {
	var errs []error
	if s.OutputRoot == "" {
		errs = append(errs, errors.New("output_root is required"))
	}
	if s.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}

	for role, a := range s.Agents {
		errs = append(errs, validateAgent("agents."+role, role, a)...)
	}

	seen := make(map[string]bool)
	for i, ss := range s.Series {
		prefix := fmt.Sprintf("series[%d]", i)
		if ss.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else {
			prefix = "series " + ss.Name
		}
		if seen[ss.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", prefix))
		}
		seen[ss.Name] = true

		if ss.Category == "" {
			errs = append(errs, fmt.Errorf("%s: category is required", prefix))
		}

		switch ss.Kind {
		case series.KindHistory:
			if ss.SeedTopic == "" || ss.SeedYear <= 0 {
				errs = append(errs, fmt.Errorf("%s: seed_topic and seed_year are required", prefix))
			}
			if ss.PreviewHeader == "" || ss.CitationsHeader == "" {
				errs = append(errs, fmt.Errorf("%s: preview_header and citations_header are required", prefix))
			}
			if ss.Window < 0 {
				errs = append(errs, fmt.Errorf("%s: window must not be negative", prefix))
			}
		case series.KindStory:
			if ss.Title == "" {
				errs = append(errs, fmt.Errorf("%s: title is required", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", prefix, ss.Kind))
			continue
		}

		for _, role := range roles(ss.Kind) {
			if _, ok := s.Agents[role]; !ok {
				errs = append(errs, fmt.Errorf("%s: agents.%s is not configured", prefix, role))
				continue
			}
			if _, ok := ss.Agents[role]; !ok {
				continue
			}
			a, err := s.agentFor(ss, role)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
				continue
			}
			errs = append(errs, validateAgent(prefix+" agents."+role, role, a)...)
		}
	}

	return errors.Join(errs...)
}

func validateAgent(name, role string, a AgentSettings) []error {
	var errs []error
	switch a.Provider {
	case llm.ProviderGemini:
	case llm.ProviderAnthropic:
		if a.Search || a.Maps {
			errs = append(errs, fmt.Errorf("%s: provider %s has no search grounding", name, a.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown provider %q", name, a.Provider))
	}
	if a.Model == "" {
		errs = append(errs, fmt.Errorf("%s: model is required", name))
	}
	if role == roleResearch && a.Provider != llm.ProviderGemini {
		errs = append(errs, fmt.Errorf("%s: research needs search grounding, use provider %s", name, llm.ProviderGemini))
	}
	return errs
}

// agentFor returns the settings of role for a series: the shared agent with
// the series override merged over it.
func (s *Settings) agentFor(ss SeriesSettings, role string) (AgentSettings, error) {
	a := s.Agents[role]
	override, ok := ss.Agents[role]
	if !ok {
		return a, nil
	}
	if err := mergo.Merge(&a, override, mergo.WithOverride); err != nil {
		return AgentSettings{}, fmt.Errorf("merging agents.%s: %w", role, err)
	}
	return a, nil
}

// Select returns the named series, or every enabled series when names is
// empty.
func (s *Settings) Select(names []string) ([]SeriesSettings, error) {
	if len(names) == 0 {
		var out []SeriesSettings
		for _, ss := range s.Series {
			if ss.Enabled {
				out = append(out, ss)
			}
		}
		return out, nil
	}

	out := make([]SeriesSettings, 0, len(names))
	for _, name := range names {
		ss, err := s.Find(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *ss)
	}
	return out, nil
}

// Find returns the series called name.
func (s *Settings) Find(name string) (*SeriesSettings, error) {
	for i := range s.Series {
		if s.Series[i].Name == name {
			return &s.Series[i], nil
		}
	}
	return nil, fmt.Errorf("unknown series %q", name)
}

// Policy converts the retry settings. Missing values fall back to three
// attempts with a linear 2s, 4s backoff.
func (r RetrySettings) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.Attempts > 0 {
		p.MaxAttempts = r.Attempts
	}
	if r.InitialBackoff > 0 || r.BackoffStep > 0 {
		p.Backoff = retry.Linear(r.InitialBackoff, r.BackoffStep)
	}
	return p
}

func (c CitationSettings) options() []citation.Option {
	opts := []citation.Option{citation.WithTitleFetching(c.FetchMissingTitles)}
	if c.Timeout > 0 {
		opts = append(opts, citation.WithTimeout(c.Timeout))
	}
	if c.Concurrency > 0 {
		opts = append(opts, citation.WithConcurrency(c.Concurrency))
	}
	return opts
}

// window is the effective termination window.
func (ss SeriesSettings) window() int {
	if ss.Window <= 0 {
		return journey.DefaultWindow
	}
	return ss.Window
}

func (s *Settings) statePath(name string) string {
	return filepath.Join(s.StateDir, name+".json")
}

// loadSettings reads and validates a settings file.
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

// getConfigPath returns the path to a file in dir, or in the default config
// directory when dir is empty.
func getConfigPath(dir, filename string) string {
	if dir == "" {
		dir = defaultConfigDir
	}
	return filepath.Join(dir, filename)
}

// ensureConfigExists creates dir and writes the default settings.yaml if it
// is missing. It returns the settings path.
func ensureConfigExists(dir string) (string, error) {
	settingsPath := getConfigPath(dir, "settings.yaml")
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return "", fmt.Errorf("writing settings.yaml: %w", err)
		}
	}
	return settingsPath, nil
}
