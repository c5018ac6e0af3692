package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/logging"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/series"
	"github.com/aktagon/history-writer/internal/state"
)

var (
	settingsPath    string
	envFile         string
	apiKey          string
	anthropicAPIKey string
	debugMode       bool
	logFilePath     string
	logFormat       string
	statusVerbose   bool
	showWidth       int
	showStyle       string

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:           "history-writer",
	Short:         "Daily AI-written history and story series for a Jekyll blog",
	Long:          `Runs one generation cycle per series: research, plan, write, publish a dated post and save progress. Meant to be called once a day from cron.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}

		opts := []logging.Option{logging.WithFormat(logFormat)}
		if debugMode {
			opts = append(opts, logging.WithDebug())
		}
		if logFilePath != "" {
			f, err := logging.OpenFile(logFilePath)
			if err != nil {
				return err
			}
			logFile = f
			opts = append(opts, logging.WithFile(f))
		}

		runID, err := newRunID()
		if err != nil {
			return err
		}
		logger := logging.New(opts...).With("run_id", runID)
		slog.SetDefault(logger)
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [series...]",
	Short: "Run one cycle of the named series, or of every enabled series",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.FromContext(ctx)

		settings, err := readSettings()
		if err != nil {
			return err
		}
		selected, err := settings.Select(args)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			logger.Info("No enabled series")
			return nil
		}

		sp := NewSeriesProcessor(settings, apiKeys())
		if err := sp.CheckKeys(selected); err != nil {
			return err
		}
		runners, err := sp.Runners(ctx, selected)
		if err != nil {
			return err
		}

		results, err := series.RunAll(ctx, runners, time.Now())
		report := NewRunReport(selected, results, err)
		report.Log(logger)
		fmt.Fprintln(cmd.OutOrStdout(), report.Table())
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [series...]",
	Short: "Show the stored progress of each series and what the next run would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := readSettings()
		if err != nil {
			return err
		}
		selected, err := settings.Select(args)
		if err != nil {
			return err
		}

		runners, err := NewSeriesProcessor(settings, APIKeys{}).Runners(cmd.Context(), selected)
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), runners, time.Now(), statusVerbose)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <series>",
	Short: "Render the latest post of a series in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := readSettings()
		if err != nil {
			return err
		}
		ss, err := settings.Find(args[0])
		if err != nil {
			return err
		}

		publisher := &publish.Publisher{OutputRoot: settings.OutputRoot, Category: ss.Category}
		out, err := showLatest(publisher, showStyle, showWidth)
		if err != nil {
			return fmt.Errorf("series %s: %w", ss.Name, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ensureConfigExists(defaultConfigDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Settings: %s\n", path)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsPath, "settings", "", "Path to settings file (default .history-writer/settings.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading API keys")
	flags.StringVar(&apiKey, "api-key", "", "Gemini API key (GEMINI_API_KEY or GOOGLE_API_KEY)")
	flags.StringVar(&anthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (ANTHROPIC_API_KEY)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flags.StringVar(&logFilePath, "log-file", "", "Also write logs to this file")
	flags.StringVar(&logFormat, "log-format", "text", "Log file format: text or json")

	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "Also print the stored state of each series")
	showCmd.Flags().IntVar(&showWidth, "width", 80, "Wrap rendered text at this width")
	showCmd.Flags().StringVar(&showStyle, "style", "auto", "Glamour style: auto, dark, light, notty or a JSON style file")

	rootCmd.AddCommand(runCmd, statusCmd, showCmd, initCmd)
}

// loadEnvFile loads path into the environment. Variables already set win,
// and a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func newRunID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// readSettings loads the --settings file, or the default one, writing it
// first when it does not exist yet.
func readSettings() (*Settings, error) {
	if settingsPath != "" {
		return loadSettings(settingsPath)
	}
	path, err := ensureConfigExists(defaultConfigDir)
	if err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}
	return loadSettings(path)
}

func apiKeys() APIKeys {
	keys := APIKeys{Gemini: apiKey, Anthropic: anthropicAPIKey}
	if keys.Gemini == "" {
		keys.Gemini = os.Getenv("GEMINI_API_KEY")
	}
	if keys.Gemini == "" {
		keys.Gemini = os.Getenv("GOOGLE_API_KEY")
	}
	if keys.Anthropic == "" {
		keys.Anthropic = os.Getenv("ANTHROPIC_API_KEY")
	}
	return keys
}

var statusHeader = table.Row{
	"Series",
	"Day",
	"Last Run",
	"Next",
	"Verdict",
}

// printStatus writes a table of every series and, with verbose, the stored
// state of each one.
func printStatus(w io.Writer, runners []series.Runner, now time.Time, verbose bool) error {
	t := table.NewWriter()
	t.AppendHeader(statusHeader)

	for _, r := range runners {
		st, err := r.Status(now)
		if err != nil {
			return fmt.Errorf("series %s: %w", r.Name(), err)
		}
		if verbose {
			data, err := state.Marshal(st.State)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "→ %s\n%s\n", st.Series, data)
		}

		d := st.Decision
		next, verdict := "", d.Verdict.String()
		switch {
		case d.Verdict == journey.Halt:
			verdict = fmt.Sprintf("halt (%s)", d.Reason)
		case d.Topic != "":
			next = fmt.Sprintf("%s (%d)", d.Topic, d.Year)
			verdict = fmt.Sprintf("continue, threshold %d", d.Threshold)
		default:
			next = fmt.Sprintf("day %d", st.Day+1)
		}
		lastRun := st.LastRunDate
		if lastRun == "" {
			lastRun = "never"
		}
		t.AppendRow(table.Row{st.Series, st.Day, lastRun, next, verdict})
	}

	fmt.Fprintln(w, t.Render())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
