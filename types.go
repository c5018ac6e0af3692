package main

import (
	"log/slog"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aktagon/history-writer/internal/series"
)

// ProcessingStatus represents the outcome of one series in a run
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusSkipped ProcessingStatus = "skipped"
	StatusError   ProcessingStatus = "error"
)

// ProcessingResult tracks the outcome of each series
type ProcessingResult struct {
	Series   string
	Status   ProcessingStatus
	Day      int
	Filename string
	Reason   string
}

// RunReport summarizes a run.
type RunReport struct {
	Results []ProcessingResult
	Err     error
}

// NewRunReport matches runner results to the selected series. A selected
// series without a result failed.
func NewRunReport(selected []SeriesSettings, results []*series.Result, err error) *RunReport {
	byName := make(map[string]*series.Result, len(results))
	for _, r := range results {
		byName[r.Series] = r
	}

	report := &RunReport{Err: err}
	for _, ss := range selected {
		r, ok := byName[ss.Name]
		switch {
		case !ok:
			report.Results = append(report.Results, ProcessingResult{Series: ss.Name, Status: StatusError})
		case r.Halted:
			report.Results = append(report.Results, ProcessingResult{Series: ss.Name, Status: StatusSkipped, Reason: string(r.Reason)})
		default:
			report.Results = append(report.Results, ProcessingResult{Series: ss.Name, Status: StatusSuccess, Day: r.Day, Filename: r.Path})
		}
	}
	return report
}

// Count returns how many series ended with status.
func (r *RunReport) Count(status ProcessingStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Log writes one line per series and a summary line.
func (r *RunReport) Log(logger *slog.Logger) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			logger.Info("✓ Generated", "series", res.Series, "day", res.Day, "path", res.Filename)
		case StatusSkipped:
			logger.Info("- Skipped", "series", res.Series, "reason", res.Reason)
		default:
			logger.Error("✗ Failed", "series", res.Series)
		}
	}
	logger.Info("Run finished",
		"success", r.Count(StatusSuccess),
		"skipped", r.Count(StatusSkipped),
		"error", r.Count(StatusError),
	)
}

var reportHeader = table.Row{
	"Series",
	"Status",
	"Day",
	"File",
	"Reason",
}

// Table renders the results as a text table.
func (r *RunReport) Table() string {
	t := table.NewWriter()
	t.AppendHeader(reportHeader)
	for _, res := range r.Results {
		day := ""
		if res.Day > 0 {
			day = strconv.Itoa(res.Day)
		}
		t.AppendRow(table.Row{res.Series, string(res.Status), day, res.Filename, res.Reason})
	}
	return t.Render()
}
