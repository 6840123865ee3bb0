package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/clsprep/internal/model"
)

// SimpleWriter outputs human-readable text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds per-dataset paths and steps.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeDatasets(&sb, summary)
	w.writeSkipped(&sb, summary)
	w.writeFooter(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        CLSPREP RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if s.ID != 0 {
		fmt.Fprintf(sb, "Run ID:    %d\n", s.ID)
	}
	fmt.Fprintf(sb, "Started:   %s\n", s.StartedAt.Format(timeLayout))
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(sb, "Finished:  %s (%s)\n", s.FinishedAt.Format(timeLayout), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(sb, "Engine:    %s\n", s.EnginePath)
	fmt.Fprintf(sb, "Workers:   %d\n", s.NumWorkers)
	fmt.Fprintf(sb, "Status:    %s\n", statusText(s.Status, s.ErrorMessage))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDatasets(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("DATASETS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	if len(s.Datasets) == 0 {
		sb.WriteString("  No dataset was started.\n\n")
		return
	}

	for _, d := range s.Datasets {
		fmt.Fprintf(sb, "  %-30s %-10s %8s rows %8s images  %s\n",
			d.Dataset,
			d.Status,
			w.count(d.LabelRows),
			w.count(d.Images),
			d.Duration().Round(time.Millisecond),
		)
		if d.ErrorMessage != "" {
			fmt.Fprintf(sb, "      error: %s\n", d.ErrorMessage)
		}
		if w.verbose {
			fmt.Fprintf(sb, "      labels:        %s\n", d.Paths.LabelPath)
			fmt.Fprintf(sb, "      stage1 images: %s\n", dashIfEmpty(d.Stage1ImagesDir))
			fmt.Fprintf(sb, "      cleaned:       %s\n", d.Paths.CleanedImagesDir)
			fmt.Fprintf(sb, "      steps:         %s\n", dashIfEmpty(strings.Join(d.PerformedSteps, ", ")))
			if d.PercPos != nil {
				fmt.Fprintf(sb, "      perc-pos:      %g\n", *d.PercPos)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSkipped(sb *strings.Builder, s *model.RunSummary) {
	skipped := s.Skipped()
	if len(skipped) == 0 {
		return
	}
	sb.WriteString("NOT STARTED\n")
	for _, id := range skipped {
		fmt.Fprintf(sb, "  - %s\n", id)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "TOTAL: %s label rows, %s images\n", w.count(s.TotalLabelRows()), w.count(s.TotalImages()))
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// statusText returns the status text for display.
func statusText(status model.Status, errMsg string) string {
	switch status {
	case model.StatusSucceeded:
		return "Succeeded"
	case model.StatusCancelled:
		return "CANCELLED"
	case model.StatusFailed:
		if errMsg != "" {
			return "FAILED - " + errMsg
		}
		return "FAILED"
	default:
		return "Incomplete"
	}
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
