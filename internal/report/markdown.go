package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/clsprep/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format, suitable for keeping
// next to the prepared data or pasting into a pull request.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeAlert(md, summary)
	w.writeDatasets(md, summary)
	w.writeSkipped(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("clsprep Run Summary")
	md.PlainText("")

	rows := make([][]string, 0, 7)
	if s.ID != 0 {
		rows = append(rows, []string{"Run ID", strconv.FormatInt(s.ID, 10)})
	}
	rows = append(rows,
		[]string{"Started", s.StartedAt.Format(timeLayout)},
		[]string{"Engine", "`" + s.EnginePath + "`"},
		[]string{"Workers", strconv.Itoa(s.NumWorkers)},
		[]string{"Status", markdownStatus(s.Status)},
		[]string{"Label Rows", w.count(s.TotalLabelRows())},
		[]string{"Images", w.count(s.TotalImages())},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeAlert writes an alert describing the overall outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	switch s.Status {
	case model.StatusSucceeded:
		md.Tip(fmt.Sprintf("All %d dataset(s) prepared.", len(s.Datasets)))
	case model.StatusCancelled:
		md.Warningf("The run was cancelled. Outputs of %s are incomplete.", lastDataset(s))
	case model.StatusFailed:
		md.Cautionf("The run failed: %s", s.ErrorMessage)
	default:
		md.Note("The run did not finish.")
	}
	md.PlainText("")
}

// writeDatasets writes the per-dataset table and the image distribution.
func (w *MarkdownWriter) writeDatasets(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Datasets")
	md.PlainText("")

	if len(s.Datasets) == 0 {
		md.PlainText("No dataset was started.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Datasets))
	for i, d := range s.Datasets {
		rows[i] = []string{
			"`" + d.Dataset.String() + "`",
			markdownStatus(d.Status),
			w.count(d.LabelRows),
			w.count(d.Images),
			d.Duration().Round(time.Millisecond).String(),
			strings.Join(d.PerformedSteps, ", "),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Dataset", "Status", "Label Rows", "Images", "Duration", "Steps"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, d := range s.Datasets {
		if d.ErrorMessage != "" {
			md.Details(d.Dataset.String()+" error", d.ErrorMessage)
		}
	}

	if s.TotalImages() > 0 && len(s.Datasets) > 1 {
		w.writePieChart(md, s)
	}
}

// writePieChart writes a mermaid pie chart of cleaned images per dataset.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Cleaned Images per Dataset"),
		piechart.WithShowData(true),
	)
	for _, d := range s.Datasets {
		if d.Images > 0 {
			chart.LabelAndIntValue(d.Dataset.String(), uint64(d.Images))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeSkipped lists the datasets that never started.
func (w *MarkdownWriter) writeSkipped(md *markdown.Markdown, s *model.RunSummary) {
	skipped := s.Skipped()
	if len(skipped) == 0 {
		return
	}

	md.H2("Not Started")
	md.PlainText("")
	names := make([]string, len(skipped))
	for i, id := range skipped {
		names[i] = id.String()
	}
	md.BulletList(names...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [clsprep](https://github.com/nao1215/clsprep)*")
}

func markdownStatus(status model.Status) string {
	switch status {
	case model.StatusSucceeded:
		return "✅ Succeeded"
	case model.StatusCancelled:
		return "⚠️ Cancelled"
	case model.StatusFailed:
		return "❌ Failed"
	default:
		return "⏳ Pending"
	}
}

// lastDataset names the dataset that was running when the run stopped.
func lastDataset(s *model.RunSummary) string {
	if len(s.Datasets) == 0 {
		return "the current dataset"
	}
	return s.Datasets[len(s.Datasets)-1].Dataset.String()
}
