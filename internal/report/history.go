package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/nao1215/clsprep/internal/model"
)

// HistoryWriter renders a list of past runs.
type HistoryWriter interface {
	WriteHistory(runs []*model.RunSummary) (int, error)
}

// WriteHistory outputs one line per run, newest first as given.
func (w *SimpleWriter) WriteHistory(runs []*model.RunSummary) (int, error) {
	if len(runs) == 0 {
		return w.output.Write([]byte("No runs recorded.\n"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-6s %-23s %-10s %10s  %s\n", "ID", "STARTED", "STATUS", "IMAGES", "DATASETS")
	for _, r := range runs {
		fmt.Fprintf(&sb, "%-6d %-23s %-10s %10s  %s\n",
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			r.Status,
			w.count(r.TotalImages()),
			datasetList(r),
		)
		if w.verbose && r.ErrorMessage != "" {
			fmt.Fprintf(&sb, "       error: %s\n", r.ErrorMessage)
		}
	}
	return w.output.Write([]byte(sb.String()))
}

// WriteHistory outputs the runs as a Markdown table.
func (w *MarkdownWriter) WriteHistory(runs []*model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("clsprep Run History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(timeLayout),
			markdownStatus(r.Status),
			w.count(r.TotalImages()),
			datasetList(r),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Started", "Status", "Images", "Datasets"},
		Rows:   rows,
	})
	return len(md.String()), md.Build()
}

// datasetList joins the requested datasets, marking the ones that ran.
func datasetList(r *model.RunSummary) string {
	names := make([]string, len(r.Requested))
	for i, id := range r.Requested {
		names[i] = id.String()
		if i < len(r.Datasets) {
			names[i] += "(" + string(r.Datasets[i].Status) + ")"
		}
	}
	return strings.Join(names, ", ")
}
