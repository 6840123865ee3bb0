package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/clsprep/internal/dataset"
	"github.com/nao1215/clsprep/internal/layout"
	"github.com/nao1215/clsprep/internal/model"
)

// createTestSummary builds a run where vindr succeeded, cmmd failed and bmcd never started.
func createTestSummary() *model.RunSummary {
	s := model.NewRunSummary("/models/yolox.pth", []dataset.ID{dataset.VinDr, dataset.CMMD, dataset.BMCD}, 4)
	s.ID = 12

	ok := model.NewDatasetRun(dataset.VinDr, layout.For("/raw", "/clean", dataset.VinDr))
	ok.Stage1ImagesDir = "/raw/vindr/stage1_images"
	ok.PerformedSteps = append(ok.PerformedSteps, "stage1", "stage2")
	ok.LabelRows, ok.Images = 12345, 12345
	ok.Finish(nil, false)

	failed := model.NewDatasetRun(dataset.CMMD, layout.For("/raw", "/clean", dataset.CMMD))
	failed.Finish(errors.New("stage1 failed: exit status 2"), false)

	s.Datasets = append(s.Datasets, ok, failed)
	s.Finish(errors.New("dataset cmmd: stage1 failed: exit status 2"), false)
	return s
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes summary sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes, got %d", buf.Len(), n)
		}

		out := buf.String()
		for _, want := range []string{
			"CLSPREP RUN SUMMARY",
			"Run ID:    12",
			"Engine:    /models/yolox.pth",
			"FAILED - dataset cmmd",
			"12,345",
			"error: stage1 failed: exit status 2",
			"NOT STARTED",
			"  - bmcd",
			"TOTAL: 12,345 label rows, 12,345 images",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q\n%s", want, out)
			}
		}
		if strings.Contains(out, "stage1 images:") {
			t.Error("expected paths only in verbose mode")
		}
	})

	t.Run("verbose adds paths and steps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "stage1 images: /raw/vindr/stage1_images") {
			t.Errorf("expected stage1 dir in verbose output\n%s", out)
		}
		if !strings.Contains(out, "steps:         stage1, stage2") {
			t.Errorf("expected steps in verbose output\n%s", out)
		}
	})

	t.Run("empty run", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("/e.pth", nil, 1)
		s.Finish(nil, false)

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No dataset was started.") {
			t.Errorf("unexpected output\n%s", buf.String())
		}
		if strings.Contains(buf.String(), "Run ID") {
			t.Error("expected no run id when history is disabled")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and alert", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		for _, want := range []string{
			"# clsprep Run Summary",
			"## Datasets",
			"`vindr`",
			"12,345",
			"[!CAUTION]",
			"## Not Started",
			"bmcd",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q\n%s", want, out)
			}
		}
	})

	t.Run("pie chart for several datasets with images", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("/e.pth", []dataset.ID{dataset.VinDr, dataset.CMMD}, 2)
		for _, id := range s.Requested {
			d := model.NewDatasetRun(id, layout.Paths{})
			d.Images, d.LabelRows = 5, 5
			d.Finish(nil, false)
			s.Datasets = append(s.Datasets, d)
		}
		s.Finish(nil, false)

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "```mermaid") {
			t.Errorf("expected mermaid block\n%s", out)
		}
		if !strings.Contains(out, "[!TIP]") {
			t.Errorf("expected success tip\n%s", out)
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("expected single line output, got %q", buf.String())
		}

		var decoded model.RunSummary
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.ID != 12 || len(decoded.Datasets) != 2 || decoded.Status != model.StatusFailed {
			t.Errorf("unexpected decoded summary: %+v", decoded)
		}
	})

	t.Run("pretty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteHistory(nil); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected empty array, got %q", buf.String())
		}
	})
}

func TestWriteHistory(t *testing.T) {
	t.Parallel()

	runs := []*model.RunSummary{createTestSummary()}

	tests := []struct {
		name   string
		writer func(*bytes.Buffer) HistoryWriter
		want   []string
	}{
		{
			name:   "simple",
			writer: func(b *bytes.Buffer) HistoryWriter { return NewSimpleWriter(b) },
			want:   []string{"ID", "12", "failed", "vindr(succeeded), cmmd(failed), bmcd"},
		},
		{
			name:   "markdown",
			writer: func(b *bytes.Buffer) HistoryWriter { return NewMarkdownWriter(b) },
			want:   []string{"# clsprep Run History", "vindr(succeeded)", "bmcd"},
		},
		{
			name:   "json",
			writer: func(b *bytes.Buffer) HistoryWriter { return NewJSONWriter(b) },
			want:   []string{`"id":12`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if _, err := tt.writer(&buf).WriteHistory(runs); err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected %q in\n%s", want, buf.String())
				}
			}
		})
	}

	t.Run("simple empty", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory(nil); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "No runs recorded.\n" {
			t.Errorf("unexpected output %q", buf.String())
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))

	n, err := mw.Write(createTestSummary())
	if err != nil {
		t.Fatal(err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("expected %d total bytes, got %d", a.Len()+b.Len(), n)
	}
}
