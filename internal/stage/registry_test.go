package stage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/dataset"
)

// nopProcessor is a Processor that does nothing.
type nopProcessor struct{}

func (nopProcessor) Stage1(_ context.Context, req Stage1Request) (string, error) {
	return req.ImagesDir, nil
}

func (nopProcessor) Stage2(context.Context, Stage2Request) error { return nil }

func fullBindings() map[dataset.ID]Processor {
	b := make(map[dataset.ID]Processor)
	for _, id := range dataset.All() {
		b[id] = nopProcessor{}
	}
	return b
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("accepts complete bindings", func(t *testing.T) {
		t.Parallel()

		r, err := NewRegistry(fullBindings())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, id := range dataset.All() {
			if _, err := r.Lookup(id); err != nil {
				t.Errorf("lookup %s: unexpected error: %v", id, err)
			}
		}
	})

	t.Run("rejects missing binding", func(t *testing.T) {
		t.Parallel()

		b := fullBindings()
		delete(b, dataset.CMMD)
		_, err := NewRegistry(b)
		if !errors.Is(err, ErrMissingProcessor) {
			t.Errorf("expected ErrMissingProcessor, got %v", err)
		}
	})

	t.Run("rejects nil processor", func(t *testing.T) {
		t.Parallel()

		b := fullBindings()
		b[dataset.BMCD] = nil
		_, err := NewRegistry(b)
		if !errors.Is(err, ErrMissingProcessor) {
			t.Errorf("expected ErrMissingProcessor, got %v", err)
		}
	})

	t.Run("rejects unknown identifier", func(t *testing.T) {
		t.Parallel()

		b := fullBindings()
		b[dataset.ID("ddsm")] = nopProcessor{}
		_, err := NewRegistry(b)
		if !errors.Is(err, dataset.ErrUnknown) {
			t.Errorf("expected dataset.ErrUnknown, got %v", err)
		}
	})
}

func TestRegistryLookupUnknown(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(fullBindings())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup(dataset.ID("ddsm")); !errors.Is(err, ErrMissingProcessor) {
		t.Errorf("expected ErrMissingProcessor, got %v", err)
	}
}

func TestFromSettings(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	s.Processors[string(dataset.VinDr)] = config.ProcessorSettings{
		Stage1: "tool stage1 ${RAW_ROOT}",
		Stage2: "tool stage2",
	}
	s.Processors[string(dataset.CMMD)] = config.ProcessorSettings{Stage1: "only-stage1"}

	r, err := FromSettings(s, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("synthetic is built in", func(t *testing.T) {
		t.Parallel()
		p, _ := r.Lookup(dataset.Synthetic)
		if _, ok := p.(*SyntheticProcessor); !ok {
			t.Errorf("expected *SyntheticProcessor, got %T", p)
		}
	})

	t.Run("configured dataset runs commands", func(t *testing.T) {
		t.Parallel()
		p, _ := r.Lookup(dataset.VinDr)
		if _, ok := p.(*CommandProcessor); !ok {
			t.Errorf("expected *CommandProcessor, got %T", p)
		}
	})

	t.Run("partially configured dataset is refused", func(t *testing.T) {
		t.Parallel()
		p, err := r.Lookup(dataset.CMMD)
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
		if p != nil {
			t.Errorf("expected no processor, got %T", p)
		}
		if !strings.Contains(err.Error(), "processors.cmmd.stage2 is empty") {
			t.Errorf("expected the missing command to be named, got %v", err)
		}
	})

	t.Run("absent dataset is refused", func(t *testing.T) {
		t.Parallel()
		if _, err := r.Lookup(dataset.BMCD); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestFromSettingsWarnsOnIncompleteEntry(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	s.Processors[string(dataset.MiniDDSM)] = config.ProcessorSettings{Stage2: "tool stage2"}

	var buf bytes.Buffer
	if _, err := FromSettings(s, slog.New(slog.NewTextHandler(&buf, nil))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "processor entry is incomplete") || !strings.Contains(out, "missing=stage1") {
		t.Errorf("expected warning naming the missing stage, got %q", out)
	}
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		u    Unconfigured
		want string
	}{
		{name: "absent entry", u: Unconfigured{Dataset: dataset.BMCD}, want: "add processors.bmcd"},
		{name: "missing stage2", u: Unconfigured{Dataset: dataset.CMMD, Missing: "stage2"}, want: "processors.cmmd.stage2 is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := tt.u.Stage1(context.Background(), Stage1Request{}); !errors.Is(err, ErrNotConfigured) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Stage1: expected ErrNotConfigured mentioning %q, got %v", tt.want, err)
			}
			if err := tt.u.Stage2(context.Background(), Stage2Request{}); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("Stage2: expected ErrNotConfigured, got %v", err)
			}
		})
	}
}

func TestLookupRefusesUnconfiguredBinding(t *testing.T) {
	t.Parallel()

	b := fullBindings()
	b[dataset.VinDr] = Unconfigured{Dataset: dataset.VinDr}
	r, err := NewRegistry(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Lookup(dataset.VinDr); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := r.Lookup(dataset.CMMD); err != nil {
		t.Errorf("expected other bindings to resolve, got %v", err)
	}
}

func TestFromSettingsInvalidCommand(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	s.Processors[string(dataset.VinDr)] = config.ProcessorSettings{
		Stage1: `tool "unterminated`,
		Stage2: "tool",
	}
	if _, err := FromSettings(s, nil); err == nil {
		t.Error("expected error for unparsable command")
	}
}
