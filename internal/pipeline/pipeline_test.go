package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/clsprep/internal/dataset"
	"github.com/nao1215/clsprep/internal/layout"
	"github.com/nao1215/clsprep/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *model.DatasetRun) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *model.DatasetRun) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestRun() *model.DatasetRun {
	return model.NewDatasetRun(dataset.CMMD, layout.For("/raw", "/clean", dataset.CMMD))
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	p := New()
	if p == nil {
		t.Fatal("expected non-nil pipeline")
	}
	if n := len(p.StepNames()); n != 0 {
		t.Errorf("expected 0 steps, got %d", n)
	}
	if p.logger == nil {
		t.Error("expected default logger")
	}
}

func TestPipelineAddSteps(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddSteps(&mockStep{name: "a"}, &mockStep{name: "b"})
	p.AddSteps(&mockStep{name: "c"})

	want := []string{"a", "b", "c"}
	if got := p.StepNames(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs all steps and records them", func(t *testing.T) {
		t.Parallel()

		var order []string
		step := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.DatasetRun) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(step("first"), step("second"))
		run := newTestRun()

		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(order, []string{"first", "second"}) {
			t.Errorf("unexpected order %v", order)
		}
		if !slices.Equal(run.PerformedSteps, []string{"first", "second"}) {
			t.Errorf("unexpected performed steps %v", run.PerformedSteps)
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		first := &mockStep{name: "first"}
		failing := &mockStep{name: "failing", doFunc: func(context.Context, *model.DatasetRun) error {
			return errBoom
		}}
		last := &mockStep{name: "last"}

		p := New()
		p.AddSteps(first, failing, last)
		run := newTestRun()

		err := p.Execute(context.Background(), run)
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if last.callCount != 0 {
			t.Error("expected step after failure not to run")
		}
		if !slices.Equal(run.PerformedSteps, []string{"first"}) {
			t.Errorf("expected only first step recorded, got %v", run.PerformedSteps)
		}
	})

	t.Run("checks cancellation between steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		first := &mockStep{name: "first", doFunc: func(context.Context, *model.DatasetRun) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "second"}

		p := New()
		p.AddSteps(first, second)

		err := p.Execute(ctx, newTestRun())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step to be skipped")
		}
	})
}
