package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/layout"
	"github.com/nao1215/clsprep/internal/model"
	"github.com/nao1215/clsprep/internal/stage"
)

// Progress lines written by the Driver.
const (
	EngineMessagePrefix = "Using YOLOX engine path: "
	ProcessingPrefix    = "Processing "
	DoneMessage         = "Done!"
	Separator           = "-----------------\n\n"
)

// Recorder persists run history. Failures to record are logged and never
// change the outcome of a run.
type Recorder interface {
	// StartRun stores a new run and returns its identifier.
	StartRun(ctx context.Context, summary *model.RunSummary) (int64, error)

	// RecordDataset stores the outcome of one dataset of run runID.
	RecordDataset(ctx context.Context, runID int64, run *model.DatasetRun) error

	// FinishRun stores the final state of the run.
	FinishRun(ctx context.Context, summary *model.RunSummary) error
}

// Driver prepares the configured datasets one after the other.
type Driver struct {
	registry *stage.Registry
	out      io.Writer
	logger   *slog.Logger
	recorder Recorder
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithOutput sets where progress lines are written. Defaults to io.Discard.
func WithOutput(w io.Writer) DriverOption {
	return func(d *Driver) {
		d.out = w
	}
}

// WithDriverLogger sets the logger used by the driver and its pipelines.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithRecorder enables run history.
func WithRecorder(r Recorder) DriverOption {
	return func(d *Driver) {
		d.recorder = r
	}
}

// NewDriver creates a Driver that resolves processors from registry.
func NewDriver(registry *stage.Registry, opts ...DriverOption) *Driver {
	d := &Driver{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	if d.out == nil {
		d.out = io.Discard
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// DatasetPipeline builds the step sequence for one dataset.
func (d *Driver) DatasetPipeline(processor stage.Processor, cfg *config.Config, percPos *float64) *Pipeline {
	p := New(WithLogger(d.logger))
	p.AddSteps(
		NewResetStage1Step(),
		NewStage1Step(processor,
			WithForceCopy(cfg.ForceCopy),
			WithPercPos(percPos),
			WithStage1Logger(d.logger),
		),
		NewPrepareStage2Step(),
		NewStage2Step(processor, cfg.ROIEnginePath, cfg.NumWorkers, d.out),
		NewSummarizeStep(d.logger),
	)
	return p
}

// Run validates cfg and prepares every dataset in cfg.Datasets in order.
// The first failing dataset aborts the run; later datasets are not started.
// The returned summary is never nil, also when an error is returned.
func (d *Driver) Run(ctx context.Context, cfg *config.Config) (*model.RunSummary, error) {
	summary := model.NewRunSummary(cfg.ROIEnginePath, cfg.Datasets, cfg.NumWorkers)
	if err := cfg.Validate(); err != nil {
		summary.Finish(err, false)
		return summary, err
	}

	// Resolve every processor before the first mutation.
	processors := make([]stage.Processor, len(cfg.Datasets))
	for i, id := range cfg.Datasets {
		p, err := d.registry.Lookup(id)
		if err != nil {
			summary.Finish(err, false)
			return summary, err
		}
		processors[i] = p
	}

	fmt.Fprintf(d.out, "%s%s\n", EngineMessagePrefix, cfg.ROIEnginePath)
	d.startRun(ctx, summary)

	var runErr error
	for i, id := range cfg.Datasets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		percPos := cfg.PercPosFor(id)
		if cfg.PercPos != nil && percPos == nil {
			d.logger.Warn("perc-pos is not supported by this dataset and is ignored",
				"dataset", id,
				"perc_pos", *cfg.PercPos,
			)
		}

		fmt.Fprintf(d.out, "%s%s\n", ProcessingPrefix, id)

		run := model.NewDatasetRun(id, layout.For(cfg.RawDataDir, cfg.CleanDataDir, id))
		summary.Datasets = append(summary.Datasets, run)

		p := d.DatasetPipeline(processors[i], cfg, percPos)
		d.logger.Debug("dataset pipeline", "dataset", id, "steps", p.StepNames())
		err := p.Execute(ctx, run)
		run.Finish(err, isCancellation(err))
		d.recordDataset(ctx, summary.ID, run)
		if err != nil {
			runErr = fmt.Errorf("dataset %s: %w", id, err)
			break
		}

		d.logger.Info("dataset prepared",
			"dataset", id,
			"rows", run.LabelRows,
			"images", run.Images,
			"duration", run.Duration(),
		)
		fmt.Fprintln(d.out, DoneMessage)
		fmt.Fprint(d.out, Separator)
	}

	summary.Finish(runErr, isCancellation(runErr))
	d.finishRun(ctx, summary)
	return summary, runErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// History writes use a context detached from cancellation so that an
// interrupted run is still recorded as cancelled.

func (d *Driver) startRun(ctx context.Context, summary *model.RunSummary) {
	if d.recorder == nil {
		return
	}
	id, err := d.recorder.StartRun(context.WithoutCancel(ctx), summary)
	if err != nil {
		d.logger.Warn("failed to record run start", "error", err)
		return
	}
	summary.ID = id
}

func (d *Driver) recordDataset(ctx context.Context, runID int64, run *model.DatasetRun) {
	if d.recorder == nil || runID == 0 {
		return
	}
	if err := d.recorder.RecordDataset(context.WithoutCancel(ctx), runID, run); err != nil {
		d.logger.Warn("failed to record dataset", "dataset", run.Dataset, "error", err)
	}
}

func (d *Driver) finishRun(ctx context.Context, summary *model.RunSummary) {
	if d.recorder == nil || summary.ID == 0 {
		return
	}
	if err := d.recorder.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
		d.logger.Warn("failed to record run finish", "error", err)
	}
}
