package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/clsprep/internal/fsutil"
	"github.com/nao1215/clsprep/internal/labels"
	"github.com/nao1215/clsprep/internal/model"
	"github.com/nao1215/clsprep/internal/stage"
)

// Step names as recorded in model.DatasetRun.PerformedSteps.
const (
	StepResetStage1   = "reset_stage1"
	StepStage1        = "stage1"
	StepPrepareStage2 = "prepare_stage2"
	StepStage2        = "stage2"
	StepSummarize     = "summarize"
)

// ConvertingMessage is printed right before Stage 2 starts.
const ConvertingMessage = "Converting to 8-bits png images.."

// ResetStage1Step clears the outputs of any previous run of the dataset.
// The requested Stage 1 image directory is removed (a link is unlinked, its
// target kept) and the cleaned root is recreated empty.
type ResetStage1Step struct{}

// NewResetStage1Step creates a new ResetStage1Step.
func NewResetStage1Step() *ResetStage1Step {
	return &ResetStage1Step{}
}

// Name returns the step name.
func (s *ResetStage1Step) Name() string {
	return StepResetStage1
}

// Do removes the previous Stage 1 output and resets the cleaned root.
func (s *ResetStage1Step) Do(_ context.Context, run *model.DatasetRun) error {
	if err := fsutil.RemoveTree(run.Paths.Stage1ImagesDir); err != nil {
		return fmt.Errorf("failed to clear stage1 images: %w", err)
	}
	if err := fsutil.ResetDir(run.Paths.CleanedRoot); err != nil {
		return fmt.Errorf("failed to reset cleaned root: %w", err)
	}
	return nil
}

// Stage1Step runs Stage 1 of the dataset's processor.
type Stage1Step struct {
	processor stage.Processor
	forceCopy bool
	percPos   *float64
	logger    *slog.Logger
}

// Stage1Option configures a Stage1Step.
type Stage1Option func(*Stage1Step)

// WithForceCopy asks Stage 1 to copy raw images instead of referencing them.
func WithForceCopy(force bool) Stage1Option {
	return func(s *Stage1Step) {
		s.forceCopy = force
	}
}

// WithPercPos sets the positive-case fraction handed to Stage 1.
// nil means no filtering.
func WithPercPos(percPos *float64) Stage1Option {
	return func(s *Stage1Step) {
		s.percPos = percPos
	}
}

// WithStage1Logger sets the logger for the step.
func WithStage1Logger(logger *slog.Logger) Stage1Option {
	return func(s *Stage1Step) {
		s.logger = logger
	}
}

// NewStage1Step creates a Stage1Step bound to processor.
func NewStage1Step(processor stage.Processor, opts ...Stage1Option) *Stage1Step {
	s := &Stage1Step{processor: processor}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Name returns the step name.
func (s *Stage1Step) Name() string {
	return StepStage1
}

// Do runs Stage 1 and records the image directory it returned.
// An empty return value means the requested directory was used.
func (s *Stage1Step) Do(ctx context.Context, run *model.DatasetRun) error {
	run.PercPos = s.percPos

	dir, err := s.processor.Stage1(ctx, stage.Stage1Request{
		RawRoot:   run.Paths.RawRoot,
		ImagesDir: run.Paths.Stage1ImagesDir,
		LabelPath: run.Paths.LabelPath,
		ForceCopy: s.forceCopy,
		PercPos:   s.percPos,
	})
	if err != nil {
		return fmt.Errorf("stage1 failed: %w", err)
	}
	if dir == "" {
		dir = run.Paths.Stage1ImagesDir
	}
	if dir != run.Paths.Stage1ImagesDir {
		s.logger.Debug("stage1 returned a different image directory",
			"dataset", run.Dataset,
			"requested", run.Paths.Stage1ImagesDir,
			"returned", dir,
		)
	}
	run.Stage1ImagesDir = dir
	return nil
}

// PrepareStage2Step checks that Stage 1 produced its label table and
// recreates the cleaned image directory empty.
type PrepareStage2Step struct{}

// NewPrepareStage2Step creates a new PrepareStage2Step.
func NewPrepareStage2Step() *PrepareStage2Step {
	return &PrepareStage2Step{}
}

// Name returns the step name.
func (s *PrepareStage2Step) Name() string {
	return StepPrepareStage2
}

// Do fails with ErrLabelTableMissing before touching the cleaned image
// directory, so a failed precondition leaves the tree as Stage 1 left it.
func (s *PrepareStage2Step) Do(_ context.Context, run *model.DatasetRun) error {
	if !fsutil.IsRegularFile(run.Paths.LabelPath) {
		return fmt.Errorf("%w: %s", ErrLabelTableMissing, run.Paths.LabelPath)
	}
	if err := fsutil.ResetDir(run.Paths.CleanedImagesDir); err != nil {
		return fmt.Errorf("failed to reset cleaned images: %w", err)
	}
	return nil
}

// Stage2Step runs Stage 2 of the dataset's processor.
type Stage2Step struct {
	processor  stage.Processor
	enginePath string
	numWorkers int
	out        io.Writer
}

// NewStage2Step creates a Stage2Step. numWorkers is used both as the
// number of jobs and the number of chunks. Progress goes to out.
func NewStage2Step(processor stage.Processor, enginePath string, numWorkers int, out io.Writer) *Stage2Step {
	if out == nil {
		out = io.Discard
	}
	return &Stage2Step{
		processor:  processor,
		enginePath: enginePath,
		numWorkers: numWorkers,
		out:        out,
	}
}

// Name returns the step name.
func (s *Stage2Step) Name() string {
	return StepStage2
}

// Do runs Stage 2 on the directory Stage 1 returned.
func (s *Stage2Step) Do(ctx context.Context, run *model.DatasetRun) error {
	if run.Stage1ImagesDir == "" {
		return ErrStage1NotRun
	}

	fmt.Fprintln(s.out, ConvertingMessage)

	err := s.processor.Stage2(ctx, stage.Stage2Request{
		EnginePath: s.enginePath,
		ImagesDir:  run.Stage1ImagesDir,
		LabelPath:  run.Paths.LabelPath,
		OutputDir:  run.Paths.CleanedImagesDir,
		Jobs:       s.numWorkers,
		Chunks:     s.numWorkers,
	})
	if err != nil {
		return fmt.Errorf("stage2 failed: %w", err)
	}
	return nil
}

// SummarizeStep counts the label rows and cleaned images of the dataset.
type SummarizeStep struct {
	logger *slog.Logger
}

// NewSummarizeStep creates a new SummarizeStep.
func NewSummarizeStep(logger *slog.Logger) *SummarizeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummarizeStep{logger: logger}
}

// Name returns the step name.
func (s *SummarizeStep) Name() string {
	return StepSummarize
}

// Do fills run.LabelRows and run.Images.
func (s *SummarizeStep) Do(_ context.Context, run *model.DatasetRun) error {
	rows, err := labels.CountRows(run.Paths.LabelPath)
	if err != nil {
		return fmt.Errorf("failed to count label rows: %w", err)
	}
	images, err := fsutil.CountFiles(run.Paths.CleanedImagesDir)
	if err != nil {
		return fmt.Errorf("failed to count cleaned images: %w", err)
	}
	run.LabelRows = rows
	run.Images = images

	if rows != images {
		s.logger.Warn("cleaned image count differs from label rows",
			"dataset", run.Dataset,
			"rows", rows,
			"images", images,
		)
	}
	return nil
}
