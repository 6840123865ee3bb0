package model

import (
	"time"

	"github.com/nao1215/clsprep/internal/dataset"
	"github.com/nao1215/clsprep/internal/layout"
)

// Status is the state of a dataset run or a whole run.
type Status string

// Run states.
const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// DatasetRun records the preparation of one dataset.
type DatasetRun struct {
	// Dataset is the prepared dataset.
	Dataset dataset.ID `json:"dataset"`

	// Paths are the derived input and output locations.
	Paths layout.Paths `json:"paths"`

	// Stage1ImagesDir is the directory Stage 1 returned. Stage 2 reads from
	// here, which may differ from Paths.Stage1ImagesDir.
	Stage1ImagesDir string `json:"stage1ImagesDir,omitempty"`

	// PercPos is the positive-case fraction Stage 1 received, if any.
	PercPos *float64 `json:"percPos,omitempty"`

	// Status is the outcome.
	Status Status `json:"status"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`

	// PerformedSteps lists the steps that completed, in order.
	PerformedSteps []string `json:"performedSteps"`

	// LabelRows is the number of rows in the cleaned label table.
	LabelRows int `json:"labelRows"`

	// Images is the number of files in the cleaned image directory.
	Images int `json:"images"`

	// Error contains the error that stopped the run, if any.
	// Not serialized directly; ErrorMessage carries the text.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error.
	ErrorMessage string `json:"error,omitempty"`
}

// NewDatasetRun creates a pending DatasetRun.
func NewDatasetRun(id dataset.ID, paths layout.Paths) *DatasetRun {
	return &DatasetRun{
		Dataset:        id,
		Paths:          paths,
		Status:         StatusPending,
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
	}
}

// Finish stamps the finish time and derives the status from err.
func (r *DatasetRun) Finish(err error, cancelled bool) {
	r.FinishedAt = time.Now()
	switch {
	case err == nil:
		r.Status = StatusSucceeded
	case cancelled:
		r.Status = StatusCancelled
	default:
		r.Status = StatusFailed
	}
	if err != nil {
		r.Error = err
		r.ErrorMessage = err.Error()
	}
}

// Duration returns how long the run took, or zero while it is unfinished.
func (r *DatasetRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunSummary records one invocation of the driver.
type RunSummary struct {
	// ID is assigned by the history database. Zero when history is disabled.
	ID int64 `json:"id,omitempty"`

	// EnginePath is the ROI engine handed to every Stage 2.
	EnginePath string `json:"enginePath"`

	// Requested lists the datasets in processing order.
	Requested []dataset.ID `json:"requested"`

	// NumWorkers is the Stage 2 parallelism.
	NumWorkers int `json:"numWorkers"`

	// Datasets are the runs that started, in order. Datasets after a failure
	// never start and are absent.
	Datasets []*DatasetRun `json:"datasets"`

	// Status is the overall outcome.
	Status Status `json:"status"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`

	// ErrorMessage is the error that aborted the run.
	ErrorMessage string `json:"error,omitempty"`
}

// NewRunSummary creates a pending RunSummary.
func NewRunSummary(enginePath string, requested []dataset.ID, numWorkers int) *RunSummary {
	return &RunSummary{
		EnginePath: enginePath,
		Requested:  append([]dataset.ID(nil), requested...),
		NumWorkers: numWorkers,
		Datasets:   make([]*DatasetRun, 0, len(requested)),
		Status:     StatusPending,
		StartedAt:  time.Now(),
	}
}

// Finish stamps the finish time and derives the status from err.
func (s *RunSummary) Finish(err error, cancelled bool) {
	s.FinishedAt = time.Now()
	switch {
	case err == nil:
		s.Status = StatusSucceeded
	case cancelled:
		s.Status = StatusCancelled
	default:
		s.Status = StatusFailed
	}
	if err != nil {
		s.ErrorMessage = err.Error()
	}
}

// Skipped returns the requested datasets that never started.
func (s *RunSummary) Skipped() []dataset.ID {
	if len(s.Datasets) >= len(s.Requested) {
		return nil
	}
	return append([]dataset.ID(nil), s.Requested[len(s.Datasets):]...)
}

// TotalImages returns the number of cleaned images across all datasets.
func (s *RunSummary) TotalImages() int {
	n := 0
	for _, d := range s.Datasets {
		n += d.Images
	}
	return n
}

// TotalLabelRows returns the number of label rows across all datasets.
func (s *RunSummary) TotalLabelRows() int {
	n := 0
	for _, d := range s.Datasets {
		n += d.LabelRows
	}
	return n
}
