package pipeline

import "errors"

var (
	// ErrLabelTableMissing is returned when Stage 2 is about to run and the
	// label table does not exist. It means Stage 1 did not complete.
	ErrLabelTableMissing = errors.New("label table missing: stage1 did not complete")

	// ErrStage1NotRun is returned when Stage 2 has no Stage 1 image directory.
	ErrStage1NotRun = errors.New("stage1 image directory unknown: stage1 did not run")
)
