package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and by the settings loader.
//
// Validation runs once after flag parsing and before any directory is
// touched, so a bad flag never leaves a half-reset output tree behind.
var (
	// ErrInvalidNumWorkers is returned when the worker count is not positive.
	// Stage 2 splits its rows into exactly this many chunks.
	ErrInvalidNumWorkers = errors.New("invalid number of workers: must be positive")

	// ErrInvalidPercPos is returned when --perc-pos lies outside (0, 1).
	ErrInvalidPercPos = errors.New("perc-pos must be between 0 and 1 exclusive")

	// ErrNoDatasets is returned when the resolved dataset list is empty.
	ErrNoDatasets = errors.New("no datasets selected")

	// ErrDuplicateDataset is returned when a dataset is requested twice.
	// The second run would destroy the outputs of the first.
	ErrDuplicateDataset = errors.New("dataset requested more than once")

	// ErrEmptyDataDir is returned when the raw or cleaned root is empty.
	ErrEmptyDataDir = errors.New("data directory must not be empty")

	// ErrEmptyEnginePath is returned when no ROI engine path could be resolved.
	ErrEmptyEnginePath = errors.New("ROI engine path must not be empty")
)
