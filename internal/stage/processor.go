// Package stage defines the per-dataset Stage 1 and Stage 2 processors and the
// registry that binds each dataset identifier to exactly one of them.
//
// Stage 1 ingests a raw dataset: it writes the cleaned label table and an
// intermediate image directory. Stage 2 decodes the intermediate images, crops
// them to the region of interest and writes 8-bit PNG files.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/clsprep/internal/dataset"
)

var (
	// ErrMissingProcessor is returned when a dataset has no bound processor.
	ErrMissingProcessor = errors.New("no processor registered for dataset")

	// ErrNotConfigured is returned for datasets bound to Unconfigured.
	ErrNotConfigured = errors.New("no stage commands configured for dataset")
)

// Stage1Request holds the inputs of Stage 1.
type Stage1Request struct {
	// RawRoot is the raw dataset directory.
	RawRoot string

	// ImagesDir is the requested intermediate image directory.
	// It does not exist when Stage 1 starts.
	ImagesDir string

	// LabelPath is where the label table must be written.
	LabelPath string

	// ForceCopy asks for copies of the raw images instead of references.
	ForceCopy bool

	// PercPos is the optional positive-case fraction.
	PercPos *float64
}

// Stage2Request holds the inputs of Stage 2.
type Stage2Request struct {
	// EnginePath is the ROI detection engine artifact.
	EnginePath string

	// ImagesDir is the directory Stage 1 returned, not necessarily the requested one.
	ImagesDir string

	// LabelPath is the label table written by Stage 1. Stage 2 only reads it.
	LabelPath string

	// OutputDir is the empty cleaned image directory.
	OutputDir string

	// Jobs is the number of concurrent workers.
	Jobs int

	// Chunks is the number of static partitions of the label rows.
	Chunks int
}

// Processor prepares one dataset.
type Processor interface {
	// Stage1 ingests the raw dataset and returns the intermediate image
	// directory it actually produced. The returned path is authoritative.
	Stage1(ctx context.Context, req Stage1Request) (string, error)

	// Stage2 converts the intermediate images into normalized 8-bit images.
	Stage2(ctx context.Context, req Stage2Request) error
}

// Unconfigured is bound to datasets that have no processor available.
// Registry.Lookup refuses it, and both stages fail with ErrNotConfigured.
type Unconfigured struct {
	Dataset dataset.ID

	// Missing names the empty command of a half-configured entry,
	// "stage1" or "stage2". Empty means the entry is absent.
	Missing string
}

// Err describes why the dataset cannot be prepared.
func (u Unconfigured) Err() error {
	if u.Missing != "" {
		return fmt.Errorf("%w: %s (processors.%s.%s is empty)", ErrNotConfigured, u.Dataset, u.Dataset, u.Missing)
	}
	return fmt.Errorf("%w: %s (add processors.%s to the settings file)", ErrNotConfigured, u.Dataset, u.Dataset)
}

// Stage1 implements Processor.
func (u Unconfigured) Stage1(context.Context, Stage1Request) (string, error) {
	return "", u.Err()
}

// Stage2 implements Processor.
func (u Unconfigured) Stage2(context.Context, Stage2Request) error {
	return u.Err()
}
