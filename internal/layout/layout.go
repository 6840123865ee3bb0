// Package layout derives the on-disk locations used while preparing a dataset.
package layout

import (
	"path/filepath"

	"github.com/nao1215/clsprep/internal/dataset"
)

// Directory and file names of the filesystem contract.
const (
	Stage1ImagesDirName  = "stage1_images"
	ClassificationDir    = "classification"
	CleanedLabelFileName = "cleaned_label.csv"
	CleanedImagesDirName = "cleaned_images"
)

// Paths holds every location touched while preparing one dataset.
type Paths struct {
	// RawRoot is <raw-data-dir>/<dataset>.
	RawRoot string `json:"rawRoot"`

	// Stage1ImagesDir is the requested Stage 1 output, <RawRoot>/stage1_images.
	Stage1ImagesDir string `json:"stage1ImagesDir"`

	// CleanedRoot is <clean-data-dir>/classification/<dataset>.
	CleanedRoot string `json:"cleanedRoot"`

	// LabelPath is <CleanedRoot>/cleaned_label.csv.
	LabelPath string `json:"labelPath"`

	// CleanedImagesDir is <CleanedRoot>/cleaned_images.
	CleanedImagesDir string `json:"cleanedImagesDir"`
}

// For derives the paths of id under the given raw and cleaned roots.
func For(rawDataDir, cleanDataDir string, id dataset.ID) Paths {
	rawRoot := filepath.Join(rawDataDir, string(id))
	cleanedRoot := filepath.Join(cleanDataDir, ClassificationDir, string(id))
	return Paths{
		RawRoot:          rawRoot,
		Stage1ImagesDir:  filepath.Join(rawRoot, Stage1ImagesDirName),
		CleanedRoot:      cleanedRoot,
		LabelPath:        filepath.Join(cleanedRoot, CleanedLabelFileName),
		CleanedImagesDir: filepath.Join(cleanedRoot, CleanedImagesDirName),
	}
}
