package config

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"

	"github.com/nao1215/clsprep/internal/dataset"
)

// Default configuration values.
const (
	// DefaultNumWorkers is the Stage 2 parallelism when --num-workers is not given.
	// It is used both as the number of concurrent workers and the number of chunks.
	DefaultNumWorkers = 4

	// DefaultROIEngineFile is the file name of the YOLOX ROI detection engine
	// inside the model selection directory.
	DefaultROIEngineFile = "yolox_nano_416_roi_trt.pth"

	// AppName is the application name used for XDG directory paths.
	AppName = "clsprep"
)

// Config holds all options of one preparation run.
// It is populated once from CLI flags and the settings file, validated, and
// then passed to the driver. Nothing mutates it afterwards.
type Config struct {
	// NumWorkers is passed to Stage 2 as both job count and chunk count.
	NumWorkers int

	// ROIEnginePath is the serialized YOLOX ROI detection engine handed to Stage 2.
	ROIEnginePath string

	// RawDataDir contains one subdirectory per dataset identifier.
	RawDataDir string

	// CleanDataDir receives classification/<dataset>/ output trees.
	CleanDataDir string

	// Datasets are processed sequentially in this order.
	Datasets []dataset.ID

	// PercPos is the optional positive-case fraction. Nil means "not given".
	// Only datasets whose SupportsPercPos is true receive it.
	PercPos *float64

	// ForceCopy asks Stage 1 to copy raw images instead of referencing them in place.
	ForceCopy bool

	// Verbose enables debug logging.
	Verbose bool

	// SettingsFilePath is the settings file given with --settings, if any.
	SettingsFilePath string

	// Settings holds the resolved settings file, or the defaults when none was found.
	Settings *Settings

	// HistoryDir is where the run history database lives.
	HistoryDir string

	// SaveHistory records the run in the history database.
	SaveHistory bool

	// ReportFile receives the run summary after the run. Empty means no file.
	ReportFile string

	// MarkdownReport renders the run summary as Markdown instead of plain text.
	MarkdownReport bool
}

// NewConfig creates a Config with default values.
// RawDataDir, CleanDataDir and ROIEnginePath are filled from DefaultSettings;
// call ApplySettings to replace them with values from a settings file.
func NewConfig() *Config {
	cfg := &Config{
		NumWorkers:  DefaultNumWorkers,
		Datasets:    dataset.Defaults(),
		SaveHistory: true,
		HistoryDir:  XDGDataDir(),
	}
	cfg.ApplySettings(DefaultSettings())
	return cfg
}

// ApplySettings takes the data directories and the default ROI engine
// location from s. Flag values are applied after this call and win.
func (c *Config) ApplySettings(s *Settings) {
	c.Settings = s
	c.RawDataDir = s.RawDataDir
	c.CleanDataDir = s.ProcessedDataDir
	c.ROIEnginePath = DefaultROIEnginePath(s.ModelFinalSelectionDir)
}

// DefaultROIEnginePath returns the well-known engine location under modelDir.
func DefaultROIEnginePath(modelDir string) string {
	return filepath.Join(modelDir, DefaultROIEngineFile)
}

// PercPosFor returns the positive-case fraction to hand to Stage 1 of id.
// Datasets that do not support the filter get nil.
func (c *Config) PercPosFor(id dataset.ID) *float64 {
	if c.PercPos == nil || !id.SupportsPercPos() {
		return nil
	}
	v := *c.PercPos
	return &v
}

// XDGDataDir returns the XDG data directory for clsprep.
// On Linux: ~/.local/share/clsprep
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for clsprep.
// On Linux: ~/.config/clsprep
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.NumWorkers <= 0 {
		return ErrInvalidNumWorkers
	}

	if c.PercPos != nil {
		if v := *c.PercPos; !(v > 0 && v < 1) {
			return fmt.Errorf("%w: got %v", ErrInvalidPercPos, v)
		}
	}

	if len(c.Datasets) == 0 {
		return ErrNoDatasets
	}
	seen := make([]dataset.ID, 0, len(c.Datasets))
	for _, id := range c.Datasets {
		if slices.Contains(seen, id) {
			return fmt.Errorf("%w: %s", ErrDuplicateDataset, id)
		}
		seen = append(seen, id)
	}

	if c.RawDataDir == "" || c.CleanDataDir == "" {
		return ErrEmptyDataDir
	}

	if c.ROIEnginePath == "" {
		return ErrEmptyEnginePath
	}

	return nil
}
