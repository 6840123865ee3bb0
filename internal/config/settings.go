package config

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/nao1215/clsprep/internal/dataset"
)

// DefaultSyntheticCases is the number of synthetic patients generated when
// the settings file does not say otherwise.
const DefaultSyntheticCases = 16

// ProcessorSettings configures the external commands of one dataset.
type ProcessorSettings struct {
	// Stage1 is the command line that ingests the raw dataset and writes the label table.
	// ${VAR} placeholders are expanded per argument.
	Stage1 string `yaml:"stage1,omitempty"`

	// Stage2 is the command line that decodes, crops and converts the Stage 1 images.
	Stage2 string `yaml:"stage2,omitempty"`

	// Dir is the working directory of both commands. Empty means the current directory.
	Dir string `yaml:"dir,omitempty"`

	// Env holds extra environment variables for both commands.
	Env map[string]string `yaml:"env,omitempty"`
}

// Configured reports whether both stage commands are set.
func (p ProcessorSettings) Configured() bool {
	return p.MissingStage() == ""
}

// MissingStage names the first empty stage command, "stage1" or "stage2",
// or returns "" when both are set.
func (p ProcessorSettings) MissingStage() string {
	switch {
	case p.Stage1 == "":
		return "stage1"
	case p.Stage2 == "":
		return "stage2"
	default:
		return ""
	}
}

// SyntheticSettings configures the built-in synthetic dataset.
type SyntheticSettings struct {
	// Cases is the number of synthetic patients. Each patient has two images.
	Cases int `yaml:"cases,omitempty"`

	// Width and Height are the synthetic image dimensions in pixels.
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// Settings represents the structure of the clsprep settings file.
type Settings struct {
	// RawDataDir is the default --raw-data-dir.
	RawDataDir string `yaml:"raw_data_dir,omitempty"`

	// ProcessedDataDir is the default --clean-data-dir.
	ProcessedDataDir string `yaml:"processed_data_dir,omitempty"`

	// ModelFinalSelectionDir holds the selected model artifacts, including the ROI engine.
	ModelFinalSelectionDir string `yaml:"model_final_selection_dir,omitempty"`

	// Processors maps dataset identifiers to their external stage commands.
	Processors map[string]ProcessorSettings `yaml:"processors,omitempty"`

	// Synthetic configures the built-in synthetic dataset.
	Synthetic SyntheticSettings `yaml:"synthetic,omitempty"`
}

// DefaultSettings returns settings rooted in the XDG data directory.
func DefaultSettings() *Settings {
	base := filepath.Join(xdg.DataHome, AppName)
	return &Settings{
		RawDataDir:             filepath.Join(base, "raw"),
		ProcessedDataDir:       filepath.Join(base, "processed"),
		ModelFinalSelectionDir: filepath.Join(base, "models"),
		Processors:             make(map[string]ProcessorSettings),
		Synthetic: SyntheticSettings{
			Cases:  DefaultSyntheticCases,
			Width:  64,
			Height: 80,
		},
	}
}

// Processor returns the external command settings of id.
func (s *Settings) Processor(id dataset.ID) (ProcessorSettings, bool) {
	p, ok := s.Processors[string(id)]
	return p, ok
}

// fillDefaults replaces empty fields with the values of d.
func (s *Settings) fillDefaults(d *Settings) {
	if s.RawDataDir == "" {
		s.RawDataDir = d.RawDataDir
	}
	if s.ProcessedDataDir == "" {
		s.ProcessedDataDir = d.ProcessedDataDir
	}
	if s.ModelFinalSelectionDir == "" {
		s.ModelFinalSelectionDir = d.ModelFinalSelectionDir
	}
	if s.Processors == nil {
		s.Processors = make(map[string]ProcessorSettings)
	}
	if s.Synthetic.Cases <= 0 {
		s.Synthetic.Cases = d.Synthetic.Cases
	}
	if s.Synthetic.Width <= 0 {
		s.Synthetic.Width = d.Synthetic.Width
	}
	if s.Synthetic.Height <= 0 {
		s.Synthetic.Height = d.Synthetic.Height
	}
}
