package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/database"
	"github.com/nao1215/clsprep/internal/dataset"
	"github.com/nao1215/clsprep/internal/log"
	"github.com/nao1215/clsprep/internal/model"
	"github.com/nao1215/clsprep/internal/pipeline"
	"github.com/nao1215/clsprep/internal/report"
	"github.com/nao1215/clsprep/internal/stage"
)

// NewRootCmd creates the root command for clsprep.
// Running it without a subcommand prepares the selected datasets.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clsprep [flags] [datasets...]",
		Short: "Prepare mammography datasets for breast cancer classification",
		Long: `clsprep prepares raw mammography datasets for classification training.

For each selected dataset, one after the other:
  1. Stage 1 ingests the raw data into <raw-data-dir>/<dataset>/stage1_images
     and writes <clean-data-dir>/classification/<dataset>/cleaned_label.csv.
  2. Stage 2 decodes the images, crops them to the breast region with the
     YOLOX ROI engine and writes 8-bit PNG files to cleaned_images.

Previous outputs of a dataset are deleted before it is processed. The first
failing dataset stops the run.

Examples:
  # Prepare the default datasets
  clsprep

  # Prepare two datasets in this order
  clsprep --datasets vindr cmmd

  # Keep 20% positive cases in RSNA and use 8 Stage 2 workers
  clsprep --num-workers 8 --perc-pos 0.2 --datasets rsna-breast-cancer-detection

  # Try the pipeline on generated data
  clsprep --datasets synthetic --raw-data-dir /tmp/raw --clean-data-dir /tmp/clean

  # Write a Markdown summary of the run
  clsprep -m -o summary.md`,
		Version:       getVersion(),
		Args:          cobra.ArbitraryArgs,
		RunE:          runPrepareCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("settings", "c", "",
		"Settings file path (default: .clsprep.yaml in current directory or settings.yaml in the XDG config directory)")
	cmd.PersistentFlags().String("history-dir", "",
		"Directory of the run history database (default: XDG data directory)")

	// Pipeline flags
	cmd.Flags().Int("num-workers", config.DefaultNumWorkers,
		"Number of Stage 2 workers, also used as the number of chunks")
	cmd.Flags().String("roi-yolox-engine-path", "",
		"ROI detection engine (default: <model_final_selection_dir>/"+config.DefaultROIEngineFile+")")
	cmd.Flags().String("raw-data-dir", "",
		"Directory containing one subdirectory per raw dataset (default: raw_data_dir from settings)")
	cmd.Flags().String("clean-data-dir", "",
		"Directory receiving classification/<dataset> outputs (default: processed_data_dir from settings)")
	cmd.Flags().StringSlice("datasets", idStrings(dataset.Defaults()),
		"Datasets to prepare, in order")
	cmd.Flags().Float64("perc-pos", 0,
		"Fraction of positive cases to keep, 0 < v < 1 (only "+string(dataset.RSNA)+")")
	cmd.Flags().Bool("force-copy", false,
		"Copy raw images in Stage 1 instead of referencing them in place")

	// Report flags
	cmd.Flags().StringP("report", "o", "",
		"Write a run summary to the specified file (creates directories if needed)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Render the run summary as Markdown (printed to stdout when --report is not given)")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")

	// Add subcommands
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewDatasetsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// errReportIsDir is returned when --report names an existing directory.
var errReportIsDir = errors.New("report path is a directory")

// runPrepareCmd executes the preparation run.
func runPrepareCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling after the current step...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runPrepare(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadSettings resolves the settings file. An explicitly given file must
// exist; otherwise a missing file means DefaultSettings.
func loadSettings(cmd *cobra.Command) (string, *config.Settings, error) {
	settingsPath, err := cmd.Flags().GetString("settings")
	if err != nil {
		return "", nil, err
	}

	path := config.FindSettingsFile(settingsPath)
	switch {
	case path != "":
		s, err := config.LoadSettingsFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
		return path, s, nil
	case settingsPath != "":
		return "", nil, fmt.Errorf("%w: %s", config.ErrSettingsNotFound, settingsPath)
	default:
		return "", config.DefaultSettings(), nil
	}
}

// historyDir returns --history-dir or the XDG data directory.
func historyDir(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("history-dir")
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = config.XDGDataDir()
	}
	return dir, nil
}

// buildConfig creates a Config from settings and cobra command flags.
// Flags win over the settings file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var (
		settings *config.Settings
		err      error
	)
	cfg.SettingsFilePath, settings, err = loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	cfg.ApplySettings(settings)

	flags := cmd.Flags()

	cfg.NumWorkers, err = flags.GetInt("num-workers")
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]*string{
		"roi-yolox-engine-path": &cfg.ROIEnginePath,
		"raw-data-dir":          &cfg.RawDataDir,
		"clean-data-dir":        &cfg.CleanDataDir,
	} {
		v, err := flags.GetString(name)
		if err != nil {
			return nil, err
		}
		if v != "" {
			*dst = v
		}
	}

	// Positional arguments continue --datasets, so "--datasets a b" selects both.
	var names []string
	if flags.Changed("datasets") {
		if names, err = flags.GetStringSlice("datasets"); err != nil {
			return nil, err
		}
	}
	names = append(names, args...)
	switch {
	case len(names) > 0:
		if cfg.Datasets, err = dataset.ParseAll(names); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	case flags.Changed("datasets"):
		// --datasets "" selects nothing; it never falls back to the defaults.
		return nil, fmt.Errorf("configuration error: %w", config.ErrNoDatasets)
	}

	if flags.Changed("perc-pos") {
		v, err := flags.GetFloat64("perc-pos")
		if err != nil {
			return nil, err
		}
		cfg.PercPos = &v
	}

	if cfg.ForceCopy, err = flags.GetBool("force-copy"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory
	if cfg.HistoryDir, err = historyDir(cmd); err != nil {
		return nil, err
	}

	return cfg, nil
}

// runPrepare runs the driver and writes the summary report.
// The report is written also when the run fails.
func runPrepare(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting run",
		"datasets", cfg.Datasets,
		"numWorkers", cfg.NumWorkers,
		"settings", cfg.SettingsFilePath,
		"saveHistory", cfg.SaveHistory,
	)

	registry, err := stage.FromSettings(cfg.Settings, logger, stage.WithCommandOutput(stdout, stderr))
	if err != nil {
		return fmt.Errorf("failed to build processor registry: %w", err)
	}

	opts := []pipeline.DriverOption{
		pipeline.WithOutput(stdout),
		pipeline.WithDriverLogger(logger),
	}
	if cfg.SaveHistory {
		db, err := database.Open(cfg.HistoryDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("run history disabled", "dir", cfg.HistoryDir, "error", err)
		} else {
			defer db.Close()
			opts = append(opts, pipeline.WithRecorder(db))
		}
	}

	summary, runErr := pipeline.NewDriver(registry, opts...).Run(ctx, cfg)

	if err := outputReport(stdout, cfg, summary); err != nil {
		if runErr != nil {
			logger.Error("failed to write report", "error", err)
			return runErr
		}
		return err
	}
	return runErr
}

// outputReport writes the summary to --report, or to stdout with --markdown.
// Without either flag nothing is written.
func outputReport(stdout io.Writer, cfg *config.Config, summary *model.RunSummary) error {
	if cfg.ReportFile == "" && !cfg.MarkdownReport {
		return nil
	}

	out := stdout
	if cfg.ReportFile != "" {
		if info, err := os.Stat(cfg.ReportFile); err == nil && info.IsDir() {
			return fmt.Errorf("%w: %s", errReportIsDir, cfg.ReportFile)
		}
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.ReportFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	if cfg.MarkdownReport {
		w = report.NewMarkdownWriter(out)
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	if _, err := w.Write(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func idStrings(ids []dataset.ID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return names
}
