package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/clsprep/internal/database"
	"github.com/nao1215/clsprep/internal/model"
	"github.com/nao1215/clsprep/internal/report"
)

// defaultHistoryLimit is the number of runs shown by default.
const defaultHistoryLimit = 10

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent preparation runs",
		Long: `History lists the most recent preparation runs recorded in the history
database, newest first, with the outcome of every dataset.

Examples:
  # Show the last 10 runs
  clsprep history

  # Show every run as Markdown
  clsprep history -n 0 --markdown

  # Show the details of one run
  clsprep history --run 12`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to show (0 shows all)")
	cmd.Flags().Int64("run", 0,
		"Show the full summary of the run with this id")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.MarkFlagsMutuallyExclusive("markdown", "json")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := flags.GetInt64("run")
	if err != nil {
		return err
	}
	asMarkdown, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	dir, err := historyDir(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var (
		historyWriter report.HistoryWriter
		runWriter     report.Writer
	)
	switch {
	case asJSON:
		w := report.NewJSONWriter(out, report.WithPrettyPrint())
		historyWriter, runWriter = w, w
	case asMarkdown:
		w := report.NewMarkdownWriter(out)
		historyWriter, runWriter = w, w
	default:
		w := report.NewSimpleWriter(out, report.WithVerbose(getVerboseFlag(cmd)))
		historyWriter, runWriter = w, w
	}

	// Reading history never creates the database.
	if _, err := os.Stat(filepath.Join(dir, database.FileName)); os.IsNotExist(err) {
		if runID != 0 {
			return fmt.Errorf("%w: %d", database.ErrRunNotFound, runID)
		}
		_, err := historyWriter.WriteHistory([]*model.RunSummary{})
		return err
	}

	db, err := database.Open(dir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	if runID != 0 {
		summary, err := db.GetRun(cmd.Context(), runID)
		if err != nil {
			return err
		}
		_, err = runWriter.Write(summary)
		return err
	}

	runs, err := db.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	_, err = historyWriter.WriteHistory(runs)
	return err
}
