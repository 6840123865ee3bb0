package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/clsprep/internal/config"
	"github.com/nao1215/clsprep/internal/dataset"
)

// Processor kinds shown by the datasets command.
const (
	processorBuiltin      = "built-in"
	processorCommand      = "command"
	processorUnconfigured = "not configured"
	processorIncomplete   = "incomplete"
)

// NewDatasetsCmd creates the datasets command.
func NewDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the known datasets",
		Long: `List every dataset identifier clsprep knows, whether it is prepared by
default, whether it accepts --perc-pos, and how its stages are provided.

A dataset shown as "not configured" or "incomplete" is refused before the run
starts until both of its commands are set in the processors section of the
settings file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			writeDatasets(cmd.OutOrStdout(), settings)
			return nil
		},
	}
}

// writeDatasets prints one row per known dataset.
func writeDatasets(w io.Writer, settings *config.Settings) {
	fmt.Fprintf(w, "%-30s %-8s %-9s %s\n", "DATASET", "DEFAULT", "PERC-POS", "PROCESSOR")
	for _, id := range dataset.All() {
		fmt.Fprintf(w, "%-30s %-8s %-9s %s\n",
			id,
			yesNo(id.IsDefault()),
			yesNo(id.SupportsPercPos()),
			processorKind(settings, id),
		)
	}
}

func processorKind(settings *config.Settings, id dataset.ID) string {
	if id == dataset.Synthetic {
		return processorBuiltin
	}
	ps, ok := settings.Processor(id)
	switch {
	case !ok:
		return processorUnconfigured
	case ps.Configured():
		return processorCommand
	default:
		return processorIncomplete + " (" + ps.MissingStage() + " missing)"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
