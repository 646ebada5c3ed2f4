package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/doc-ocr/cmd/ocr-batch/ui"
)

var (
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ocr-batch",
	Short: "Batch OCR client - sends a folder of documents to the OCR API",
	Long: `ocr-batch walks an input folder, uploads every PDF and image to a running
OCR server with the chosen engine, and writes one JSON result per document
into the output folder.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
