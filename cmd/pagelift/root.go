package main

import (
	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pagelift",
	Short: "Sandboxed OCR for local documents via the Mistral OCR API",
	Long: `Pagelift runs OCR on local PDF and image files and writes the results
into a sandboxed output directory.

The pipeline:
  - Validates input and output paths against a configured sandbox
  - Uploads the file to Mistral and processes it with the OCR model
  - Returns extracted markdown per page
  - Optionally saves embedded images alongside the markdown`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagelift/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pagelift home directory (default: ~/.pagelift)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
