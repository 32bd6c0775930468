package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/sandbox"
	"github.com/pagelift/pagelift/internal/tool"
)

var (
	ocrInputPath     string
	ocrOutputDir     string
	ocrIncludeImages bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Run OCR on a local file without a server",
	Long: `Run the OCR pipeline directly against the Mistral API.

The input path and output directory must both be absolute. The output
directory must sit inside the configured sandbox (sandbox.allowed_dir,
or ~/.pagelift/outputs by default).

Examples:
  pagelift ocr --input /data/scan.pdf --out ~/.pagelift/outputs
  pagelift ocr --input /data/page.png --out ~/.pagelift/outputs --images`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, mgr, err := loadEnvironment()
		if err != nil {
			return err
		}
		appCfg := mgr.Get()

		allowedDir := appCfg.Sandbox.AllowedDir
		if allowedDir == "" {
			allowedDir = h.OutputsPath()
		}
		policy, err := sandbox.NewPolicy(allowedDir)
		if err != nil {
			return err
		}

		client := mistral.NewClient(mistral.Config{
			APIKey:     appCfg.ResolvedAPIKey(),
			BaseURL:    appCfg.Mistral.BaseURL,
			Timeout:    time.Duration(appCfg.Mistral.TimeoutSeconds) * time.Second,
			MaxRetries: appCfg.Mistral.MaxRetries,
		})

		ocrTool, err := tool.New(policy, ocr.NewOrchestrator(client, logger), logger)
		if err != nil {
			return err
		}

		result, err := ocrTool.Run(cmd.Context(), tool.Args{
			InputPath:          ocrInputPath,
			OutputDir:          ocrOutputDir,
			IncludeImageBase64: ocrIncludeImages,
		})
		if err != nil {
			return err
		}
		return api.Output(result)
	},
}

func init() {
	ocrCmd.Flags().StringVar(&ocrInputPath, "input", "", "absolute path to the input file")
	ocrCmd.Flags().StringVar(&ocrOutputDir, "out", "", "absolute path to the output directory")
	ocrCmd.Flags().BoolVar(&ocrIncludeImages, "images", false, "save embedded images from the OCR result")
	_ = ocrCmd.MarkFlagRequired("input")
	_ = ocrCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(ocrCmd)
}
