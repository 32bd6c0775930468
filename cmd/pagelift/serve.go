package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/home"
	"github.com/pagelift/pagelift/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pagelift server",
	Long: `Start the pagelift HTTP server.

The server exposes the ocr_document tool over HTTP:
  - /health   - Basic server health check
  - /ready    - Readiness check (includes sandbox root status)
  - /v1/tools - List exposed tools with their argument schemas
  - /v1/ocr   - Run OCR on a local file

Examples:
  pagelift serve                    # Start on default port 8080
  pagelift serve --port 3000        # Start on custom port
  pagelift serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, mgr, err := loadEnvironment()
		if err != nil {
			return err
		}

		// Pick up config edits without a restart
		mgr.WatchConfig()

		host := serveHost
		port := servePort
		appCfg := mgr.Get()
		if !cmd.Flags().Changed("host") && appCfg.Server.Host != "" {
			host = appCfg.Server.Host
		}
		if !cmd.Flags().Changed("port") && appCfg.Server.Port != "" {
			port = appCfg.Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// loadEnvironment resolves the home directory and configuration shared by the
// serve and ocr commands.
func loadEnvironment() (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, err
	}

	resolved := cfgFile
	if resolved == "" && h.ConfigExists() {
		resolved = h.ConfigPath()
	}
	mgr, err := config.NewManager(resolved)
	if err != nil {
		return nil, nil, err
	}
	return h, mgr, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
