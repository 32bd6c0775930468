// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/home"
	"github.com/pagelift/pagelift/internal/sandbox"
	"github.com/pagelift/pagelift/internal/tool"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	ConfigManager *config.Manager
	Home          *home.Dir
	Policy        sandbox.Policy
	OCRTool       *tool.OCRDocument
	Logger        *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// OCRToolFrom extracts the ocr_document tool from context.
func OCRToolFrom(ctx context.Context) *tool.OCRDocument {
	if s := ServicesFrom(ctx); s != nil {
		return s.OCRTool
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
