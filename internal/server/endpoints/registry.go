package endpoints

import "github.com/pagelift/pagelift/internal/api"

// All returns every endpoint the server exposes.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&ToolsEndpoint{},
		&OCREndpoint{},
	}
}
