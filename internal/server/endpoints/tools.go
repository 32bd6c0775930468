package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/svcctx"
	"github.com/pagelift/pagelift/internal/tool"
)

// ToolsResponse lists the tools exposed to calling agents.
type ToolsResponse struct {
	Tools []tool.Definition `json:"tools"`
}

// ToolsEndpoint handles GET /v1/tools.
type ToolsEndpoint struct{}

func (e *ToolsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/tools", e.handler
}

func (e *ToolsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ocrTool := svcctx.OCRToolFrom(r.Context())
	if ocrTool == nil {
		writeError(w, http.StatusServiceUnavailable, "tool not initialized")
		return
	}
	writeJSON(w, http.StatusOK, ToolsResponse{Tools: []tool.Definition{ocrTool.Definition()}})
}

func (e *ToolsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools exposed by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ToolsResponse
			if err := client.Get(cmd.Context(), "/v1/tools", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
