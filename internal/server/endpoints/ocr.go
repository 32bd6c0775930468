package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/images"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/sandbox"
	"github.com/pagelift/pagelift/internal/svcctx"
	"github.com/pagelift/pagelift/internal/tool"
)

// OCREndpoint handles POST /v1/ocr: one ocr_document tool invocation.
type OCREndpoint struct{}

func (e *OCREndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/ocr", e.handler
}

func (e *OCREndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ocrTool := svcctx.OCRToolFrom(r.Context())
	if ocrTool == nil {
		writeError(w, http.StatusServiceUnavailable, "tool not initialized")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := ocrTool.Invoke(r.Context(), raw)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps the pipeline's error kinds onto HTTP statuses: caller
// mistakes are 4xx, provider trouble is 502.
func statusFor(err error) int {
	var (
		pathErr *sandbox.PathValidationError
		fileErr *ocr.FileOperationError
		apiErr  *mistral.APIError
		imgErr  *images.ImageError
	)
	switch {
	case errors.As(err, &pathErr):
		return http.StatusBadRequest
	case errors.As(err, &fileErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &imgErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func (e *OCREndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		inputPath     string
		outputDir     string
		includeImages bool
	)

	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run OCR on a local file via the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := tool.Args{
				InputPath:          inputPath,
				OutputDir:          outputDir,
				IncludeImageBase64: includeImages,
			}
			var resp tool.Result
			if err := client.Post(cmd.Context(), "/v1/ocr", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "absolute path to the input file")
	cmd.Flags().StringVar(&outputDir, "out", "", "absolute path to the output directory")
	cmd.Flags().BoolVar(&includeImages, "images", false, "save embedded images from the OCR result")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
