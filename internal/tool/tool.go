// Package tool exposes the OCR pipeline as an agent-callable tool: a named
// operation with a JSON Schema argument contract and a handler that runs the
// sandbox -> orchestrator -> image-saver pipeline. The wire protocol that
// carries tool calls lives outside this package.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pagelift/pagelift/internal/images"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/sandbox"
)

// OCRDocumentName is the tool identifier exposed to calling agents.
const OCRDocumentName = "ocr_document"

// Definition describes a callable tool to the agent host.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Args are the arguments for one ocr_document invocation.
type Args struct {
	InputPath          string `json:"input_path"`
	OutputDir          string `json:"output_dir"`
	IncludeImageBase64 bool   `json:"include_image_base64"`
}

// Result is the structured outcome of one ocr_document invocation.
type Result struct {
	RequestID string `json:"request_id"`
	// Pages holds the extracted markdown per page, in page order.
	Pages []string `json:"pages"`
	// SavedImages lists image filenames written under the output directory,
	// in the order the provider emitted them.
	SavedImages []string `json:"saved_images"`
}

var ocrDocumentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"input_path": {
			"type": "string",
			"description": "Absolute path to a .pdf, .png, .jpg, .jpeg, .webp or .gif file"
		},
		"output_dir": {
			"type": "string",
			"description": "Absolute path to a writable directory inside the allowed root"
		},
		"include_image_base64": {
			"type": "boolean",
			"description": "Extract embedded images from the OCR result and save them to output_dir"
		}
	},
	"required": ["input_path", "output_dir"],
	"additionalProperties": false
}`)

// OCRDocument is the ocr_document tool: validate paths, run OCR, save any
// embedded images.
type OCRDocument struct {
	policy       sandbox.Policy
	orchestrator *ocr.Orchestrator
	logger       *slog.Logger
	schema       *jsonschema.Schema
}

// New creates the ocr_document tool bound to a sandbox policy and OCR
// orchestrator.
func New(policy sandbox.Policy, orchestrator *ocr.Orchestrator, logger *slog.Logger) (*OCRDocument, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("args.json", bytes.NewReader(ocrDocumentSchema)); err != nil {
		return nil, fmt.Errorf("failed to load tool schema: %w", err)
	}
	schema, err := compiler.Compile("args.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile tool schema: %w", err)
	}

	return &OCRDocument{
		policy:       policy,
		orchestrator: orchestrator,
		logger:       logger,
		schema:       schema,
	}, nil
}

// Definition returns the tool description served to agent hosts.
func (t *OCRDocument) Definition() Definition {
	return Definition{
		Name:        OCRDocumentName,
		Description: "Run OCR on a local PDF or image file and write any embedded images into a sandboxed output directory. Returns extracted markdown per page plus saved image filenames.",
		InputSchema: ocrDocumentSchema,
	}
}

// Invoke validates raw JSON arguments against the tool schema and executes
// the pipeline.
func (t *OCRDocument) Invoke(ctx context.Context, rawArgs json.RawMessage) (*Result, error) {
	var doc any
	if err := json.Unmarshal(rawArgs, &doc); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := t.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("tool arguments do not match schema: %w", err)
	}

	var args Args
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return t.Run(ctx, args)
}

// Run executes the pipeline: validate both paths, run the OCR flow, persist
// embedded images. It fails closed on the first validation error.
func (t *OCRDocument) Run(ctx context.Context, args Args) (*Result, error) {
	requestID := uuid.New().String()
	log := t.logger.With("request_id", requestID, "tool", OCRDocumentName)

	inputPath, err := sandbox.ValidateFilePath(args.InputPath)
	if err != nil {
		return nil, err
	}
	outputDir, err := sandbox.ValidateOutputDir(args.OutputDir, t.policy)
	if err != nil {
		return nil, err
	}

	resp, err := t.orchestrator.ProcessLocalFile(ctx, inputPath, args.IncludeImageBase64)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RequestID:   requestID,
		Pages:       make([]string, 0, len(resp.Pages)),
		SavedImages: []string{},
	}
	for _, page := range resp.Pages {
		result.Pages = append(result.Pages, page.Markdown)
	}

	if args.IncludeImageBase64 {
		saved, err := images.SaveImages(outputDir, embeddedImages(resp))
		if err != nil {
			return nil, err
		}
		result.SavedImages = saved
	}

	log.Info("tool invocation complete",
		"pages", len(result.Pages),
		"saved_images", len(result.SavedImages))
	return result, nil
}

// embeddedImages flattens the per-page image records in response order.
func embeddedImages(resp *mistral.OCRResponse) []images.EmbeddedImage {
	var out []images.EmbeddedImage
	for _, page := range resp.Pages {
		for _, img := range page.Images {
			out = append(out, images.EmbeddedImage{
				ID:          img.ID,
				ImageBase64: img.ImageBase64,
			})
		}
	}
	return out
}
