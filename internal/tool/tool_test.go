package tool

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pagelift/pagelift/internal/images"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/sandbox"
)

const pngData = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8/5+hHgAHggJ/PchI7wAAAABJRU5ErkJggg=="

type fixture struct {
	tool   *OCRDocument
	mock   *mistral.MockService
	root   string
	input  string
	output string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	output := filepath.Join(root, "out")
	if err := os.Mkdir(output, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	input := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(input, []byte("image bytes"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	policy, err := sandbox.NewPolicy(root)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	mock := mistral.NewMockService()
	tl, err := New(policy, ocr.NewOrchestrator(mock, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{tool: tl, mock: mock, root: root, input: input, output: output}
}

func TestOCRDocument_Definition(t *testing.T) {
	fx := newFixture(t)

	def := fx.tool.Definition()
	if def.Name != "ocr_document" {
		t.Errorf("Name = %q", def.Name)
	}
	var schema map[string]any
	if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema missing properties")
	}
	for _, name := range []string{"input_path", "output_dir", "include_image_base64"} {
		if _, ok := props[name]; !ok {
			t.Errorf("schema missing property %s", name)
		}
	}
}

func TestOCRDocument_Invoke(t *testing.T) {
	t.Run("valid arguments run the pipeline", func(t *testing.T) {
		fx := newFixture(t)
		fx.mock.Response = &mistral.OCRResponse{
			Pages: []mistral.OCRPage{
				{Index: 0, Markdown: "page one"},
				{Index: 1, Markdown: "page two"},
			},
		}

		raw, _ := json.Marshal(Args{InputPath: fx.input, OutputDir: fx.output})
		result, err := fx.tool.Invoke(context.Background(), raw)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}

		if len(result.Pages) != 2 || result.Pages[0] != "page one" || result.Pages[1] != "page two" {
			t.Errorf("unexpected pages: %v", result.Pages)
		}
		if len(result.SavedImages) != 0 {
			t.Errorf("images saved without include_image_base64: %v", result.SavedImages)
		}
		if result.RequestID == "" {
			t.Error("missing request id")
		}
	})

	t.Run("schema rejects missing required argument", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.tool.Invoke(context.Background(), json.RawMessage(`{"input_path": "/tmp/a.pdf"}`))
		if err == nil {
			t.Fatal("expected schema validation error")
		}
		if !strings.Contains(err.Error(), "schema") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("schema rejects unknown argument", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.tool.Invoke(context.Background(),
			json.RawMessage(`{"input_path": "/tmp/a.pdf", "output_dir": "/tmp", "mode": "fast"}`))
		if err == nil {
			t.Fatal("expected schema validation error")
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		fx := newFixture(t)

		if _, err := fx.tool.Invoke(context.Background(), json.RawMessage(`{not json`)); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestOCRDocument_Run(t *testing.T) {
	t.Run("saves embedded images in order", func(t *testing.T) {
		fx := newFixture(t)
		fx.mock.Response = &mistral.OCRResponse{
			Pages: []mistral.OCRPage{
				{
					Index:    0,
					Markdown: "first",
					Images: []mistral.OCRImage{
						{ID: "img-0", ImageBase64: "data:image/png;base64," + pngData},
						{ID: "img-1", ImageBase64: "data:image/jpeg;base64," + pngData},
					},
				},
				{
					Index:    1,
					Markdown: "second",
					Images: []mistral.OCRImage{
						{ID: "img-2", ImageBase64: "data:image/png;base64," + pngData},
					},
				},
			},
		}

		result, err := fx.tool.Run(context.Background(), Args{
			InputPath:          fx.input,
			OutputDir:          fx.output,
			IncludeImageBase64: true,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		want := []string{"img-0.png", "img-1.jpeg", "img-2.png"}
		if len(result.SavedImages) != len(want) {
			t.Fatalf("saved %d images, want %d", len(result.SavedImages), len(want))
		}
		for i := range want {
			if result.SavedImages[i] != want[i] {
				t.Errorf("SavedImages[%d] = %q, want %q", i, result.SavedImages[i], want[i])
			}
			if _, err := os.Stat(filepath.Join(fx.output, want[i])); err != nil {
				t.Errorf("image %s missing on disk: %v", want[i], err)
			}
		}
		if !fx.mock.LastIncludeFlag {
			t.Error("include_image_base64 not forwarded to provider")
		}
	})

	t.Run("path validation failure before any remote call", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.tool.Run(context.Background(), Args{
			InputPath: "relative.png",
			OutputDir: fx.output,
		})

		var pve *sandbox.PathValidationError
		if !errors.As(err, &pve) {
			t.Fatalf("expected PathValidationError, got %v", err)
		}
		if fx.mock.UploadCount() != 0 {
			t.Error("upload attempted after validation failure")
		}
	})

	t.Run("output dir outside sandbox rejected", func(t *testing.T) {
		fx := newFixture(t)
		outside := t.TempDir()

		_, err := fx.tool.Run(context.Background(), Args{
			InputPath: fx.input,
			OutputDir: outside,
		})

		var pve *sandbox.PathValidationError
		if !errors.As(err, &pve) {
			t.Fatalf("expected PathValidationError, got %v", err)
		}
		if pve.Check != sandbox.CheckContained {
			t.Errorf("Check = %s, want %s", pve.Check, sandbox.CheckContained)
		}
		if fx.mock.UploadCount() != 0 {
			t.Error("upload attempted after validation failure")
		}
	})

	t.Run("image without payload is an ImageError when payloads requested", func(t *testing.T) {
		fx := newFixture(t)
		fx.mock.Response = &mistral.OCRResponse{
			Pages: []mistral.OCRPage{{
				Markdown: "text",
				Images:   []mistral.OCRImage{{ID: "img-missing"}},
			}},
		}

		_, err := fx.tool.Run(context.Background(), Args{
			InputPath:          fx.input,
			OutputDir:          fx.output,
			IncludeImageBase64: true,
		})

		var imgErr *images.ImageError
		if !errors.As(err, &imgErr) {
			t.Fatalf("expected ImageError, got %v", err)
		}
		if !strings.Contains(err.Error(), "img-missing") {
			t.Errorf("error should name the image: %v", err)
		}
	})

	t.Run("remote failure passes through", func(t *testing.T) {
		fx := newFixture(t)
		fx.mock.ProcessErr = &mistral.APIError{StatusCode: 500, Message: "boom"}

		_, err := fx.tool.Run(context.Background(), Args{
			InputPath: fx.input,
			OutputDir: fx.output,
		})

		var apiErr *mistral.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
	})
}
