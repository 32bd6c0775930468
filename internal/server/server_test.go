package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/home"
	"github.com/pagelift/pagelift/internal/mistral"
	"github.com/pagelift/pagelift/internal/tool"
)

// newTestServer builds a fully-wired server backed by a mock OCR service and
// a throwaway sandbox root. It returns the server and the sandbox root path.
func newTestServer(t *testing.T, svc *mistral.MockService) (*Server, string) {
	t.Helper()

	homePath := filepath.Join(t.TempDir(), "pagelift-home")
	h, err := home.New(homePath)
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	cfgPath := h.ConfigPath()
	cfgBody := "sandbox:\n  allowed_dir: " + h.OutputsPath() + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr, err := config.NewManager(cfgPath)
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}

	s, err := New(Config{
		Home:          h,
		ConfigManager: mgr,
		OCRService:    svc,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return s, h.OutputsPath()
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, mistral.NewMockService())

	rec := doRequest(t, s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready when sandbox root exists", func(t *testing.T) {
		s, _ := newTestServer(t, mistral.NewMockService())

		rec := doRequest(t, s, "GET", "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("degraded when sandbox root removed", func(t *testing.T) {
		s, root := newTestServer(t, mistral.NewMockService())
		if err := os.RemoveAll(root); err != nil {
			t.Fatalf("remove sandbox root: %v", err)
		}

		rec := doRequest(t, s, "GET", "/ready", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["sandbox"] != "missing" {
			t.Errorf("expected sandbox missing, got %q", resp["sandbox"])
		}
	})
}

func TestToolsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, mistral.NewMockService())

	rec := doRequest(t, s, "GET", "/v1/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Tools []tool.Definition `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(resp.Tools))
	}
	if resp.Tools[0].Name != tool.OCRDocumentName {
		t.Errorf("expected tool %q, got %q", tool.OCRDocumentName, resp.Tools[0].Name)
	}
}

func TestOCREndpoint(t *testing.T) {
	pngPayload := base64.StdEncoding.EncodeToString([]byte("fake png bytes"))

	writeInput := func(t *testing.T) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "scan.png")
		if err := os.WriteFile(path, []byte("fake png bytes"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		return path
	}

	t.Run("runs the pipeline and saves images", func(t *testing.T) {
		svc := mistral.NewMockService()
		svc.Response = &mistral.OCRResponse{
			Model: mistral.Model,
			Pages: []mistral.OCRPage{{
				Index:    0,
				Markdown: "# Scanned page",
				Images: []mistral.OCRImage{{
					ID:          "img-0",
					ImageBase64: "data:image/png;base64," + pngPayload,
				}},
			}},
		}
		s, root := newTestServer(t, svc)

		rec := doRequest(t, s, "POST", "/v1/ocr", tool.Args{
			InputPath:          writeInput(t),
			OutputDir:          root,
			IncludeImageBase64: true,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp tool.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Pages) != 1 || resp.Pages[0] != "# Scanned page" {
			t.Errorf("unexpected pages: %v", resp.Pages)
		}
		if len(resp.SavedImages) != 1 || resp.SavedImages[0] != "img-0.png" {
			t.Fatalf("unexpected saved images: %v", resp.SavedImages)
		}
		if _, err := os.Stat(filepath.Join(root, "img-0.png")); err != nil {
			t.Errorf("saved image not on disk: %v", err)
		}
	})

	t.Run("rejects output dir outside the sandbox", func(t *testing.T) {
		svc := mistral.NewMockService()
		s, _ := newTestServer(t, svc)

		rec := doRequest(t, s, "POST", "/v1/ocr", tool.Args{
			InputPath: writeInput(t),
			OutputDir: t.TempDir(),
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.UploadCount() != 0 {
			t.Errorf("expected no uploads after validation failure, got %d", svc.UploadCount())
		}
	})

	t.Run("rejects nonexistent input file", func(t *testing.T) {
		s, root := newTestServer(t, mistral.NewMockService())

		rec := doRequest(t, s, "POST", "/v1/ocr", tool.Args{
			InputPath: filepath.Join(t.TempDir(), "missing.pdf"),
			OutputDir: root,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects unknown argument", func(t *testing.T) {
		s, root := newTestServer(t, mistral.NewMockService())

		rec := doRequest(t, s, "POST", "/v1/ocr", map[string]any{
			"input_path": writeInput(t),
			"output_dir": root,
			"mode":       "fast",
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("maps provider errors to 502", func(t *testing.T) {
		svc := mistral.NewMockService()
		svc.ProcessErr = &mistral.APIError{StatusCode: 429, Message: "rate limited"}
		s, root := newTestServer(t, svc)

		rec := doRequest(t, s, "POST", "/v1/ocr", tool.Args{
			InputPath: writeInput(t),
			OutputDir: root,
		})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "rate limited") {
			t.Errorf("expected provider message in body, got %s", rec.Body.String())
		}
	})

	t.Run("rejects malformed JSON body", func(t *testing.T) {
		s, _ := newTestServer(t, mistral.NewMockService())

		req := httptest.NewRequest("POST", "/v1/ocr", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
