// Package ocr orchestrates a single OCR invocation: open the validated local
// file, upload it, exchange the handle for a signed URL, and run OCR
// processing. Local filesystem failures and remote API failures are kept as
// distinct error kinds so callers know whether to fix a path or a credential.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pagelift/pagelift/internal/mistral"
)

// Service is the narrow capability the orchestrator needs from the remote
// OCR provider. *mistral.Client satisfies it; tests substitute a double.
type Service interface {
	UploadFile(ctx context.Context, filename string, content io.Reader) (string, error)
	GetSignedURL(ctx context.Context, fileID string) (string, error)
	ProcessOCR(ctx context.Context, doc mistral.Document, includeImageBase64 bool) (*mistral.OCRResponse, error)
}

// FileOperationError reports a local filesystem failure during orchestration.
type FileOperationError struct {
	// Op is the failing operation ("open" or "read").
	Op string
	// Path is the local file path involved.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("filesystem error during %s for upload: path=%s: %v", e.Op, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }

// Orchestrator runs the upload/sign/process flow against an OCR service.
type Orchestrator struct {
	service Service
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator backed by the given service.
func NewOrchestrator(service Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{service: service, logger: logger}
}

// ProcessLocalFile runs OCR against an already-validated local path. It never
// re-validates; callers go through the sandbox first.
//
// Errors are normalized: local open/read failures become *FileOperationError,
// remote failures surface as *mistral.APIError. A single failed call returns
// immediately; retries, if any, belong to the service client.
func (o *Orchestrator) ProcessLocalFile(ctx context.Context, validatedPath string, includeImageBase64 bool) (*mistral.OCRResponse, error) {
	requestID := uuid.New().String()
	isPDF := strings.EqualFold(filepath.Ext(validatedPath), ".pdf")

	log := o.logger.With("request_id", requestID, "path", validatedPath)

	f, err := os.Open(validatedPath)
	if err != nil {
		return nil, &FileOperationError{Op: "open", Path: validatedPath, Err: err}
	}
	defer f.Close()

	if isPDF {
		// Page count is informational only; a malformed PDF still goes to
		// the provider, which owns document validation.
		if pages, err := api.PageCount(f, nil); err == nil {
			log = log.With("pdf_pages", pages)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, &FileOperationError{Op: "read", Path: validatedPath, Err: err}
		}
	}

	log.Info("uploading file for OCR")
	fileID, err := o.service.UploadFile(ctx, filepath.Base(validatedPath), f)
	if err != nil {
		if fileErr := asFileError(err, validatedPath); fileErr != nil {
			return nil, fileErr
		}
		return nil, err
	}

	signedURL, err := o.service.GetSignedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}

	resp, err := o.service.ProcessOCR(ctx, mistral.DocumentFromURL(signedURL, isPDF), includeImageBase64)
	if err != nil {
		return nil, err
	}

	log.Info("OCR complete", "pages", len(resp.Pages))
	return resp, nil
}

// asFileError converts read failures that surfaced through the upload call
// (the client streams the file body) back into FileOperationError. Remote
// failures pass through untouched.
func asFileError(err error, path string) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return &FileOperationError{Op: pathErr.Op, Path: path, Err: err}
	}
	return nil
}
