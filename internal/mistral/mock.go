package mistral

import (
	"context"
	"io"
	"sync/atomic"
)

// MockService is a configurable OCR service double for testing orchestration
// without touching the network. Zero values give a successful one-page
// response.
type MockService struct {
	// Configurable behavior
	UploadErr    error
	SignedURLErr error
	ProcessErr   error
	Response     *OCRResponse

	// Recorded inputs
	UploadedFilename string
	UploadedBytes    []byte
	RequestedFileID  string
	LastDocument     Document
	LastIncludeFlag  bool

	uploadCount atomic.Int64
}

// NewMockService creates a mock that succeeds with a single empty page.
func NewMockService() *MockService {
	return &MockService{
		Response: &OCRResponse{
			Model: Model,
			Pages: []OCRPage{{Index: 0, Markdown: "mock page"}},
		},
	}
}

// UploadFile records the upload and returns a synthetic handle.
func (m *MockService) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	m.UploadedFilename = filename
	m.UploadedBytes = data
	m.uploadCount.Add(1)
	return "file-mock-1", nil
}

// GetSignedURL returns a synthetic signed URL for the handle.
func (m *MockService) GetSignedURL(ctx context.Context, fileID string) (string, error) {
	if m.SignedURLErr != nil {
		return "", m.SignedURLErr
	}
	m.RequestedFileID = fileID
	return "https://signed.example/" + fileID, nil
}

// ProcessOCR records the document reference and returns the configured
// response.
func (m *MockService) ProcessOCR(ctx context.Context, doc Document, includeImageBase64 bool) (*OCRResponse, error) {
	if m.ProcessErr != nil {
		return nil, m.ProcessErr
	}
	m.LastDocument = doc
	m.LastIncludeFlag = includeImageBase64
	return m.Response, nil
}

// UploadCount returns how many uploads succeeded.
func (m *MockService) UploadCount() int64 {
	return m.uploadCount.Load()
}
