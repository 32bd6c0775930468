// Package mistral is a raw HTTP client for the Mistral OCR API: file upload,
// signed URL exchange, and OCR processing. Remote failures are normalized
// into APIError so callers can distinguish provider problems from local ones.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// BaseURL is the production Mistral API endpoint.
	BaseURL = "https://api.mistral.ai/v1"

	// Model is the fixed OCR model identifier. Not configurable per call.
	Model = "mistral-ocr-latest"

	// UploadPurpose tags uploaded files for OCR processing.
	UploadPurpose = "ocr"
)

// Config holds configuration for the Mistral OCR client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// MaxRetries enables retrying retryable failures (429, 5xx, transport
	// errors). Zero means a single attempt; retries are strictly opt-in
	// because each retry re-uploads and may leave duplicate remote files.
	MaxRetries int

	// RetryDelay is the base delay between retry attempts.
	RetryDelay time.Duration
}

// Client talks to the Mistral API over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewClient creates a Mistral OCR client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError is a normalized Mistral API failure.
type APIError struct {
	// StatusCode is the HTTP status returned by the provider, or 0 for
	// transport-level failures.
	StatusCode int
	// Message is the provider's error message, or the transport error text.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mistral OCR request failed (status=%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// retryable reports whether a failed attempt is worth repeating.
func retryable(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.StatusCode == 0 ||
		apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode >= 500
}

// UploadFile uploads file content tagged for OCR purpose and returns the
// provider's file handle. The handle is transient: callers use it for one
// signed-URL exchange and never cache it.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	// The body is buffered up front so opt-in retries can resend it.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("failed to read file content: %w", err)
	}
	if err := mw.WriteField("purpose", UploadPurpose); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}

	var uploaded uploadResponse
	err = c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		return c.do(req, &uploaded)
	})
	if err != nil {
		return "", err
	}
	return uploaded.ID, nil
}

// GetSignedURL exchanges an upload handle for a short-lived signed URL.
func (c *Client) GetSignedURL(ctx context.Context, fileID string) (string, error) {
	var signed signedURLResponse
	err := c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/url", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		return c.do(req, &signed)
	})
	if err != nil {
		return "", err
	}
	return signed.URL, nil
}

// ProcessOCR runs OCR against a document or image reference.
func (c *Client) ProcessOCR(ctx context.Context, doc Document, includeImageBase64 bool) (*OCRResponse, error) {
	reqBody := ocrRequest{
		Model:              c.model,
		Document:           doc,
		IncludeImageBase64: includeImageBase64,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var ocrResp OCRResponse
	err = c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		return c.do(req, &ocrResp)
	})
	if err != nil {
		return nil, err
	}
	return &ocrResp, nil
}

// do executes the request and decodes the JSON response, converting failures
// into APIError.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		// Try to extract the error envelope; fall back to the raw body.
		var errResp errorResponse
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to unmarshal response", Err: err}
	}
	return nil
}

// withRetry runs fn once, plus up to maxRetries repeats for retryable
// failures when retries are enabled.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if c.maxRetries == 0 {
		return fn()
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.Delay(c.retryDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
}
