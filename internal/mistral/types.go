package mistral

// Mistral API wire types.

// Document references the uploaded bytes for an OCR call. PDFs use a
// document_url reference, images an image_url reference.
type Document struct {
	Type        string    `json:"type"` // "document_url" or "image_url"
	DocumentURL string    `json:"document_url,omitempty"`
	ImageURL    *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps a signed URL for image references.
type ImageURL struct {
	URL string `json:"url"`
}

// DocumentFromURL builds the OCR document reference for a signed URL.
func DocumentFromURL(signedURL string, isPDF bool) Document {
	if isPDF {
		return Document{Type: "document_url", DocumentURL: signedURL}
	}
	return Document{Type: "image_url", ImageURL: &ImageURL{URL: signedURL}}
}

type ocrRequest struct {
	Model              string   `json:"model"`
	Document           Document `json:"document"`
	IncludeImageBase64 bool     `json:"include_image_base64,omitempty"`
}

// OCRResponse is the structured OCR result.
type OCRResponse struct {
	Model     string     `json:"model"`
	Pages     []OCRPage  `json:"pages"`
	UsageInfo *UsageInfo `json:"usage_info,omitempty"`
}

// OCRPage carries the extracted markup and embedded images for one page.
type OCRPage struct {
	Index      int            `json:"index"`
	Markdown   string         `json:"markdown"`
	Images     []OCRImage     `json:"images,omitempty"`
	Dimensions PageDimensions `json:"dimensions"`
}

// OCRImage is one embedded image record. ImageBase64 holds a data URI when
// the caller requested image payloads.
type OCRImage struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64,omitempty"`
}

// PageDimensions describes the rendered page size.
type PageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	DPI    int `json:"dpi"`
}

// UsageInfo reports provider-side accounting.
type UsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes,omitempty"`
}

type uploadResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	CreatedAt int64  `json:"created_at"`
}

type signedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
