// Package images decodes embedded base64 images from OCR responses and
// persists them under a validated output directory.
package images

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// base64Marker separates the MIME type from the payload in a data URI.
const base64Marker = ";base64,"

// mimeExtensions maps known image MIME types to on-disk extensions.
// Lookup is case-insensitive; anything else falls back to ".png".
var mimeExtensions = map[string]string{
	"image/jpeg": ".jpeg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// EmbeddedImage is one base64 image record from an OCR page.
type EmbeddedImage struct {
	ID          string `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

// ImageError reports a failure while parsing or saving an embedded image.
type ImageError struct {
	// Name identifies the offending image (its id or base name), when known.
	Name string
	// Reason is the user-legible failure description.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ImageError) Unwrap() error { return e.Err }

// ParseDataURI splits a data:<mime>;base64,<payload> string into its MIME
// type and base64 payload. Each malformation has its own failure message so
// callers can tell exactly what the provider sent.
func ParseDataURI(dataURI string) (mimeType, payload string, err error) {
	if dataURI == "" {
		return "", "", &ImageError{Reason: "data URI cannot be empty"}
	}

	marker := strings.Index(dataURI, base64Marker)
	if !strings.HasPrefix(dataURI, "data:") || marker < 0 {
		return "", "", &ImageError{Reason: fmt.Sprintf("invalid data URI format: %q", truncate(dataURI))}
	}

	mimeType = dataURI[len("data:"):marker]
	if mimeType == "" {
		return "", "", &ImageError{Reason: "missing MIME type in data URI"}
	}

	payload = dataURI[marker+len(base64Marker):]
	if payload == "" {
		return "", "", &ImageError{Reason: "missing base64 data in data URI"}
	}

	return mimeType, payload, nil
}

// ExtensionFromMIME maps a MIME type to a file extension. Unknown types map
// to ".png" rather than failing: one odd embedded image must not sink a whole
// OCR result, at the cost of the extension not always matching the true
// format.
func ExtensionFromMIME(mimeType string) string {
	if ext, ok := mimeExtensions[strings.ToLower(mimeType)]; ok {
		return ext
	}
	return ".png"
}

// SaveBase64Image decodes a data URI and writes it to outputDir as
// "{baseName}{ext}", creating missing parent directories. It returns the
// chosen filename. Decode failures become ImageError naming baseName; write
// failures propagate as raw filesystem errors.
func SaveBase64Image(outputDir, baseName, dataURI string) (string, error) {
	mimeType, payload, err := ParseDataURI(dataURI)
	if err != nil {
		return "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", &ImageError{
			Name:   baseName,
			Reason: fmt.Sprintf("failed to decode base64 data for image %q", baseName),
			Err:    err,
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	filename := baseName + ExtensionFromMIME(mimeType)
	if err := os.WriteFile(filepath.Join(outputDir, filename), decoded, 0o644); err != nil {
		return "", err
	}

	return filename, nil
}

// SaveImages writes each embedded image to outputDir and returns the saved
// filenames in input order, so callers can correlate them positionally with
// the source records. The first invalid record aborts the batch; files
// already written stay on disk.
func SaveImages(outputDir string, imgs []EmbeddedImage) ([]string, error) {
	filenames := make([]string, 0, len(imgs))
	for i, img := range imgs {
		if img.ID == "" {
			return nil, &ImageError{Reason: fmt.Sprintf("image at index %d is missing 'id' field", i)}
		}
		if img.ImageBase64 == "" {
			return nil, &ImageError{
				Name:   img.ID,
				Reason: fmt.Sprintf("image %q is missing 'image_base64' field", img.ID),
			}
		}

		filename, err := SaveBase64Image(outputDir, img.ID, img.ImageBase64)
		if err != nil {
			return nil, err
		}
		filenames = append(filenames, filename)
	}
	return filenames, nil
}

// truncate keeps error messages readable when the provider sends a huge
// malformed payload.
func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
