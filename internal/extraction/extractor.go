package extraction

import (
	"fmt"
	"strings"
)

// RawLineItem is one line item exactly as the extraction service returned it.
// All fields are untyped text; normalization happens downstream.
type RawLineItem struct {
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Result is the outcome of a single extraction attempt. Failures are carried
// in the result rather than returned as errors so callers have one branch.
type Result struct {
	OK           bool
	Items        []RawLineItem
	ErrorMessage string
}

// Extractor defines the interface for receipt extraction operations
type Extractor interface {
	// ExtractFromImage analyzes a receipt image/PDF and extracts line items
	ExtractFromImage(imageData []byte, contentType string) *Result
	// ExtractFromText extracts line items from pasted receipt text
	ExtractFromText(text string) *Result
	// Close closes the extractor and releases resources
	Close() error
}

// DefaultMaxImageBytes is the upload size ceiling when none is configured.
const DefaultMaxImageBytes = 10 << 20 // 10MB

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

func failure(format string, args ...any) *Result {
	return &Result{OK: false, ErrorMessage: fmt.Sprintf(format, args...)}
}

// checkImageInput enforces the MIME allow-list and size ceiling before any
// network call is made.
func checkImageInput(imageData []byte, contentType string, maxBytes int) error {
	if len(imageData) == 0 {
		return fmt.Errorf("no image data provided")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(imageData) > maxBytes {
		return fmt.Errorf("image is %d bytes, maximum is %d", len(imageData), maxBytes)
	}
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		return fmt.Errorf("content type is required")
	}
	if !allowedMimeTypes[mimeType] {
		return fmt.Errorf("unsupported content type %q", mimeType)
	}
	return nil
}

// checkTextInput rejects empty pasted text.
func checkTextInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is empty")
	}
	return nil
}
