// Package media decodes the image payload submitted with a workflow run.
// Input is either a data-URI string carrying its own media type, or a raw
// base64 string that defaults to PNG. PDF uploads are rasterized to a PNG
// of the first page so they enter the same vision pipeline as images.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrEmptyImage is returned when no image content was supplied.
var ErrEmptyImage = errors.New("image is required")

const defaultMIMEType = "image/png"

// Payload is a decoded workflow input image.
type Payload struct {
	Bytes    []byte
	Base64   string
	MIMEType string
}

// Decode parses a data-URI or bare base64 image string into a Payload.
// PDF payloads are converted to a PNG of the first page.
func Decode(input string) (*Payload, error) {
	if input == "" {
		return nil, ErrEmptyImage
	}

	mimeType := defaultMIMEType
	data := input

	if strings.HasPrefix(input, "data:") {
		rest := strings.TrimPrefix(input, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi > 0 {
			mimeType = rest[:semi]
			data = rest[semi+len(";base64,"):]
		}
		// A malformed data URI falls through with the whole string treated
		// as bare base64, matching the permissive upload behavior.
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}

	if mimeType == "application/pdf" {
		return rasterizePDF(raw)
	}

	return &Payload{
		Bytes:    raw,
		Base64:   data,
		MIMEType: mimeType,
	}, nil
}

// rasterizePDF renders the first page of a PDF to PNG.
func rasterizePDF(raw []byte) (*Payload, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PDF page as PNG: %w", err)
	}

	return &Payload{
		Bytes:    buf.Bytes(),
		Base64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIMEType: defaultMIMEType,
	}, nil
}
