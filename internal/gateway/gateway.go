// Package gateway defines the capability seam to the external text/vision
// generation service. The pipeline depends only on the Generator interface;
// the OpenAI-backed implementation lives in the openai subpackage.
package gateway

import "context"

// ImagePayload is an optional image attachment for a generation request.
type ImagePayload struct {
	// Base64 is the raw base64-encoded image data, without a data-URI prefix.
	Base64 string

	// MIMEType is the media type, e.g. "image/png".
	MIMEType string
}

// Request describes one generation call.
type Request struct {
	System string
	Prompt string
	Image  *ImagePayload

	// JSONResponse asks the model for a single structured JSON object.
	JSONResponse bool
}

// ChunkFunc receives one incremental text chunk. It must not block longer
// than necessary to forward the chunk.
type ChunkFunc func(chunk string)

// Generator produces text, optionally as an incremental chunk sequence.
type Generator interface {
	// Generate issues one non-streaming request and returns the full text.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream issues one streaming request, invoking fn for every
	// chunk as it arrives, and returns the accumulated transcript.
	GenerateStream(ctx context.Context, req Request, fn ChunkFunc) (string, error)
}
