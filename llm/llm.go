package llm

import (
	"context"
	"errors"

	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/parser"
)

// ErrNotConfigured is returned by adapters built without credentials or an endpoint.
var ErrNotConfigured = errors.New("provider not configured")

// ErrUnsupportedImage is returned when an adapter cannot send the image it was given.
var ErrUnsupportedImage = errors.New("unsupported image reference")

// Image is a submitted photo. Ref is the reference as stored on the report
// (a data URL or an opaque URL). Data and MimeType are set when the
// reference carried inline bytes.
type Image struct {
	Ref      string
	MimeType string
	Data     []byte
}

// Inline reports whether the image bytes are available.
func (i Image) Inline() bool {
	return len(i.Data) > 0
}

// Classifier maps an image to a coarse issue category.
// Implementations must be concurrency-safe.
type Classifier interface {
	Classify(ctx context.Context, img Image) (*parser.Classification, error)
	// SourceName returns a short provider label (e.g., "Featherless").
	SourceName() string
}

// Enricher produces the full analysis of a report. hint is the issue type
// suggested by a classifier, empty when none is available.
// Implementations must be concurrency-safe.
type Enricher interface {
	Enrich(ctx context.Context, img Image, description string, hint models.IssueType) (*parser.Enrichment, error)
	SourceName() string
}
