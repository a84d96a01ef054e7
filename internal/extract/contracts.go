package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// RawFieldKind tags the shape a raw OCR field arrived in. The normalizer
// switches over this exhaustively; adding a kind without handling it there is
// a compile-visible omission, not a runtime probe.
type RawFieldKind int

const (
	// KindString is a bare string value with no metadata.
	KindString RawFieldKind = iota
	// KindScalar is a typed value+confidence pair.
	KindScalar
	// KindMap is a nested mapping, e.g. address components or a
	// {value, confidence} envelope.
	KindMap
	// KindList is a repeated group, e.g. line items.
	KindList
)

// RawScalar is a typed OCR value with an optional confidence.
type RawScalar struct {
	Value      string
	Confidence *float64
}

// RawField is the tagged union of shapes the OCR collaborator may emit for a
// single field. Exactly the member matching Kind is meaningful.
type RawField struct {
	Kind   RawFieldKind
	Str    string
	Scalar RawScalar
	Map    map[string]RawField
	List   []map[string]string
}

// RawFieldMap is the OCR collaborator's per-document output keyed by the
// collaborator's own field names, which may or may not be canonical.
type RawFieldMap map[string]RawField

// OCRResult is everything one extraction pass needs from the OCR collaborator.
type OCRResult struct {
	Fields RawFieldMap
	// Text is the full extractable text, used as correction context.
	Text string
	// FirstPageText feeds the scanned-document heuristic.
	FirstPageText string
	Pages         int
}

// OCRExtractor is the OCR collaborator contract. Internal behavior is out of
// scope; this system only depends on the reply shape.
type OCRExtractor interface {
	Extract(ctx context.Context, document []byte) (OCRResult, error)
}

// PageImage is one rendered page handed to the vision correction client.
type PageImage struct {
	Data []byte
	MIME string
	Page int
}

// PageRenderer renders document pages to images for the vision path. A
// failure here is classified as a render failure and the caller falls back to
// text correction.
type PageRenderer interface {
	RenderPages(ctx context.Context, document []byte, pages []int) ([]PageImage, error)
}

// Fingerprint computes the opaque content fingerprint used for cache keys and
// re-render caching.
func Fingerprint(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

// SelectPages applies the configured page-selection strategy to a document
// with n pages, bounded by maxPages.
func SelectPages(strategy string, n, maxPages int) []int {
	if n <= 0 || maxPages <= 0 {
		return nil
	}
	if maxPages > n {
		maxPages = n
	}
	switch strategy {
	case "first-last":
		if n == 1 || maxPages == 1 {
			return []int{1}
		}
		pages := make([]int, 0, maxPages)
		for p := 1; p <= maxPages-1; p++ {
			pages = append(pages, p)
		}
		return append(pages, n)
	default: // first-n
		pages := make([]int, 0, maxPages)
		for p := 1; p <= maxPages; p++ {
			pages = append(pages, p)
		}
		return pages
	}
}
