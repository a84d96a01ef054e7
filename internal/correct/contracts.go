// Package correct implements the text and vision correction clients: batch
// requests against a generative service, lenient reply parsing, and
// field-level validation of every suggestion before acceptance.
package correct

import (
	"context"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/gate"
)

// Request carries one batch plus its surrounding context to a correction
// client. Lifetime is a single orchestration pass; nothing here is persisted.
type Request struct {
	Batch       gate.Batch
	Current     map[string]entity.FieldValue
	TextContext string
	Fingerprint string
	CreditNote  bool
	// Images is populated only for the vision client.
	Images []extract.PageImage
}

// Suggestion is one accepted correction for a field. Null marks a field the
// service explicitly blanked, which is distinct from the field being absent
// from the reply (absent = no opinion, keep prior value).
type Suggestion struct {
	Value any
	Null  bool
}

// Corrector is the contract the fallback orchestrator drives. A nil error
// with an empty map is a valid "nothing to change" reply; errors are always
// classified into the closed failure taxonomy.
type Corrector interface {
	// Deployment identifies the backing model/endpoint for cache keying.
	Deployment() string
	Correct(ctx context.Context, req Request) (map[string]Suggestion, error)
}
