package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
)

// FieldValue is one canonical field's current value plus its extraction
// confidence. A nil Confidence means "no confidence reported", which the gate
// treats the same as low confidence.
type FieldValue struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Conf returns a pointer to c, for building FieldValues inline.
func Conf(c float64) *float64 { return &c }

// LineItem is one row of the line_items field.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Record is the invoice under extraction. Fields only ever contains canonical
// names; State and ReviewVersion are mutated exclusively through the store's
// guarded writes.
type Record struct {
	ID                uuid.UUID                 `json:"id"`
	Fingerprint       string                    `json:"fingerprint"`
	Fields            map[string]FieldValue     `json:"fields"`
	State             constants.ProcessingState `json:"processing_state"`
	ReviewVersion     int64                     `json:"review_version"`
	OverallConfidence float64                   `json:"overall_confidence"`
	CreditNote        bool                      `json:"credit_note"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// IsBlank reports whether a field value counts as "not populated": nil, an
// empty or whitespace string, an empty slice, or a mapping whose values are
// all blank (an address with every component empty is absent, not present).
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []LineItem:
		return len(t) == 0
	case map[string]string:
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	case map[string]any:
		for _, x := range t {
			if !IsBlank(x) {
				return false
			}
		}
		return true
	}
	return false
}

// IsPopulated reports whether the named field holds a non-blank value.
func (r *Record) IsPopulated(field string) bool {
	fv, ok := r.Fields[field]
	return ok && !IsBlank(fv.Value)
}

// FieldConfidence returns the field's confidence, or (0, false) when the field
// is absent or carries no confidence.
func (r *Record) FieldConfidence(field string) (float64, bool) {
	fv, ok := r.Fields[field]
	if !ok || fv.Confidence == nil {
		return 0, false
	}
	return *fv.Confidence, true
}

// Patch is a sparse write-back against a record's fields. Omitted fields are
// left unchanged; a field is blanked only by naming it in Clear. Protected
// names are stripped from Set before any write regardless of caller.
type Patch struct {
	Set   map[string]FieldValue `json:"set,omitempty"`
	Clear []string              `json:"clear,omitempty"`
}

// SanitizeSet drops non-canonical and protected names from p.Set, plus any
// blank value that carries no confidence: blanking a field goes through Clear,
// never through a sparse Set. A blank value with a confidence attached is an
// explicit null from the correction service and passes through. Returns the
// names it removed.
func (p *Patch) SanitizeSet() []string {
	var stripped []string
	for name, fv := range p.Set {
		if !constants.IsCanonicalField(name) || constants.IsProtectedField(name) {
			delete(p.Set, name)
			stripped = append(stripped, name)
			continue
		}
		if IsBlank(fv.Value) && fv.Confidence == nil {
			delete(p.Set, name)
			stripped = append(stripped, name)
		}
	}
	return stripped
}

// ValidateClear checks every clear name against the allow-list: canonical
// fields only, never protected/system names. It returns the first offending
// name, or "" when the list is acceptable.
func (p *Patch) ValidateClear() string {
	for _, name := range p.Clear {
		if !constants.IsCanonicalField(name) || constants.IsProtectedField(name) {
			return name
		}
	}
	return ""
}
