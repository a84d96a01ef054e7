package correct

import (
	"encoding/json"
	"strings"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

const maxContextChars = 3000

// buildSystemPrompt composes the system message: conservative correction
// rules plus field-specific formatting requirements for the batch.
func buildSystemPrompt(req Request) string {
	parts := []string{
		"You are an invoice field corrector. Return ONLY a JSON object whose keys are a subset of the requested field names.",
		"For each requested field, return the corrected value, or the current value if it is already right, or null if the document clearly shows the field does not apply.",
		"Never invent values that are not supported by the document. If you cannot tell, omit the field.",
		"Use ISO-8601 dates (YYYY-MM-DD). Amounts are decimal strings without currency symbols. currency_code is a 3-letter ISO 4217 code.",
		"tax_rate is a fraction between 0 and 1.",
	}
	if hasAddressField(req.Batch.Fields) {
		parts = append(parts,
			"Address fields are objects with exactly these keys: "+strings.Join(constants.AddressKeys, ", ")+".")
	}
	if hasField(req.Batch.Fields, constants.FieldLineItems) {
		parts = append(parts,
			"line_items is an array of objects with keys: description, quantity, unit_price, amount.")
	}
	if req.CreditNote {
		parts = append(parts, "This document is a credit note; amounts may be negative.")
	} else {
		parts = append(parts, "Amounts must not be negative.")
	}
	parts = append(parts, "Requested fields: "+strings.Join(req.Batch.Fields, ", ")+".")
	return strings.Join(parts, " ")
}

// buildUserPrompt packages the current values and the document text context.
// When images are attached the text context is dropped: low-confidence OCR of
// a scanned page is unhelpful next to the page itself.
func buildUserPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Current extracted values (with confidences) for the requested fields:\n")
	cur := make(map[string]any, len(req.Batch.Fields))
	for _, f := range req.Batch.Fields {
		if fv, ok := req.Current[f]; ok && !entity.IsBlank(fv.Value) {
			e := map[string]any{"value": fv.Value}
			if fv.Confidence != nil {
				e["confidence"] = *fv.Confidence
			}
			cur[f] = e
		} else {
			cur[f] = nil
		}
	}
	if bs, err := json.Marshal(cur); err == nil {
		b.Write(bs)
	}
	b.WriteString("\n")

	if len(req.Images) > 0 {
		b.WriteString("\nPage images of the document are attached. Read the requested fields from them.\n")
		return b.String()
	}

	txt := strings.TrimSpace(req.TextContext)
	b.WriteString("\nDocument text (first ~3k chars):\n")
	if len(txt) > maxContextChars {
		b.WriteString(txt[:maxContextChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(txt)
	}
	return b.String()
}

func hasField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func hasAddressField(fields []string) bool {
	for _, f := range fields {
		if constants.IsAddressField(f) {
			return true
		}
	}
	return false
}
