// Package normalize maps heterogeneous raw OCR output into the canonical
// field -> (value, confidence) shape the rest of the pipeline consumes.
package normalize

import (
	"log/slog"
	"strings"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
)

// fieldAliases renames known OCR collaborator synonyms onto the canonical
// vocabulary before the unknown-name drop.
var fieldAliases = map[string]string{
	"invoice_no":     constants.FieldInvoiceNumber,
	"invoice_id":     constants.FieldInvoiceNumber,
	"number":         constants.FieldInvoiceNumber,
	"date":           constants.FieldIssueDate,
	"invoice_date":   constants.FieldIssueDate,
	"vendor_name":    constants.FieldSupplierName,
	"vendor_address": constants.FieldSupplierAddress,
	"bill_to":        constants.FieldCustomerName,
	"bill_to_name":   constants.FieldCustomerName,
	"currency":       constants.FieldCurrencyCode,
	"vat_amount":     constants.FieldTaxAmount,
	"vat_rate":       constants.FieldTaxRate,
	"vat_id":         constants.FieldSupplierTaxID,
	"tax_id":         constants.FieldSupplierTaxID,
	"total":          constants.FieldTotalAmount,
	"grand_total":    constants.FieldTotalAmount,
	"amount_due":     constants.FieldTotalAmount,
	"po_number":      constants.FieldPurchaseOrder,
	"items":          constants.FieldLineItems,
}

// addressAliases maps collaborator address sub-keys onto the fixed
// 5-component shape.
var addressAliases = map[string]string{
	"street":      "street",
	"street1":     "street",
	"address1":    "street",
	"line1":       "street",
	"city":        "city",
	"town":        "city",
	"region":      "region",
	"state":       "region",
	"province":    "region",
	"postal_code": "postal_code",
	"postcode":    "postal_code",
	"zip":         "postal_code",
	"zip_code":    "postal_code",
	"country":     "country",
}

// Normalizer converts RawFieldMaps into canonical records.
type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize produces the canonical field map. Unknown raw names are dropped
// with a warning, never merged into a known field. Address-shaped fields come
// out as the fixed 5-component mapping, or absent when every component is
// empty.
func (n *Normalizer) Normalize(raw extract.RawFieldMap) map[string]entity.FieldValue {
	out := make(map[string]entity.FieldValue, len(raw))
	for rawName, rf := range raw {
		name := canonicalName(rawName)
		if name == "" {
			n.logger.Warn("normalize.unknown_field_dropped", "raw_name", rawName)
			continue
		}
		fv, ok := n.normalizeField(name, rf)
		if !ok {
			continue
		}
		out[name] = fv
	}
	return out
}

func canonicalName(rawName string) string {
	name := strings.ToLower(strings.TrimSpace(rawName))
	if alias, ok := fieldAliases[name]; ok {
		name = alias
	}
	if !constants.IsCanonicalField(name) {
		return ""
	}
	return name
}

func (n *Normalizer) normalizeField(name string, rf extract.RawField) (entity.FieldValue, bool) {
	switch rf.Kind {
	case extract.KindString:
		s := strings.TrimSpace(rf.Str)
		if s == "" {
			return entity.FieldValue{}, false
		}
		if constants.IsAddressField(name) {
			// A flat string address goes into the street component.
			return addressValue(map[string]string{"street": s}, nil)
		}
		return entity.FieldValue{Value: s}, true

	case extract.KindScalar:
		s := strings.TrimSpace(rf.Scalar.Value)
		if s == "" {
			return entity.FieldValue{}, false
		}
		if constants.IsAddressField(name) {
			return addressValue(map[string]string{"street": s}, rf.Scalar.Confidence)
		}
		return entity.FieldValue{Value: s, Confidence: rf.Scalar.Confidence}, true

	case extract.KindMap:
		if constants.IsAddressField(name) {
			return n.normalizeAddress(name, rf.Map)
		}
		return n.normalizeEnvelope(name, rf.Map)

	case extract.KindList:
		if name != constants.FieldLineItems {
			n.logger.Warn("normalize.list_shape_dropped", "field", name)
			return entity.FieldValue{}, false
		}
		items := normalizeLineItems(rf.List)
		if len(items) == 0 {
			return entity.FieldValue{}, false
		}
		return entity.FieldValue{Value: items}, true
	}
	// Unhandled kinds are a programming error upstream; drop loudly.
	n.logger.Warn("normalize.unhandled_shape", "field", name, "kind", int(rf.Kind))
	return entity.FieldValue{}, false
}

// normalizeEnvelope handles the {value, confidence} nested-map shape for
// scalar fields.
func (n *Normalizer) normalizeEnvelope(name string, m map[string]extract.RawField) (entity.FieldValue, bool) {
	inner, ok := m["value"]
	if !ok {
		n.logger.Warn("normalize.map_shape_dropped", "field", name)
		return entity.FieldValue{}, false
	}
	var conf *float64
	if c, ok := m["confidence"]; ok && c.Kind == extract.KindScalar && c.Scalar.Confidence != nil {
		conf = c.Scalar.Confidence
	}
	fv, ok := n.normalizeField(name, inner)
	if !ok {
		return entity.FieldValue{}, false
	}
	if fv.Confidence == nil {
		fv.Confidence = conf
	}
	return fv, true
}

func (n *Normalizer) normalizeAddress(name string, m map[string]extract.RawField) (entity.FieldValue, bool) {
	parts := make(map[string]string, len(constants.AddressKeys))
	var conf *float64
	for rawKey, rf := range m {
		key, ok := addressAliases[strings.ToLower(strings.TrimSpace(rawKey))]
		if !ok {
			n.logger.Warn("normalize.address_key_dropped", "field", name, "key", rawKey)
			continue
		}
		switch rf.Kind {
		case extract.KindString:
			parts[key] = strings.TrimSpace(rf.Str)
		case extract.KindScalar:
			parts[key] = strings.TrimSpace(rf.Scalar.Value)
			if conf == nil {
				conf = rf.Scalar.Confidence
			}
		case extract.KindMap, extract.KindList:
			n.logger.Warn("normalize.address_key_dropped", "field", name, "key", rawKey)
		}
	}
	return addressValue(parts, conf)
}

// addressValue builds the fixed 5-component address mapping. An address with
// every component empty is absent, not present-with-empty-value.
func addressValue(parts map[string]string, conf *float64) (entity.FieldValue, bool) {
	addr := make(map[string]string, len(constants.AddressKeys))
	empty := true
	for _, key := range constants.AddressKeys {
		v := strings.TrimSpace(parts[key])
		addr[key] = v
		if v != "" {
			empty = false
		}
	}
	if empty {
		return entity.FieldValue{}, false
	}
	return entity.FieldValue{Value: addr, Confidence: conf}, true
}

func normalizeLineItems(rows []map[string]string) []entity.LineItem {
	items := make([]entity.LineItem, 0, len(rows))
	for _, row := range rows {
		it := entity.LineItem{
			Description: strings.TrimSpace(row["description"]),
			Quantity:    strings.TrimSpace(row["quantity"]),
			UnitPrice:   strings.TrimSpace(row["unit_price"]),
			Amount:      strings.TrimSpace(row["amount"]),
		}
		if it.Description == "" && it.Amount == "" {
			continue
		}
		items = append(items, it)
	}
	return items
}
