package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/extract"
)

func TestNormalizeStringField(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"invoice_number": {Kind: extract.KindString, Str: "  INV-42 "},
	})
	require.Contains(t, out, constants.FieldInvoiceNumber)
	assert.Equal(t, "INV-42", out[constants.FieldInvoiceNumber].Value)
	assert.Nil(t, out[constants.FieldInvoiceNumber].Confidence)
}

func TestNormalizeScalarCarriesConfidence(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"total": {Kind: extract.KindScalar, Scalar: extract.RawScalar{Value: "99.50", Confidence: entity.Conf(0.82)}},
	})
	require.Contains(t, out, constants.FieldTotalAmount)
	require.NotNil(t, out[constants.FieldTotalAmount].Confidence)
	assert.InDelta(t, 0.82, *out[constants.FieldTotalAmount].Confidence, 1e-9)
}

func TestNormalizeAliasAndUnknownDrop(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"vendor_name":    {Kind: extract.KindString, Str: "ACME GmbH"},
		"barcode_region": {Kind: extract.KindString, Str: "zz"},
	})
	assert.Contains(t, out, constants.FieldSupplierName)
	assert.Len(t, out, 1, "unknown raw names must be dropped, not merged")
}

func TestNormalizeValueConfidenceEnvelope(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"issue_date": {Kind: extract.KindMap, Map: map[string]extract.RawField{
			"value":      {Kind: extract.KindString, Str: "2026-03-01"},
			"confidence": {Kind: extract.KindScalar, Scalar: extract.RawScalar{Confidence: entity.Conf(0.6)}},
		}},
	})
	require.Contains(t, out, constants.FieldIssueDate)
	fv := out[constants.FieldIssueDate]
	assert.Equal(t, "2026-03-01", fv.Value)
	require.NotNil(t, fv.Confidence)
	assert.InDelta(t, 0.6, *fv.Confidence, 1e-9)
}

func TestNormalizeAddressShapes(t *testing.T) {
	n := New(nil)

	t.Run("nested map with synonyms", func(t *testing.T) {
		out := n.Normalize(extract.RawFieldMap{
			"supplier_address": {Kind: extract.KindMap, Map: map[string]extract.RawField{
				"line1": {Kind: extract.KindString, Str: "1 Main St"},
				"town":  {Kind: extract.KindString, Str: "Springfield"},
				"zip":   {Kind: extract.KindString, Str: "12345"},
			}},
		})
		require.Contains(t, out, constants.FieldSupplierAddress)
		addr, ok := out[constants.FieldSupplierAddress].Value.(map[string]string)
		require.True(t, ok)
		assert.Len(t, addr, 5, "address always has the fixed 5-component shape")
		assert.Equal(t, "1 Main St", addr["street"])
		assert.Equal(t, "Springfield", addr["city"])
		assert.Equal(t, "12345", addr["postal_code"])
		assert.Equal(t, "", addr["country"])
	})

	t.Run("flat string lands in street", func(t *testing.T) {
		out := n.Normalize(extract.RawFieldMap{
			"customer_address": {Kind: extract.KindString, Str: "9 Elm Rd"},
		})
		addr := out[constants.FieldCustomerAddress].Value.(map[string]string)
		assert.Equal(t, "9 Elm Rd", addr["street"])
	})

	t.Run("all components empty means absent", func(t *testing.T) {
		out := n.Normalize(extract.RawFieldMap{
			"supplier_address": {Kind: extract.KindMap, Map: map[string]extract.RawField{
				"city": {Kind: extract.KindString, Str: "   "},
			}},
		})
		assert.NotContains(t, out, constants.FieldSupplierAddress)
	})
}

func TestNormalizeLineItems(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"items": {Kind: extract.KindList, List: []map[string]string{
			{"description": "Widget", "quantity": "2", "unit_price": "5.00", "amount": "10.00"},
			{"description": "", "amount": ""}, // blank row dropped
		}},
	})
	require.Contains(t, out, constants.FieldLineItems)
	items, ok := out[constants.FieldLineItems].Value.([]entity.LineItem)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].Description)
}

func TestNormalizeListShapeOnNonLineItemDropped(t *testing.T) {
	n := New(nil)
	out := n.Normalize(extract.RawFieldMap{
		"invoice_number": {Kind: extract.KindList, List: []map[string]string{{"description": "x"}}},
	})
	assert.Empty(t, out)
}
