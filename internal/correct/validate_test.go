package correct

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

func assertRejected(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidationRejected))
}

func TestValidateDate(t *testing.T) {
	v, err := validateFieldValue(constants.FieldIssueDate, "2026-02-14", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-14", v)

	_, err = validateFieldValue(constants.FieldIssueDate, "14/02/2026", nil, false)
	assertRejected(t, err)

	farFuture := time.Now().AddDate(5, 0, 0).Format("2006-01-02")
	_, err = validateFieldValue(constants.FieldIssueDate, farFuture, nil, false)
	assertRejected(t, err)
}

func TestValidateDateOrdering(t *testing.T) {
	current := map[string]entity.FieldValue{
		constants.FieldIssueDate: {Value: "2026-03-01"},
	}
	_, err := validateFieldValue(constants.FieldDueDate, "2026-02-01", current, false)
	assertRejected(t, err)

	v, err := validateFieldValue(constants.FieldDueDate, "2026-03-15", current, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", v)

	// And the symmetric check: issue date after the known due date.
	current = map[string]entity.FieldValue{
		constants.FieldDueDate: {Value: "2026-03-01"},
	}
	_, err = validateFieldValue(constants.FieldIssueDate, "2026-04-01", current, false)
	assertRejected(t, err)
}

func TestValidateAmount(t *testing.T) {
	v, err := validateFieldValue(constants.FieldTotalAmount, "1,234.5", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "1234.50", v)

	v, err = validateFieldValue(constants.FieldSubtotal, 42.0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "42.00", v)

	// Negative allowed only for credit notes.
	_, err = validateFieldValue(constants.FieldTotalAmount, "-5.00", nil, false)
	assertRejected(t, err)
	v, err = validateFieldValue(constants.FieldTotalAmount, "-5.00", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "-5.00", v)

	_, err = validateFieldValue(constants.FieldTotalAmount, "999999999999", nil, false)
	assertRejected(t, err)
}

func TestValidateRate(t *testing.T) {
	v, err := validateFieldValue(constants.FieldTaxRate, "0.19", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "0.1900", v)

	// 0-100 scale is rescaled.
	v, err = validateFieldValue(constants.FieldTaxRate, 19.0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "0.1900", v)

	_, err = validateFieldValue(constants.FieldTaxRate, "250", nil, false)
	assertRejected(t, err)
	_, err = validateFieldValue(constants.FieldTaxRate, "-0.1", nil, false)
	assertRejected(t, err)
}

func TestValidateCurrency(t *testing.T) {
	v, err := validateFieldValue(constants.FieldCurrencyCode, "usd", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "USD", v)

	_, err = validateFieldValue(constants.FieldCurrencyCode, "US", nil, false)
	assertRejected(t, err)
	_, err = validateFieldValue(constants.FieldCurrencyCode, "U$D", nil, false)
	assertRejected(t, err)
}

func TestValidateString(t *testing.T) {
	_, err := validateFieldValue(constants.FieldInvoiceNumber, strings.Repeat("x", 600), nil, false)
	assertRejected(t, err)

	_, err = validateFieldValue(constants.FieldSupplierName, "A"+strings.Repeat("!", 25), nil, false)
	assertRejected(t, err)

	_, err = validateFieldValue(constants.FieldSupplierName, "  ", nil, false)
	assertRejected(t, err)

	v, err := validateFieldValue(constants.FieldSupplierName, " ACME GmbH ", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "ACME GmbH", v)
}

func TestValidateAddress(t *testing.T) {
	v, err := validateFieldValue(constants.FieldSupplierAddress, map[string]any{
		"street": "1 Main St", "city": "Springfield",
	}, nil, false)
	require.NoError(t, err)
	addr := v.(map[string]string)
	assert.Len(t, addr, 5)
	assert.Equal(t, "1 Main St", addr["street"])

	_, err = validateFieldValue(constants.FieldSupplierAddress, map[string]any{
		"street": "1 Main St", "county": "Greene",
	}, nil, false)
	assertRejected(t, err)

	_, err = validateFieldValue(constants.FieldSupplierAddress, "1 Main St", nil, false)
	assertRejected(t, err)
}

func TestValidateLineItems(t *testing.T) {
	v, err := validateFieldValue(constants.FieldLineItems, []any{
		map[string]any{"description": "Widget", "quantity": "2", "unit_price": "5.00", "amount": "10.00"},
		map[string]any{"description": "", "amount": ""},
	}, nil, false)
	require.NoError(t, err)
	items := v.([]entity.LineItem)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].Description)

	_, err = validateFieldValue(constants.FieldLineItems, "Widget x2", nil, false)
	assertRejected(t, err)
}
