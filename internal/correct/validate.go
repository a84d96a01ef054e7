package correct

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/entity"
)

const (
	maxStringLength = 512
	maxRepeatRun    = 20
	amountCeiling   = 1e8
	maxFutureYears  = 2
)

// validateFieldValue applies the field-specific acceptance rules to one
// suggested value. On rejection the caller keeps the field's prior value —
// never the rejected suggestion and never null. current supplies related
// fields for cross-field rules like date ordering; creditNote relaxes the
// non-negative amount rule.
func validateFieldValue(field string, v any, current map[string]entity.FieldValue, creditNote bool) (any, error) {
	switch field {
	case constants.FieldIssueDate, constants.FieldDueDate:
		return validateDate(field, v, current)
	case constants.FieldSubtotal, constants.FieldTaxAmount, constants.FieldTotalAmount:
		return validateAmount(field, v, creditNote)
	case constants.FieldTaxRate:
		return validateRate(v)
	case constants.FieldCurrencyCode:
		return validateCurrency(v)
	case constants.FieldSupplierAddress, constants.FieldCustomerAddress:
		return validateAddress(v)
	case constants.FieldLineItems:
		return validateLineItems(v)
	default:
		return validateString(v)
	}
}

func reject(format string, args ...any) error {
	return common.WrapError(common.ErrValidationRejected, fmt.Sprintf(format, args...))
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func validateDate(field string, v any, current map[string]entity.FieldValue) (any, error) {
	s, ok := asString(v)
	if !ok || s == "" {
		return nil, reject("%s: not a date string", field)
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, reject("%s: %v", field, err)
	}
	if d.After(time.Now().AddDate(maxFutureYears, 0, 0)) {
		return nil, reject("%s: %s is absurdly far in the future", field, s)
	}

	// Ordering invariant: due date >= issue date, checked against whichever
	// related date the record currently holds.
	related := constants.FieldIssueDate
	if field == constants.FieldIssueDate {
		related = constants.FieldDueDate
	}
	if other, ok := currentDate(current, related); ok {
		if field == constants.FieldDueDate && d.Before(other) {
			return nil, reject("due_date %s before issue_date", s)
		}
		if field == constants.FieldIssueDate && d.After(other) {
			return nil, reject("issue_date %s after due_date", s)
		}
	}
	return s, nil
}

func currentDate(current map[string]entity.FieldValue, field string) (time.Time, bool) {
	fv, ok := current[field]
	if !ok {
		return time.Time{}, false
	}
	s, ok := fv.Value.(string)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func parseDecimal(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func validateAmount(field string, v any, creditNote bool) (any, error) {
	f, ok := parseDecimal(v)
	if !ok {
		return nil, reject("%s: not a decimal", field)
	}
	if f < 0 && !creditNote {
		return nil, reject("%s: negative amount on non-credit-note record", field)
	}
	if f > amountCeiling || f < -amountCeiling {
		return nil, reject("%s: beyond sanity ceiling", field)
	}
	return fmt.Sprintf("%.2f", f), nil
}

func validateRate(v any) (any, error) {
	f, ok := parseDecimal(v)
	if !ok {
		return nil, reject("tax_rate: not a number")
	}
	// Values given as 0-100 are rescaled to [0,1].
	if f > 1 && f <= 100 {
		f /= 100
	}
	if f < 0 || f > 1 {
		return nil, reject("tax_rate %v out of range", v)
	}
	return fmt.Sprintf("%.4f", f), nil
}

func validateCurrency(v any) (any, error) {
	s, ok := asString(v)
	if !ok {
		return nil, reject("currency_code: not a string")
	}
	s = strings.ToUpper(s)
	if len(s) != 3 {
		return nil, reject("currency_code %q: must be 3 letters (ISO 4217)", s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return nil, reject("currency_code %q: must be 3 letters (ISO 4217)", s)
		}
	}
	return s, nil
}

func validateString(v any) (any, error) {
	s, ok := asString(v)
	if !ok {
		return nil, reject("not a string")
	}
	if s == "" {
		return nil, reject("empty string")
	}
	if len(s) > maxStringLength {
		return nil, reject("exceeds max length %d", maxStringLength)
	}
	if run := longestRun(s); run >= maxRepeatRun {
		return nil, reject("pathological repeated-character run of %d", run)
	}
	return s, nil
}

func longestRun(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > best {
			best = run
		}
	}
	return best
}

func validateAddress(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, reject("address: not a mapping")
	}
	addr := make(map[string]string, len(constants.AddressKeys))
	for _, k := range constants.AddressKeys {
		addr[k] = ""
	}
	for k, raw := range m {
		if _, known := addr[k]; !known {
			return nil, reject("address: unknown sub-key %q", k)
		}
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, reject("address: %q is not a string", k)
		}
		addr[k] = strings.TrimSpace(s)
	}
	if entity.IsBlank(addr) {
		return nil, reject("address: all components empty")
	}
	return addr, nil
}

func validateLineItems(v any) (any, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, reject("line_items: not an array")
	}
	items := make([]entity.LineItem, 0, len(rows))
	for i, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			return nil, reject("line_items[%d]: not an object", i)
		}
		it := entity.LineItem{
			Description: rowString(row, "description"),
			Quantity:    rowString(row, "quantity"),
			UnitPrice:   rowString(row, "unit_price"),
			Amount:      rowString(row, "amount"),
		}
		if it.Description == "" && it.Amount == "" {
			continue
		}
		if len(it.Description) > maxStringLength {
			return nil, reject("line_items[%d]: description exceeds max length", i)
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, reject("line_items: no usable rows")
	}
	return items, nil
}

func rowString(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return strings.TrimSpace(s)
	}
	if f, ok := row[key].(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
