package correct

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ianpcox/FinDataExtractorDemo-sub000/constants"
	"github.com/ianpcox/FinDataExtractorDemo-sub000/internal/common"
)

// buildBatchSchema returns a JSON-Schema (draft 2020-12 subset) for one
// batch's reply: keys restricted to the batch fields, every value nullable
// since an explicit null is a legal correction.
func buildBatchSchema(fields []string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = fieldProp(f)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func fieldProp(field string) map[string]any {
	switch field {
	case constants.FieldIssueDate, constants.FieldDueDate:
		return map[string]any{
			"type":    []string{"string", "null"},
			"pattern": `^\d{4}-\d{2}-\d{2}$`,
		}
	case constants.FieldSubtotal, constants.FieldTaxAmount, constants.FieldTotalAmount,
		constants.FieldTaxRate:
		return map[string]any{"type": []string{"string", "number", "null"}}
	case constants.FieldSupplierAddress, constants.FieldCustomerAddress:
		addrProps := make(map[string]any, len(constants.AddressKeys))
		for _, k := range constants.AddressKeys {
			addrProps[k] = map[string]any{"type": []string{"string", "null"}}
		}
		return map[string]any{
			"type":                 []string{"object", "null"},
			"properties":           addrProps,
			"additionalProperties": false,
		}
	case constants.FieldLineItems:
		return map[string]any{
			"type":  []string{"array", "null"},
			"items": map[string]any{"type": "object"},
		}
	case constants.FieldCurrencyCode:
		return map[string]any{
			"type":      []string{"string", "null"},
			"maxLength": 3,
		}
	default:
		return map[string]any{
			"type":      []string{"string", "null"},
			"maxLength": maxStringLength,
		}
	}
}

// validateAgainstSchema validates data against schemaMap.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return common.WrapError(common.ErrMalformedReply, err.Error())
	}
	if err := schema.Validate(v); err != nil {
		return common.WrapError(common.ErrMalformedReply, fmt.Sprintf("reply does not match schema: %v", err))
	}
	return nil
}
