package constants

// Canonical invoice field names. This vocabulary is closed: no other field
// name is ever written to a record.
const (
	FieldInvoiceNumber   = "invoice_number"
	FieldIssueDate       = "issue_date"
	FieldDueDate         = "due_date"
	FieldSupplierName    = "supplier_name"
	FieldSupplierAddress = "supplier_address"
	FieldSupplierTaxID   = "supplier_tax_id"
	FieldCustomerName    = "customer_name"
	FieldCustomerAddress = "customer_address"
	FieldCurrencyCode    = "currency_code"
	FieldSubtotal        = "subtotal"
	FieldTaxRate         = "tax_rate"
	FieldTaxAmount       = "tax_amount"
	FieldTotalAmount     = "total_amount"
	FieldLineItems       = "line_items"
	FieldPaymentTerms    = "payment_terms"
	FieldPurchaseOrder   = "purchase_order"
)

// CanonicalFields is the full extraction schema, in stable order.
var CanonicalFields = []string{
	FieldInvoiceNumber,
	FieldIssueDate,
	FieldDueDate,
	FieldSupplierName,
	FieldSupplierAddress,
	FieldSupplierTaxID,
	FieldCustomerName,
	FieldCustomerAddress,
	FieldCurrencyCode,
	FieldSubtotal,
	FieldTaxRate,
	FieldTaxAmount,
	FieldTotalAmount,
	FieldLineItems,
	FieldPaymentTerms,
	FieldPurchaseOrder,
}

var canonicalSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[f] = struct{}{}
	}
	return m
}()

// IsCanonicalField reports whether name belongs to the extraction schema.
func IsCanonicalField(name string) bool {
	_, ok := canonicalSet[name]
	return ok
}

// CriticalFields are business-critical to every invoice: when blank they are
// always sent for correction regardless of their stated confidence.
var CriticalFields = []string{
	FieldInvoiceNumber,
	FieldIssueDate,
	FieldSupplierName,
	FieldTotalAmount,
}

// IsCriticalField reports whether name is in the always-correct-when-blank set.
func IsCriticalField(name string) bool {
	for _, f := range CriticalFields {
		if f == name {
			return true
		}
	}
	return false
}

// Correction batch names. Membership is fixed by field name, not dynamic.
const (
	BatchCore      = "core"
	BatchParties   = "parties"
	BatchLineItems = "line_items"
	BatchTax       = "tax"
)

// BatchFields maps each batch name to its member fields. The tax batch is
// region-specific and goes to text correction only.
var BatchFields = map[string][]string{
	BatchCore: {
		FieldInvoiceNumber, FieldIssueDate, FieldDueDate, FieldCurrencyCode,
		FieldSubtotal, FieldTaxAmount, FieldTotalAmount, FieldPaymentTerms,
		FieldPurchaseOrder,
	},
	BatchParties: {
		FieldSupplierName, FieldSupplierAddress, FieldCustomerName,
		FieldCustomerAddress,
	},
	BatchLineItems: {FieldLineItems},
	BatchTax:       {FieldSupplierTaxID, FieldTaxRate},
}

// BatchOrder is the order batches are dispatched in.
var BatchOrder = []string{BatchCore, BatchParties, BatchLineItems, BatchTax}

// TextOnlyBatches never go to the vision client.
var TextOnlyBatches = map[string]struct{}{BatchTax: {}}

// Address sub-keys. Address-shaped fields are always a mapping restricted to
// exactly these five components.
var AddressKeys = []string{"street", "city", "region", "postal_code", "country"}

// IsAddressField reports whether the canonical field holds an address value.
func IsAddressField(name string) bool {
	return name == FieldSupplierAddress || name == FieldCustomerAddress
}

// ProtectedFields are never accepted from an externally supplied patch and are
// excluded from the clear-fields allow-list.
var ProtectedFields = map[string]struct{}{
	"id":                 {},
	"created_at":         {},
	"updated_at":         {},
	"review_version":     {},
	"processing_state":   {},
	"overall_confidence": {},
	"fingerprint":        {},
	"credit_note":        {},
}

// IsProtectedField reports whether name is a protected/system field.
func IsProtectedField(name string) bool {
	_, ok := ProtectedFields[name]
	return ok
}

// DefaultConfidenceThreshold gates which fields are sent for correction.
const DefaultConfidenceThreshold = 0.75
