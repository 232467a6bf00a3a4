// Package convert implements the entity conversion engine. It takes one
// denormalized source record, validates it, resolves every relationship
// it depends on, assigns stable cross-system identifiers and emits a
// normalized target record, or rejects it with an auditable reason.
package convert

import "context"

// Record represents a single data record as key-value pairs.
type Record = map[string]any

// Default entity type identifiers shared across converters.
const (
	EntityCustomer        = "customer"
	EntityCustomerAddress = "customer_address"
	EntityCurrency        = "currency"
	EntityCategory        = "category"
	EntityManufacturer    = "manufacturer"
	EntityNewsletter      = "newsletter_recipient"
	EntityProduct         = "product"
	EntitySalutation      = "salutation"
	EntityPaymentMethod   = "payment_method"
	EntitySalesChannel    = "sales_channel"
	EntityCountry         = "country"
)

// Context identifies one conversion attempt within a migration run.
type Context struct {
	RunID        string
	ConnectionID string
	ProfileID    string
	EntityType   string
}

// Result is the outcome of a single conversion attempt.
// A nil Converted record means the attempt was rejected; Unmapped always
// carries the source data for diagnostics. On success Unmapped holds the
// source record minus any keys the converter consumed.
type Result struct {
	Converted Record
	Unmapped  Record
}

// Rejected reports whether the attempt produced no target record.
func (r *Result) Rejected() bool { return r == nil || r.Converted == nil }

// Reject builds a rejection result carrying the original source record.
func Reject(source Record) *Result {
	return &Result{Unmapped: source}
}

// Converter transforms one source record of a specific entity type into
// a target record. Implementations are stateless across records; all
// shared state lives behind the mapping service.
type Converter interface {
	// SourceIdentifier extracts the source-platform identifier from a
	// raw record.
	SourceIdentifier(record Record) string

	// Convert runs one conversion attempt. Fatal data problems are
	// reported as a rejection Result, not as an error; the error return
	// is reserved for infrastructure failures (mapping store outages).
	Convert(ctx context.Context, mc *Context, record Record) (*Result, error)
}

// CloneRecord returns a shallow copy of a record. Converters clone the
// source before consuming marker keys so callers keep the original.
func CloneRecord(record Record) Record {
	if record == nil {
		return nil
	}
	out := make(Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
