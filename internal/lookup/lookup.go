// Package lookup resolves enumerated source-platform values (salutation
// codes, payment-method keys, country identifiers, store ids) to target
// identifiers via pre-populated reference mappings.
package lookup

import (
	"context"
	"fmt"

	"github.com/cartmigrate/migration-core/internal/mapping"
)

// Lookup table names. Each name spans one premapping namespace inside
// the mapping store.
const (
	NameSalutation       = "salutation"
	NamePaymentMethod    = "payment_method"
	NameOrderState       = "order_state"
	NameSalesChannel     = "sales_channel"
	NameNewsletterStatus = "newsletter_status"
	NameCountry          = "country"
)

// Resolver reads premapped reference values through the mapping
// gateway's read path. A failed resolution returns "" and no error; the
// caller decides whether that is fatal and emits the anomaly.
type Resolver struct {
	mappings mapping.Service
}

// NewResolver creates a lookup resolver over a mapping service.
func NewResolver(mappings mapping.Service) *Resolver {
	return &Resolver{mappings: mappings}
}

// Resolve returns the target identifier premapped for a source value,
// or "" when no mapping exists.
func (r *Resolver) Resolve(ctx context.Context, connectionID, name, sourceValue string) (string, error) {
	if sourceValue == "" {
		return "", nil
	}
	m, err := r.mappings.Get(ctx, connectionID, name, sourceValue)
	if err != nil {
		return "", fmt.Errorf("lookup %s/%s: %w", name, sourceValue, err)
	}
	if m == nil {
		return "", nil
	}
	return m.EntityUUID, nil
}

// ResolveCountry resolves a country by any of its three source
// identifiers. Matching order: internal id, then ISO2, then ISO3; the
// first hit wins.
func (r *Resolver) ResolveCountry(ctx context.Context, connectionID, internalID, iso2, iso3 string) (string, error) {
	for _, candidate := range []string{internalID, iso2, iso3} {
		targetID, err := r.Resolve(ctx, connectionID, NameCountry, candidate)
		if err != nil {
			return "", err
		}
		if targetID != "" {
			return targetID, nil
		}
	}
	return "", nil
}
