package convert

import (
	"context"

	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

// Defaults carries the target-side fallback identifiers a connection is
// configured with.
type Defaults struct {
	SalesChannelID  string
	CustomerGroupID string
}

var customerRequiredFields = []string{
	"entity_id",
	"email",
	"firstname",
	"lastname",
	"salutation",
}

var addressRequiredFields = []string{
	"firstname",
	"lastname",
	"postcode",
	"city",
	"street",
}

// CustomerConverter converts one denormalized customer record, including
// its nested address sub-records, into a normalized target customer.
// The attempt runs through a linear gate sequence; any gate failure is
// terminal and compensates mappings created earlier in the attempt.
type CustomerConverter struct {
	mappings mapping.Service
	lookups  *lookup.Resolver
	logs     runlog.Sink
	defaults Defaults
}

// NewCustomerConverter wires a customer converter.
func NewCustomerConverter(mappings mapping.Service, lookups *lookup.Resolver, logs runlog.Sink, defaults Defaults) *CustomerConverter {
	return &CustomerConverter{
		mappings: mappings,
		lookups:  lookups,
		logs:     logs,
		defaults: defaults,
	}
}

func (c *CustomerConverter) SourceIdentifier(record Record) string {
	return SourceString(record, "entity_id")
}

func (c *CustomerConverter) Convert(ctx context.Context, mc *Context, data Record) (*Result, error) {
	sourceID := c.SourceIdentifier(data)

	// Gate 1: required fields, checked before any mapping work so the
	// rejection needs no compensation.
	if missing := EmptyRequiredFields(data, customerRequiredFields); len(missing) > 0 {
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityCustomer, sourceID, missing...))
		return Reject(data), nil
	}

	// The source is cloned so consumed marker keys never mutate the
	// caller's record.
	source := CloneRecord(data)

	comp := &Compensations{}
	customerMapping, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityCustomer,
		SourceID:     sourceID,
		Checksum:     mapping.Checksum(data),
	})
	if err != nil {
		return nil, err
	}
	comp.Add(func(ctx context.Context) error {
		return c.mappings.Delete(ctx, customerMapping.EntityUUID, mc.ConnectionID)
	})

	// Secondary mapping: the customer's email resolves to the same
	// target UUID, supporting later lookups by natural key. It shares
	// the customer UUID, so the compensating delete covers it too.
	if _, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityCustomer,
		SourceID:     SourceString(data, "email"),
		EntityUUID:   customerMapping.EntityUUID,
		ParentUUID:   customerMapping.EntityUUID,
	}); err != nil {
		return nil, err
	}

	b := NewBuilder()
	b.Set("id", customerMapping.EntityUUID)
	b.Set("salesChannelId", c.salesChannel(ctx, mc, data))
	b.MapValue("active", data, "is_active", TypeBoolean)
	b.MapValue("email", data, "email", TypeString)
	b.Set("guest", false)
	b.MapValue("title", data, "prefix", TypeString)
	b.MapValue("firstName", data, "firstname", TypeString)
	b.MapValue("lastName", data, "lastname", TypeString)
	b.MapValue("birthday", data, "dob", TypeDatetime)
	b.MapValue("customerNumber", data, "customernumber", TypeString)

	// customerNumber must never be blank in the output even though it is
	// not in the hard-reject set.
	if b.String("customerNumber") == "" {
		b.Set("customerNumber", "number-"+sourceID)
	}

	// Gate 2: salutation.
	salutation := SourceString(data, "salutation")
	salutationID, err := c.lookups.Resolve(ctx, mc.ConnectionID, lookup.NameSalutation, salutation)
	if err != nil {
		return nil, err
	}
	if salutationID == "" {
		c.logs.Record(ctx, runlog.UnknownReference(mc.RunID, EntitySalutation, salutation, EntityCustomer, sourceID))
		if cerr := comp.Run(ctx); cerr != nil {
			return nil, cerr
		}
		return Reject(data), nil
	}
	b.Set("salutationId", salutationID)
	b.Set("groupId", c.defaults.CustomerGroupID)

	// Gate 3: default payment method.
	paymentMethodID, err := c.lookups.Resolve(ctx, mc.ConnectionID, lookup.NamePaymentMethod, "default_payment_method")
	if err != nil {
		return nil, err
	}
	if paymentMethodID == "" {
		c.logs.Record(ctx, runlog.UnknownReference(mc.RunID, EntityPaymentMethod, "default_payment_method", EntityCustomer, sourceID))
		if cerr := comp.Run(ctx); cerr != nil {
			return nil, cerr
		}
		return Reject(data), nil
	}
	b.Set("defaultPaymentMethodId", paymentMethodID)

	if err := c.resolveAddresses(ctx, mc, source, b, customerMapping.EntityUUID, salutationID, sourceID); err != nil {
		return nil, err
	}

	// Gate 4: a customer without usable default addresses is rejected
	// and the attempt's mappings are rolled back.
	if !b.Has("defaultBillingAddressId") || !b.Has("defaultShippingAddressId") {
		if cerr := comp.Run(ctx); cerr != nil {
			return nil, cerr
		}
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityCustomer, sourceID, "address data"))
		return Reject(data), nil
	}

	return &Result{Converted: b.Build(), Unmapped: source}, nil
}

// salesChannel resolves the record's store to a target sales channel,
// falling back to the connection default. Never fatal.
func (c *CustomerConverter) salesChannel(ctx context.Context, mc *Context, data Record) string {
	storeID := SourceString(data, "store_id")
	if storeID != "" {
		if id, err := c.lookups.Resolve(ctx, mc.ConnectionID, lookup.NameSalesChannel, storeID); err == nil && id != "" {
			return id
		}
	}
	return c.defaults.SalesChannelID
}

// resolveAddresses builds target address records and resolves the
// default-billing/default-shipping designation. Addresses failing
// validation or country resolution are dropped entirely; default
// markers are consumed on first match so duplicates never reassign.
func (c *CustomerConverter) resolveAddresses(ctx context.Context, mc *Context, source Record, b *Builder, customerUUID, salutationID, customerSourceID string) error {
	var accepted []Record
	for _, addr := range addressList(source["addresses"]) {
		addrSourceID := SourceString(addr, "entity_id")

		if missing := EmptyRequiredFields(addr, addressRequiredFields); len(missing) > 0 {
			c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityCustomerAddress, addrSourceID, missing...))
			continue
		}

		m, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
			ConnectionID: mc.ConnectionID,
			EntityType:   EntityCustomerAddress,
			SourceID:     addrSourceID,
			ParentUUID:   customerUUID,
		})
		if err != nil {
			return err
		}

		if addrSourceID != "" && SourceString(source, "default_billing_address_id") == addrSourceID {
			b.Set("defaultBillingAddressId", m.EntityUUID)
			delete(source, "default_billing_address_id")
		}
		if addrSourceID != "" && SourceString(source, "default_shipping_address_id") == addrSourceID {
			b.Set("defaultShippingAddressId", m.EntityUUID)
			delete(source, "default_shipping_address_id")
		}

		countryID, err := c.lookups.ResolveCountry(ctx, mc.ConnectionID,
			SourceString(addr, "country_id"),
			SourceString(addr, "country_iso2"),
			SourceString(addr, "country_iso3"))
		if err != nil {
			return err
		}
		if countryID == "" {
			c.logs.Record(ctx, runlog.UnknownReference(mc.RunID, EntityCountry, countryValue(addr), EntityCustomerAddress, addrSourceID))
			continue
		}

		newAddr := Record{
			"id":           m.EntityUUID,
			"customerId":   customerUUID,
			"salutationId": salutationID,
			"countryId":    countryID,
		}
		MapValue(newAddr, "firstName", addr, "firstname", TypeString)
		MapValue(newAddr, "lastName", addr, "lastname", TypeString)
		MapValue(newAddr, "zipcode", addr, "postcode", TypeString)
		MapValue(newAddr, "city", addr, "city", TypeString)
		MapValue(newAddr, "company", addr, "company", TypeString)
		MapValue(newAddr, "street", addr, "street", TypeString)
		MapValue(newAddr, "phoneNumber", addr, "telephone", TypeString)

		accepted = append(accepted, newAddr)
	}

	if len(accepted) == 0 {
		return nil
	}
	b.Set("addresses", accepted)

	// Fallback precedence once all addresses are processed: both
	// defaults missing → first accepted address takes both; otherwise a
	// single missing default mirrors the resolved one.
	hasBilling := b.Has("defaultBillingAddressId")
	hasShipping := b.Has("defaultShippingAddressId")
	switch {
	case !hasBilling && !hasShipping:
		first := SourceString(accepted[0], "id")
		b.Set("defaultBillingAddressId", first)
		b.Set("defaultShippingAddressId", first)
		delete(source, "default_billing_address_id")
		delete(source, "default_shipping_address_id")
		c.logs.Record(ctx, runlog.FieldReassigned(mc.RunID, EntityCustomer, customerSourceID,
			"default billing and shipping address", "first address"))
	case !hasShipping:
		b.Set("defaultShippingAddressId", b.String("defaultBillingAddressId"))
		delete(source, "default_shipping_address_id")
		c.logs.Record(ctx, runlog.FieldReassigned(mc.RunID, EntityCustomer, customerSourceID,
			"default shipping address", "default billing address"))
	case !hasBilling:
		b.Set("defaultBillingAddressId", b.String("defaultShippingAddressId"))
		delete(source, "default_billing_address_id")
		c.logs.Record(ctx, runlog.FieldReassigned(mc.RunID, EntityCustomer, customerSourceID,
			"default billing address", "default shipping address"))
	}
	return nil
}

// addressList normalizes the nested address representation; row sources
// may deliver either []Record or []any.
func addressList(raw any) []Record {
	switch v := raw.(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

// countryValue picks the most specific country identifier present, for
// anomaly reporting.
func countryValue(addr Record) string {
	for _, key := range []string{"country_id", "country_iso2", "country_iso3"} {
		if v := SourceString(addr, key); v != "" {
			return v
		}
	}
	return ""
}
