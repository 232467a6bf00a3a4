package convert

import (
	"context"
	"testing"

	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

const (
	testConnection = "conn-1"
	testRun        = "run-1"

	salutationUUID   = "0190b9e0-0000-7000-8000-000000000001"
	paymentUUID      = "0190b9e0-0000-7000-8000-000000000002"
	channelUUID      = "0190b9e0-0000-7000-8000-000000000003"
	countryUUID      = "0190b9e0-0000-7000-8000-000000000004"
	countryISO2UUID  = "0190b9e0-0000-7000-8000-000000000005"
	defaultChannelID = "0190b9e0-0000-7000-8000-00000000000d"
	defaultGroupID   = "0190b9e0-0000-7000-8000-00000000000e"
)

type customerFixture struct {
	store *mapping.MemoryStore
	sink  *runlog.MemorySink
	conv  *CustomerConverter
	mc    *Context
	// premapped counts the seeded lookup entries so tests can assert
	// that compensation restored the store to its baseline.
	premapped int
}

func newCustomerFixture(t *testing.T) *customerFixture {
	t.Helper()

	store := mapping.NewMemoryStore()
	seed := map[string]map[string]string{
		lookup.NameSalutation:    {"mr": salutationUUID},
		lookup.NamePaymentMethod: {"default_payment_method": paymentUUID},
		lookup.NameSalesChannel:  {"1": channelUUID},
		lookup.NameCountry:       {"81": countryUUID, "DE": countryISO2UUID},
	}
	ctx := context.Background()
	premapped := 0
	for name, values := range seed {
		for source, target := range values {
			if _, err := store.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
				ConnectionID: testConnection,
				EntityType:   name,
				SourceID:     source,
				EntityUUID:   target,
			}); err != nil {
				t.Fatalf("seed %s/%s: %v", name, source, err)
			}
			premapped++
		}
	}

	sink := runlog.NewMemorySink()
	conv := NewCustomerConverter(store, lookup.NewResolver(store), sink, Defaults{
		SalesChannelID:  defaultChannelID,
		CustomerGroupID: defaultGroupID,
	})
	return &customerFixture{
		store: store,
		sink:  sink,
		conv:  conv,
		mc: &Context{
			RunID:        testRun,
			ConnectionID: testConnection,
			ProfileID:    "magento-1.9",
			EntityType:   EntityCustomer,
		},
		premapped: premapped,
	}
}

func validCustomer() Record {
	return Record{
		"entity_id":                   "7",
		"email":                       "jane@example.com",
		"firstname":                   "Jane",
		"lastname":                    "Doe",
		"salutation":                  "mr",
		"store_id":                    "1",
		"is_active":                   "1",
		"dob":                         "1990-04-01",
		"default_billing_address_id":  "11",
		"default_shipping_address_id": "12",
		"addresses": []Record{
			{
				"entity_id":  "11",
				"firstname":  "Jane",
				"lastname":   "Doe",
				"postcode":   "48624",
				"city":       "Schöppingen",
				"street":     "Ebbinghoff 10",
				"country_id": "81",
				"telephone":  "0255512345",
			},
			{
				"entity_id":    "12",
				"firstname":    "Jane",
				"lastname":     "Doe",
				"postcode":     "10115",
				"city":         "Berlin",
				"street":       "Invalidenstr. 1",
				"country_iso2": "DE",
			},
		},
	}
}

func TestCustomerConvert(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	result, err := f.conv.Convert(ctx, f.mc, validCustomer())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatalf("expected success, got rejection: %+v", result.Unmapped)
	}

	out := result.Converted
	if out["email"] != "jane@example.com" {
		t.Errorf("email = %v", out["email"])
	}
	if out["salutationId"] != salutationUUID {
		t.Errorf("salutationId = %v", out["salutationId"])
	}
	if out["defaultPaymentMethodId"] != paymentUUID {
		t.Errorf("defaultPaymentMethodId = %v", out["defaultPaymentMethodId"])
	}
	if out["salesChannelId"] != channelUUID {
		t.Errorf("salesChannelId = %v, want premapped store channel", out["salesChannelId"])
	}
	if out["groupId"] != defaultGroupID {
		t.Errorf("groupId = %v", out["groupId"])
	}
	if out["active"] != true {
		t.Errorf("active = %v", out["active"])
	}
	if out["guest"] != false {
		t.Errorf("guest = %v", out["guest"])
	}
	if out["birthday"] != "1990-04-01T00:00:00Z" {
		t.Errorf("birthday = %v", out["birthday"])
	}
	if out["customerNumber"] != "number-7" {
		t.Errorf("customerNumber = %v, want generated fallback", out["customerNumber"])
	}

	addresses, ok := out["addresses"].([]Record)
	if !ok || len(addresses) != 2 {
		t.Fatalf("addresses = %v", out["addresses"])
	}
	if addresses[0]["countryId"] != countryUUID {
		t.Errorf("address 0 countryId = %v", addresses[0]["countryId"])
	}
	if addresses[1]["countryId"] != countryISO2UUID {
		t.Errorf("address 1 countryId = %v", addresses[1]["countryId"])
	}
	if addresses[0]["zipcode"] != "48624" {
		t.Errorf("address 0 zipcode = %v", addresses[0]["zipcode"])
	}
	if addresses[0]["phoneNumber"] != "0255512345" {
		t.Errorf("address 0 phoneNumber = %v", addresses[0]["phoneNumber"])
	}

	if out["defaultBillingAddressId"] != addresses[0]["id"] {
		t.Errorf("defaultBillingAddressId = %v, want %v", out["defaultBillingAddressId"], addresses[0]["id"])
	}
	if out["defaultShippingAddressId"] != addresses[1]["id"] {
		t.Errorf("defaultShippingAddressId = %v, want %v", out["defaultShippingAddressId"], addresses[1]["id"])
	}

	// Consumed marker keys must be gone from the unmapped leftovers but
	// untouched in the caller's record.
	if _, ok := result.Unmapped["default_billing_address_id"]; ok {
		t.Errorf("default_billing_address_id not consumed")
	}
	if _, ok := result.Unmapped["default_shipping_address_id"]; ok {
		t.Errorf("default_shipping_address_id not consumed")
	}

	if entries := f.sink.Entries(); len(entries) != 0 {
		t.Errorf("unexpected run log entries: %+v", entries)
	}

	// Identity: customer mapping plus email secondary share one UUID.
	m, err := f.store.Get(ctx, testConnection, EntityCustomer, "7")
	if err != nil || m == nil {
		t.Fatalf("customer mapping missing: %v", err)
	}
	byEmail, err := f.store.Get(ctx, testConnection, EntityCustomer, "jane@example.com")
	if err != nil || byEmail == nil {
		t.Fatalf("email mapping missing: %v", err)
	}
	if byEmail.EntityUUID != m.EntityUUID {
		t.Errorf("email mapping UUID = %s, want %s", byEmail.EntityUUID, m.EntityUUID)
	}
	if out["id"] != m.EntityUUID {
		t.Errorf("output id = %v, want %s", out["id"], m.EntityUUID)
	}
}

func TestCustomerConvertIdempotent(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	first, err := f.conv.Convert(ctx, f.mc, validCustomer())
	if err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	second, err := f.conv.Convert(ctx, f.mc, validCustomer())
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if first.Converted["id"] != second.Converted["id"] {
		t.Errorf("reconversion changed identity: %v vs %v", first.Converted["id"], second.Converted["id"])
	}
	firstAddrs := first.Converted["addresses"].([]Record)
	secondAddrs := second.Converted["addresses"].([]Record)
	if firstAddrs[0]["id"] != secondAddrs[0]["id"] {
		t.Errorf("reconversion changed address identity")
	}
}

func TestCustomerConvertMissingRequiredField(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	delete(data, "firstname")
	data["lastname"] = ""

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !result.Rejected() {
		t.Fatal("expected rejection")
	}

	entries := f.sink.ByKind(runlog.KindMissingField)
	if len(entries) != 1 {
		t.Fatalf("missing_field entries = %d", len(entries))
	}
	if got := entries[0].EmptyFields; len(got) != 2 || got[0] != "firstname" || got[1] != "lastname" {
		t.Errorf("EmptyFields = %v", got)
	}

	// Rejection happened before identity assignment, so no mapping exists.
	if m, _ := f.store.Get(ctx, testConnection, EntityCustomer, "7"); m != nil {
		t.Error("mapping created for rejected record")
	}
	if f.store.Len() != f.premapped {
		t.Errorf("store size = %d, want %d", f.store.Len(), f.premapped)
	}
}

func TestCustomerConvertUnknownSalutation(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	data["salutation"] = "lord"

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !result.Rejected() {
		t.Fatal("expected rejection")
	}

	entries := f.sink.ByKind(runlog.KindUnknownReference)
	if len(entries) != 1 {
		t.Fatalf("unknown_reference entries = %d", len(entries))
	}
	e := entries[0]
	if e.RequiredEntity != EntitySalutation || e.SourceValue != "lord" {
		t.Errorf("entry = %+v", e)
	}
	if e.ParentEntity != EntityCustomer || e.ParentSourceID != "7" {
		t.Errorf("parent = %s/%s", e.ParentEntity, e.ParentSourceID)
	}

	// The compensating delete must sweep the customer mapping and its
	// email secondary.
	if m, _ := f.store.Get(ctx, testConnection, EntityCustomer, "7"); m != nil {
		t.Error("customer mapping survived compensation")
	}
	if m, _ := f.store.Get(ctx, testConnection, EntityCustomer, "jane@example.com"); m != nil {
		t.Error("email mapping survived compensation")
	}
	if f.store.Len() != f.premapped {
		t.Errorf("store size = %d, want %d", f.store.Len(), f.premapped)
	}
}

func TestCustomerConvertInvalidAddressDropped(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	addrs := data["addresses"].([]Record)
	addrs[1]["city"] = ""

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatal("expected success with one surviving address")
	}

	addresses := result.Converted["addresses"].([]Record)
	if len(addresses) != 1 {
		t.Fatalf("addresses = %d, want 1", len(addresses))
	}

	missing := f.sink.ByKind(runlog.KindMissingField)
	if len(missing) != 1 || missing[0].EntityType != EntityCustomerAddress || missing[0].SourceID != "12" {
		t.Errorf("missing_field entries = %+v", missing)
	}

	// The shipping marker pointed at the dropped address; the surviving
	// billing default must be mirrored and the correction logged.
	if result.Converted["defaultShippingAddressId"] != result.Converted["defaultBillingAddressId"] {
		t.Errorf("shipping default not mirrored from billing")
	}
	reassigned := f.sink.ByKind(runlog.KindFieldReassigned)
	if len(reassigned) != 1 {
		t.Fatalf("field_reassigned entries = %d", len(reassigned))
	}
	if reassigned[0].EmptyField != "default shipping address" {
		t.Errorf("EmptyField = %s", reassigned[0].EmptyField)
	}
}

func TestCustomerConvertUnknownCountryDropsAddress(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	addrs := data["addresses"].([]Record)
	addrs[1]["country_iso2"] = "XX"

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatal("expected success")
	}
	if got := len(result.Converted["addresses"].([]Record)); got != 1 {
		t.Fatalf("addresses = %d, want 1", got)
	}

	entries := f.sink.ByKind(runlog.KindUnknownReference)
	if len(entries) != 1 {
		t.Fatalf("unknown_reference entries = %d", len(entries))
	}
	e := entries[0]
	if e.RequiredEntity != EntityCountry || e.SourceValue != "XX" {
		t.Errorf("entry = %+v", e)
	}
	if e.ParentEntity != EntityCustomerAddress || e.ParentSourceID != "12" {
		t.Errorf("parent = %s/%s", e.ParentEntity, e.ParentSourceID)
	}
}

func TestCustomerConvertNoUsableAddresses(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	for _, addr := range data["addresses"].([]Record) {
		addr["postcode"] = ""
	}

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !result.Rejected() {
		t.Fatal("expected rejection")
	}

	// One missing_field per dropped address plus the terminal customer
	// rejection entry.
	missing := f.sink.ByKind(runlog.KindMissingField)
	if len(missing) != 3 {
		t.Fatalf("missing_field entries = %d, want 3", len(missing))
	}
	last := missing[2]
	if last.EntityType != EntityCustomer || len(last.EmptyFields) != 1 || last.EmptyFields[0] != "address data" {
		t.Errorf("terminal entry = %+v", last)
	}

	if f.store.Len() != f.premapped {
		t.Errorf("store size = %d after compensation, want %d", f.store.Len(), f.premapped)
	}
}

func TestCustomerConvertDefaultFallbackFirstAddress(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	delete(data, "default_billing_address_id")
	delete(data, "default_shipping_address_id")

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatal("expected success")
	}

	addresses := result.Converted["addresses"].([]Record)
	first := addresses[0]["id"]
	if result.Converted["defaultBillingAddressId"] != first {
		t.Errorf("defaultBillingAddressId = %v, want first address", result.Converted["defaultBillingAddressId"])
	}
	if result.Converted["defaultShippingAddressId"] != first {
		t.Errorf("defaultShippingAddressId = %v, want first address", result.Converted["defaultShippingAddressId"])
	}

	reassigned := f.sink.ByKind(runlog.KindFieldReassigned)
	if len(reassigned) != 1 {
		t.Fatalf("field_reassigned entries = %d", len(reassigned))
	}
}

func TestCustomerConvertShippingOnlyMirrorsBilling(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	delete(data, "default_billing_address_id")

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatal("expected success")
	}
	if result.Converted["defaultBillingAddressId"] != result.Converted["defaultShippingAddressId"] {
		t.Errorf("billing default not mirrored from shipping")
	}
	reassigned := f.sink.ByKind(runlog.KindFieldReassigned)
	if len(reassigned) != 1 || reassigned[0].EmptyField != "default billing address" {
		t.Errorf("field_reassigned = %+v", reassigned)
	}
}

func TestCustomerConvertSalesChannelFallback(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	data["store_id"] = "99" // no premapping

	result, err := f.conv.Convert(ctx, f.mc, data)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Rejected() {
		t.Fatal("expected success, channel fallback is never fatal")
	}
	if result.Converted["salesChannelId"] != defaultChannelID {
		t.Errorf("salesChannelId = %v, want connection default", result.Converted["salesChannelId"])
	}
}

func TestCustomerConvertKeepsCallerRecordIntact(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	data := validCustomer()
	if _, err := f.conv.Convert(ctx, f.mc, data); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if _, ok := data["default_billing_address_id"]; !ok {
		t.Error("caller's record was mutated")
	}
}
