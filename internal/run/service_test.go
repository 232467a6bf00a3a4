package run

import (
	"context"
	"testing"

	"github.com/cartmigrate/migration-core/internal/convert"
	"github.com/cartmigrate/migration-core/internal/gateway"
	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/profile"
	"github.com/cartmigrate/migration-core/internal/runlog"
	"github.com/cartmigrate/migration-core/internal/staging"
)

// stubSource serves fixed per-entity pages through the row source
// contract.
type stubSource struct {
	records map[string][]gateway.Record
}

func (s *stubSource) Read(ctx context.Context, req *gateway.ReadRequest) (gateway.Iterator[gateway.Record], error) {
	all := s.records[req.Entity]
	start := req.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}
	return gateway.NewSliceIterator(all[start:end]), nil
}

type fixture struct {
	service *Service
	store   *mapping.MemoryStore
	stage   *staging.MemoryProvider
	sink    *runlog.MemorySink
	source  *stubSource
}

func newFixture(t *testing.T, records map[string][]gateway.Record) *fixture {
	t.Helper()

	store := mapping.NewMemoryStore()
	ctx := context.Background()
	seed := map[string]map[string]string{
		lookup.NameSalutation:    {"mr": "uuid-salutation"},
		lookup.NamePaymentMethod: {"default_payment_method": "uuid-payment"},
		lookup.NameSalesChannel:  {"1": "uuid-channel"},
		lookup.NameCountry:       {"DE": "uuid-country"},
	}
	for name, values := range seed {
		for sourceID, target := range values {
			if _, err := store.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
				ConnectionID: "conn-1",
				EntityType:   name,
				SourceID:     sourceID,
				EntityUUID:   target,
			}); err != nil {
				t.Fatalf("seed %s/%s: %v", name, sourceID, err)
			}
		}
	}

	sink := runlog.NewMemorySink()
	registry := convert.NewDefaultRegistry(convert.Deps{
		Mappings: store,
		Lookups:  lookup.NewResolver(store),
		Logs:     sink,
		Defaults: convert.Defaults{SalesChannelID: "uuid-default-channel", CustomerGroupID: "uuid-group"},
	})
	stage := staging.NewMemoryProvider(0)
	source := &stubSource{records: records}

	return &fixture{
		service: NewService(registry, store, source, stage, nil),
		store:   store,
		stage:   stage,
		sink:    sink,
		source:  source,
	}
}

func customerRecord(id, email string) gateway.Record {
	return gateway.Record{
		"entity_id":  id,
		"email":      email,
		"firstname":  "Jane",
		"lastname":   "Doe",
		"salutation": "mr",
		"addresses": []gateway.Record{
			{
				"entity_id":    "a-" + id,
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

func testOptions() *Options {
	return &Options{
		RunID:        "run-1",
		ConnectionID: "conn-1",
		ProfileID:    profile.Magento19,
		PageSize:     2,
	}
}

func TestProcessDataSet(t *testing.T) {
	rejected := customerRecord("3", "no@example.com")
	delete(rejected, "salutation")

	f := newFixture(t, map[string][]gateway.Record{
		"customer": {
			customerRecord("1", "a@example.com"),
			rejected,
			customerRecord("2", "b@example.com"),
		},
	})
	ctx := context.Background()

	result, err := f.service.ProcessDataSet(ctx, testOptions(), "customer")
	if err != nil {
		t.Fatalf("ProcessDataSet: %v", err)
	}
	if result.Read != 3 || result.Converted != 2 || result.Rejected != 1 || result.Skipped != 0 {
		t.Errorf("result = %+v", result)
	}
	// Page size 2 over 3 records stages one batch per non-empty page.
	if len(result.Batches) != 2 {
		t.Errorf("batches = %v", result.Batches)
	}

	envelopes, err := f.stage.GetBatch(ctx, "run-1", result.Batches[0])
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("envelopes = %d", len(envelopes))
	}
	if envelopes[0].EntityType != "customer" || envelopes[0].SourceID != "1" {
		t.Errorf("envelope = %+v", envelopes[0])
	}
	if envelopes[0].Payload["email"] != "a@example.com" {
		t.Errorf("payload email = %v", envelopes[0].Payload["email"])
	}
	if envelopes[0].Checksum == "" {
		t.Error("envelope without checksum")
	}

	if entries := f.sink.ByKind(runlog.KindMissingField); len(entries) != 1 {
		t.Errorf("missing_field entries = %+v", entries)
	}
}

func TestProcessDataSetSkipUnchanged(t *testing.T) {
	records := map[string][]gateway.Record{
		"customer": {customerRecord("1", "a@example.com")},
	}
	f := newFixture(t, records)
	ctx := context.Background()

	opts := testOptions()
	opts.SkipUnchanged = true

	first, err := f.service.ProcessDataSet(ctx, opts, "customer")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Converted != 1 || first.Skipped != 0 {
		t.Errorf("first = %+v", first)
	}

	second, err := f.service.ProcessDataSet(ctx, opts, "customer")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Converted != 0 || second.Skipped != 1 {
		t.Errorf("second = %+v", second)
	}

	// A content change invalidates the stored checksum and reconverts.
	f.source.records["customer"][0]["firstname"] = "Janet"
	third, err := f.service.ProcessDataSet(ctx, opts, "customer")
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if third.Converted != 1 || third.Skipped != 0 {
		t.Errorf("third = %+v", third)
	}
}

func TestProcessDataSetUnknownProfile(t *testing.T) {
	f := newFixture(t, nil)
	opts := testOptions()
	opts.ProfileID = "magento-0.9"

	if _, err := f.service.ProcessDataSet(context.Background(), opts, "customer"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProcessDataSetUnknownEntity(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.service.ProcessDataSet(context.Background(), testOptions(), "order"); err == nil {
		t.Error("expected error for unregistered entity")
	}
}

func TestProcessSelection(t *testing.T) {
	f := newFixture(t, map[string][]gateway.Record{
		"customer": {customerRecord("1", "a@example.com")},
		"newsletter_recipient": {
			{
				"subscriber_id":     "42",
				"subscriber_email":  "a@example.com",
				"subscriber_status": "1",
				"store_id":          "1",
			},
		},
	})
	ctx := context.Background()

	results, err := f.service.ProcessSelection(ctx, testOptions(), "customers-orders")
	if err != nil {
		t.Fatalf("ProcessSelection: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Entity != "customer" || results[1].Entity != "newsletter_recipient" {
		t.Errorf("order = %s, %s", results[0].Entity, results[1].Entity)
	}
	if results[0].Converted != 1 || results[1].Converted != 1 {
		t.Errorf("results = %+v", results)
	}

	if _, err := f.service.ProcessSelection(ctx, testOptions(), "nope"); err == nil {
		t.Error("expected error for unknown selection")
	}
}

func TestProcessDataSetCancellation(t *testing.T) {
	f := newFixture(t, map[string][]gateway.Record{
		"customer": {customerRecord("1", "a@example.com")},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.service.ProcessDataSet(ctx, testOptions(), "customer"); err == nil {
		t.Error("expected context error")
	}
}
