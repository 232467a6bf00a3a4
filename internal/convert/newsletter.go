package convert

import (
	"context"

	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

var newsletterRequiredFields = []string{"subscriber_id", "subscriber_email", "subscriber_status"}

// NewsletterStatuses maps source subscriber status codes to target
// status values. The table differs between source platform versions, so
// each registered converter variant carries its own copy. The variant
// is a configuration record, not a subtype.
type NewsletterStatuses struct {
	ByCode  map[string]string
	Default string
}

// Magento19NewsletterStatuses is the 1.x status table.
var Magento19NewsletterStatuses = NewsletterStatuses{
	ByCode: map[string]string{
		"1": "optIn",
		"3": "optOut",
	},
	Default: "notSet",
}

// Magento2NewsletterStatuses is the 2.x status table, which adds the
// not-activated and unconfirmed codes.
var Magento2NewsletterStatuses = NewsletterStatuses{
	ByCode: map[string]string{
		"1": "optIn",
		"2": "notSet",
		"3": "optOut",
		"4": "notSet",
	},
	Default: "notSet",
}

// NewsletterConverter converts one newsletter subscriber. The target
// sales channel is mandatory: a store with no premapped channel rejects
// the record.
type NewsletterConverter struct {
	mappings mapping.Service
	lookups  *lookup.Resolver
	logs     runlog.Sink
	statuses NewsletterStatuses
}

// NewNewsletterConverter wires a newsletter recipient converter with a
// per-platform-version status table.
func NewNewsletterConverter(mappings mapping.Service, lookups *lookup.Resolver, logs runlog.Sink, statuses NewsletterStatuses) *NewsletterConverter {
	return &NewsletterConverter{
		mappings: mappings,
		lookups:  lookups,
		logs:     logs,
		statuses: statuses,
	}
}

func (c *NewsletterConverter) SourceIdentifier(record Record) string {
	return SourceString(record, "subscriber_id")
}

func (c *NewsletterConverter) Convert(ctx context.Context, mc *Context, data Record) (*Result, error) {
	sourceID := c.SourceIdentifier(data)

	if missing := EmptyRequiredFields(data, newsletterRequiredFields); len(missing) > 0 {
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityNewsletter, sourceID, missing...))
		return Reject(data), nil
	}

	comp := &Compensations{}
	m, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityNewsletter,
		SourceID:     sourceID,
		Checksum:     mapping.Checksum(data),
	})
	if err != nil {
		return nil, err
	}
	comp.Add(func(ctx context.Context) error {
		return c.mappings.Delete(ctx, m.EntityUUID, mc.ConnectionID)
	})

	storeID := SourceString(data, "store_id")
	salesChannelID, err := c.lookups.Resolve(ctx, mc.ConnectionID, lookup.NameSalesChannel, storeID)
	if err != nil {
		return nil, err
	}
	if salesChannelID == "" {
		c.logs.Record(ctx, runlog.UnknownReference(mc.RunID, EntitySalesChannel, storeID, EntityNewsletter, sourceID))
		if cerr := comp.Run(ctx); cerr != nil {
			return nil, cerr
		}
		return Reject(data), nil
	}

	status, ok := c.statuses.ByCode[SourceString(data, "subscriber_status")]
	if !ok {
		status = c.statuses.Default
	}

	b := NewBuilder()
	b.Set("id", m.EntityUUID)
	b.Set("salesChannelId", salesChannelID)
	b.Set("status", status)
	b.MapValue("email", data, "subscriber_email", TypeString)
	b.MapValue("firstName", data, "firstname", TypeString)
	b.MapValue("lastName", data, "lastname", TypeString)
	b.MapValue("confirmedAt", data, "change_status_at", TypeDatetime)

	return &Result{Converted: b.Build(), Unmapped: CloneRecord(data)}, nil
}
