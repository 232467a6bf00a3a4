package convert

import (
	"context"

	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

var manufacturerRequiredFields = []string{"option_id", "value"}

// ManufacturerConverter converts one manufacturer attribute option into
// a target manufacturer record.
type ManufacturerConverter struct {
	mappings mapping.Service
	logs     runlog.Sink
}

// NewManufacturerConverter wires a manufacturer converter.
func NewManufacturerConverter(mappings mapping.Service, logs runlog.Sink) *ManufacturerConverter {
	return &ManufacturerConverter{mappings: mappings, logs: logs}
}

func (c *ManufacturerConverter) SourceIdentifier(record Record) string {
	return SourceString(record, "option_id")
}

func (c *ManufacturerConverter) Convert(ctx context.Context, mc *Context, data Record) (*Result, error) {
	sourceID := c.SourceIdentifier(data)

	if missing := EmptyRequiredFields(data, manufacturerRequiredFields); len(missing) > 0 {
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityManufacturer, sourceID, missing...))
		return Reject(data), nil
	}

	m, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityManufacturer,
		SourceID:     sourceID,
		Checksum:     mapping.Checksum(data),
	})
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	b.Set("id", m.EntityUUID)
	b.MapValue("name", data, "value", TypeString)
	b.MapValue("link", data, "link", TypeString)

	return &Result{Converted: b.Build(), Unmapped: CloneRecord(data)}, nil
}
