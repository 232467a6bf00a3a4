package convert

import (
	"context"

	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

var categoryRequiredFields = []string{"entity_id", "name"}

// CategoryConverter converts one source category. Parents must already
// have been converted (the row source delivers categories level by
// level), so a parent reference is resolved via the mapping read path
// and an unresolved parent rejects the record.
type CategoryConverter struct {
	mappings mapping.Service
	logs     runlog.Sink
}

// NewCategoryConverter wires a category converter.
func NewCategoryConverter(mappings mapping.Service, logs runlog.Sink) *CategoryConverter {
	return &CategoryConverter{mappings: mappings, logs: logs}
}

func (c *CategoryConverter) SourceIdentifier(record Record) string {
	return SourceString(record, "entity_id")
}

func (c *CategoryConverter) Convert(ctx context.Context, mc *Context, data Record) (*Result, error) {
	sourceID := c.SourceIdentifier(data)

	if missing := EmptyRequiredFields(data, categoryRequiredFields); len(missing) > 0 {
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityCategory, sourceID, missing...))
		return Reject(data), nil
	}

	// Parent resolution happens before identity assignment: an orphaned
	// category creates no mapping and needs no compensation.
	parentUUID := ""
	if parentID := SourceString(data, "parent_id"); parentID != "" && parentID != "0" {
		parent, err := c.mappings.Get(ctx, mc.ConnectionID, EntityCategory, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			c.logs.Record(ctx, runlog.UnknownReference(mc.RunID, EntityCategory, parentID, EntityCategory, sourceID))
			return Reject(data), nil
		}
		parentUUID = parent.EntityUUID
	}

	m, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityCategory,
		SourceID:     sourceID,
		ParentUUID:   parentUUID,
		Checksum:     mapping.Checksum(data),
	})
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	b.Set("id", m.EntityUUID)
	if parentUUID != "" {
		b.Set("parentId", parentUUID)
	}
	b.MapValue("name", data, "name", TypeString)
	b.MapValue("description", data, "description", TypeString)
	b.MapValue("active", data, "is_active", TypeBoolean)
	b.MapValue("visible", data, "include_in_menu", TypeBoolean)

	return &Result{Converted: b.Build(), Unmapped: CloneRecord(data)}, nil
}
