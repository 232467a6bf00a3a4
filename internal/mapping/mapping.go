// Package mapping provides the identity mapping gateway: a persistent
// (connection, entity-type, source-id) → stable target UUID store with
// atomic get-or-create semantics, enabling idempotent re-runs.
package mapping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Mapping links one source-platform record to its stable target UUID.
type Mapping struct {
	EntityUUID   string
	ConnectionID string
	EntityType   string
	SourceID     string

	// ParentUUID links a secondary mapping (e.g. customer-by-email) to
	// the primary mapping's target UUID.
	ParentUUID string

	// Checksum captures the source content at the time of the mapping,
	// used to skip unchanged records on re-runs.
	Checksum string
}

// GetOrCreateRequest describes one idempotent mapping upsert.
type GetOrCreateRequest struct {
	ConnectionID string
	EntityType   string
	SourceID     string

	// EntityUUID presets the target UUID on first creation. Premapping
	// writers use this; normal conversions leave it empty and receive a
	// freshly generated UUID.
	EntityUUID string

	ParentUUID string
	Checksum   string
}

// Service is the identity mapping gateway the conversion engine depends
// on. Implementations must provide atomic get-or-create per key so
// concurrent conversions of the same source id converge on one UUID.
type Service interface {
	// GetOrCreate returns the existing mapping for the key or creates
	// one with a stable freshly generated UUID.
	GetOrCreate(ctx context.Context, req *GetOrCreateRequest) (*Mapping, error)

	// Get returns the mapping for the key, or nil when absent.
	Get(ctx context.Context, connectionID, entityType, sourceID string) (*Mapping, error)

	// Delete removes a mapping by target UUID within a connection. Used
	// as the compensating action when a conversion aborts after the
	// mapping was already created.
	Delete(ctx context.Context, entityUUID, connectionID string) error
}

// Checksum computes a canonical SHA-256 over a source record. Key order
// is fixed by the JSON encoder's map sorting, so equal records always
// produce equal checksums.
func Checksum(record map[string]any) string {
	data, err := json.Marshal(sortKeys(record))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sortKeys normalizes nested records so the marshalled form is stable.
// encoding/json already sorts map keys; this flattens non-map containers
// that could carry maps.
func sortKeys(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for _, k := range keys {
			out[k] = sortKeys(v[k])
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sortKeys(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sortKeys(item)
		}
		return out
	default:
		return v
	}
}
