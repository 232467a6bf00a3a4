// Package runlog produces and collects structured anomaly entries for a
// migration run. The conversion engine appends entries and never reads
// them back; sinks own storage and presentation.
package runlog

import (
	"context"
	"sync"
	"time"
)

// Kind classifies an anomaly entry.
type Kind string

const (
	// KindMissingField marks a mandatory source key that was absent or
	// empty. Always fatal to the current record.
	KindMissingField Kind = "missing_field"

	// KindUnknownReference marks a relational value with no resolvable
	// mapping. Always fatal to the current record.
	KindUnknownReference Kind = "unknown_reference"

	// KindFieldReassigned marks a non-fatal inconsistency that was
	// auto-corrected. Informational only.
	KindFieldReassigned Kind = "field_reassigned"
)

// Entry is one append-only anomaly record.
type Entry struct {
	RunID      string `json:"runId"`
	EntityType string `json:"entityType"`
	SourceID   string `json:"sourceId"`
	Kind       Kind   `json:"kind"`

	// EmptyFields lists the missing/empty keys for missing_field entries.
	EmptyFields []string `json:"emptyFields,omitempty"`

	// Reference data for unknown_reference entries: the referenced
	// entity type and the unresolvable source value, plus the parent
	// record that required it.
	RequiredEntity string `json:"requiredEntity,omitempty"`
	SourceValue    string `json:"sourceValue,omitempty"`
	ParentEntity   string `json:"parentEntity,omitempty"`
	ParentSourceID string `json:"parentSourceId,omitempty"`

	// Reassignment data for field_reassigned entries.
	EmptyField string `json:"emptyField,omitempty"`
	ReplacedBy string `json:"replacedBy,omitempty"`

	RecordedAt time.Time `json:"recordedAt"`
}

// MissingField builds a missing_field entry for a record that lacked
// mandatory keys.
func MissingField(runID, entityType, sourceID string, fields ...string) Entry {
	return Entry{
		RunID:       runID,
		EntityType:  entityType,
		SourceID:    sourceID,
		Kind:        KindMissingField,
		EmptyFields: fields,
		RecordedAt:  time.Now().UTC(),
	}
}

// UnknownReference builds an unknown_reference entry for a relational
// value that resolved to nothing.
func UnknownReference(runID, requiredEntity, sourceValue, parentEntity, parentSourceID string) Entry {
	return Entry{
		RunID:          runID,
		EntityType:     parentEntity,
		SourceID:       parentSourceID,
		Kind:           KindUnknownReference,
		RequiredEntity: requiredEntity,
		SourceValue:    sourceValue,
		ParentEntity:   parentEntity,
		ParentSourceID: parentSourceID,
		RecordedAt:     time.Now().UTC(),
	}
}

// FieldReassigned builds a field_reassigned entry documenting an
// auto-corrected field.
func FieldReassigned(runID, entityType, sourceID, emptyField, replacedBy string) Entry {
	return Entry{
		RunID:      runID,
		EntityType: entityType,
		SourceID:   sourceID,
		Kind:       KindFieldReassigned,
		EmptyField: emptyField,
		ReplacedBy: replacedBy,
		RecordedAt: time.Now().UTC(),
	}
}

// Sink accepts anomaly entries. Record is fire-and-forget from the
// engine's perspective; sinks buffer or drop on their own terms.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// MemorySink collects entries in memory for tests and small runs.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of all recorded entries.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByKind returns recorded entries of one kind.
func (s *MemorySink) ByKind(kind Kind) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
