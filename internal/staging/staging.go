// Package staging stores converted records between conversion and the
// separate write-back step. Providers are pluggable: memory for tests
// and small runs, object storage for everything else.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider IDs.
const (
	ProviderMemory = "memory"
	ProviderMinIO  = "object.minio"

	// DefaultMemoryCapBytes is the max bytes allowed for the in-memory provider.
	DefaultMemoryCapBytes int64 = 4 * 1024 * 1024
)

// Envelope wraps one converted record with run metadata.
type Envelope struct {
	EntityType  string         `json:"entityType"`
	SourceID    string         `json:"sourceId"`
	Checksum    string         `json:"checksum,omitempty"`
	Payload     map[string]any `json:"payload"`
	ConvertedAt time.Time      `json:"convertedAt"`
}

// BatchStats summarizes a staged batch.
type BatchStats struct {
	Records int   `json:"records"`
	Bytes   int64 `json:"bytes"`
}

// PutBatchRequest stages one batch of converted records for a run.
type PutBatchRequest struct {
	RunID    string
	Entity   string
	BatchSeq int
	Records  []Envelope
}

// PutBatchResult is returned after staging a batch.
type PutBatchResult struct {
	BatchRef string
	Stats    BatchStats
}

// Provider is a pluggable staging backend.
type Provider interface {
	ID() string
	PutBatch(ctx context.Context, req *PutBatchRequest) (*PutBatchResult, error)
	ListBatches(ctx context.Context, runID, entity string) ([]string, error)
	GetBatch(ctx context.Context, runID, batchRef string) ([]Envelope, error)
	FinalizeRun(ctx context.Context, runID string) error
}

// NewRunID creates an opaque run identifier.
func NewRunID() string {
	return "run-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// batchKey creates a deterministic batch ref within a run.
func batchKey(entity string, seq int) string {
	if entity == "" {
		entity = "batch"
	}
	return fmt.Sprintf("%s/%06d.jsonl", entity, seq)
}

func envelopeSizeBytes(records []Envelope) (int64, error) {
	var total int64
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("measure envelope: %w", err)
		}
		total += int64(len(data)) + 1
	}
	return total, nil
}

func cloneEnvelopes(records []Envelope) []Envelope {
	out := make([]Envelope, len(records))
	copy(out, records)
	return out
}
