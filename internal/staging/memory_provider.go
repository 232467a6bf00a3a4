package staging

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryRun struct {
	batches    map[string][]Envelope
	totalBytes int64
}

// MemoryProvider stores staged batches in process memory with a strict
// byte cap.
type MemoryProvider struct {
	maxBytes int64

	mu   sync.Mutex
	runs map[string]*memoryRun
}

// NewMemoryProvider creates a memory-backed staging provider.
func NewMemoryProvider(maxBytes int64) *MemoryProvider {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryCapBytes
	}
	return &MemoryProvider{
		maxBytes: maxBytes,
		runs:     make(map[string]*memoryRun),
	}
}

func (p *MemoryProvider) ID() string { return ProviderMemory }

func (p *MemoryProvider) ensureRun(runID string) *memoryRun {
	if run, ok := p.runs[runID]; ok {
		return run
	}
	run := &memoryRun{batches: make(map[string][]Envelope)}
	p.runs[runID] = run
	return run
}

func (p *MemoryProvider) PutBatch(ctx context.Context, req *PutBatchRequest) (*PutBatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("staging: run id is required")
	}

	size, err := envelopeSizeBytes(req.Records)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	run := p.ensureRun(req.RunID)
	if run.totalBytes+size > p.maxBytes {
		return nil, fmt.Errorf("staging: run %s exceeds memory cap (%d bytes)", req.RunID, p.maxBytes)
	}

	batchSeq := req.BatchSeq
	if batchSeq <= 0 {
		batchSeq = len(run.batches)
	}
	batchRef := batchKey(req.Entity, batchSeq)

	run.batches[batchRef] = cloneEnvelopes(req.Records)
	run.totalBytes += size

	return &PutBatchResult{
		BatchRef: batchRef,
		Stats: BatchStats{
			Records: len(req.Records),
			Bytes:   size,
		},
	}, nil
}

func (p *MemoryProvider) ListBatches(ctx context.Context, runID, entity string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[runID]
	if !ok {
		return []string{}, nil
	}

	refs := make([]string, 0, len(run.batches))
	for ref := range run.batches {
		if entity != "" && !hasEntityPrefix(ref, entity) {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

func (p *MemoryProvider) GetBatch(ctx context.Context, runID, batchRef string) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[runID]
	if !ok {
		return nil, fmt.Errorf("staging: run not found: %s", runID)
	}
	records, ok := run.batches[batchRef]
	if !ok {
		return nil, fmt.Errorf("staging: batch not found: %s", batchRef)
	}
	return cloneEnvelopes(records), nil
}

func (p *MemoryProvider) FinalizeRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.runs, runID)
	return nil
}

func hasEntityPrefix(batchRef, entity string) bool {
	return len(batchRef) > len(entity) && batchRef[:len(entity)] == entity && batchRef[len(entity)] == '/'
}
