package mapping

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps mappings in process memory. It backs unit tests and
// single-shot runs; durable deployments use PostgresStore.
type MemoryStore struct {
	mu    sync.Mutex
	byKey map[string]*Mapping
}

// NewMemoryStore creates an empty in-memory mapping store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]*Mapping)}
}

func mappingKey(connectionID, entityType, sourceID string) string {
	return connectionID + "\x00" + entityType + "\x00" + sourceID
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, req *GetOrCreateRequest) (*Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey(req.ConnectionID, req.EntityType, req.SourceID)
	if existing, ok := s.byKey[key]; ok {
		if req.Checksum != "" {
			existing.Checksum = req.Checksum
		}
		clone := *existing
		return &clone, nil
	}

	entityUUID := req.EntityUUID
	if entityUUID == "" {
		entityUUID = uuid.NewString()
	}

	m := &Mapping{
		EntityUUID:   entityUUID,
		ConnectionID: req.ConnectionID,
		EntityType:   req.EntityType,
		SourceID:     req.SourceID,
		ParentUUID:   req.ParentUUID,
		Checksum:     req.Checksum,
	}
	s.byKey[key] = m

	clone := *m
	return &clone, nil
}

func (s *MemoryStore) Get(ctx context.Context, connectionID, entityType, sourceID string) (*Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byKey[mappingKey(connectionID, entityType, sourceID)]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

// Delete removes every mapping carrying the target UUID within the
// connection. Secondary mappings (e.g. customer-by-email) share the
// primary's UUID, so a compensating delete sweeps them too.
func (s *MemoryStore) Delete(ctx context.Context, entityUUID, connectionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, m := range s.byKey {
		if m.EntityUUID == entityUUID && m.ConnectionID == connectionID {
			delete(s.byKey, key)
		}
	}
	return nil
}

// Len reports the number of stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
