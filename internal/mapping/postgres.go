package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists mappings in Postgres. Get-or-create is a single
// INSERT ... ON CONFLICT ... RETURNING statement so parallel workers
// converting the same source id converge on one target UUID.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed mapping store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the mapping table. Callers apply it during
// deployment provisioning.
func Schema() string {
	return `CREATE TABLE IF NOT EXISTS migration_mapping (
	connection_id TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	entity_uuid   UUID NOT NULL,
	parent_uuid   UUID,
	checksum      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (connection_id, entity_type, source_id)
);
CREATE INDEX IF NOT EXISTS migration_mapping_uuid_idx ON migration_mapping (entity_uuid);`
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, req *GetOrCreateRequest) (*Mapping, error) {
	entityUUID := req.EntityUUID
	if entityUUID == "" {
		entityUUID = uuid.NewString()
	}

	// The no-op update makes RETURNING yield the surviving row on
	// conflict; the candidate UUID is discarded when the key exists.
	stmt := `INSERT INTO migration_mapping (connection_id, entity_type, source_id, entity_uuid, parent_uuid, checksum)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6)
ON CONFLICT (connection_id, entity_type, source_id) DO UPDATE SET
	checksum = CASE WHEN EXCLUDED.checksum <> '' THEN EXCLUDED.checksum ELSE migration_mapping.checksum END,
	updated_at = now()
RETURNING entity_uuid, COALESCE(parent_uuid::text, ''), checksum`

	m := &Mapping{
		ConnectionID: req.ConnectionID,
		EntityType:   req.EntityType,
		SourceID:     req.SourceID,
	}
	row := s.db.QueryRow(ctx, stmt, req.ConnectionID, req.EntityType, req.SourceID, entityUUID, req.ParentUUID, req.Checksum)
	if err := row.Scan(&m.EntityUUID, &m.ParentUUID, &m.Checksum); err != nil {
		return nil, fmt.Errorf("get-or-create mapping %s/%s/%s: %w", req.ConnectionID, req.EntityType, req.SourceID, err)
	}
	return m, nil
}

func (s *PostgresStore) Get(ctx context.Context, connectionID, entityType, sourceID string) (*Mapping, error) {
	stmt := `SELECT entity_uuid, COALESCE(parent_uuid::text, ''), checksum
FROM migration_mapping
WHERE connection_id = $1 AND entity_type = $2 AND source_id = $3`

	m := &Mapping{
		ConnectionID: connectionID,
		EntityType:   entityType,
		SourceID:     sourceID,
	}
	row := s.db.QueryRow(ctx, stmt, connectionID, entityType, sourceID)
	if err := row.Scan(&m.EntityUUID, &m.ParentUUID, &m.Checksum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mapping %s/%s/%s: %w", connectionID, entityType, sourceID, err)
	}
	return m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, entityUUID, connectionID string) error {
	stmt := `DELETE FROM migration_mapping WHERE entity_uuid = $1::uuid AND connection_id = $2`
	if _, err := s.db.Exec(ctx, stmt, entityUUID, connectionID); err != nil {
		return fmt.Errorf("delete mapping %s: %w", entityUUID, err)
	}
	return nil
}
