// Package run orchestrates migration runs: it feeds row-source pages
// through the converter registry and stages accepted output. Conversion
// is record-at-a-time; the mapping store is the only shared state, so
// pipelines for distinct records may run in parallel workers.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cartmigrate/migration-core/internal/convert"
	"github.com/cartmigrate/migration-core/internal/gateway"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/profile"
	"github.com/cartmigrate/migration-core/internal/staging"
)

// Options configures one migration run.
type Options struct {
	RunID        string
	ConnectionID string
	ProfileID    string

	// PageSize bounds each row-source read (default: 250).
	PageSize int

	// SkipUnchanged skips records whose checksum matches the stored
	// mapping from a previous run.
	SkipUnchanged bool
}

// DataSetResult summarizes one processed data set.
type DataSetResult struct {
	Entity    string
	Read      int
	Converted int
	Skipped   int
	Rejected  int
	Batches   []string
}

// Service wires the conversion engine to its collaborators for run
// execution.
type Service struct {
	registry *convert.Registry
	mappings mapping.Service
	source   gateway.RowSource
	stage    staging.Provider
	logger   *slog.Logger
}

// NewService creates a run service.
func NewService(registry *convert.Registry, mappings mapping.Service, source gateway.RowSource, stage staging.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		mappings: mappings,
		source:   source,
		stage:    stage,
		logger:   logger,
	}
}

// ProcessDataSet converts every record of one entity type. Cancellation
// is cooperative: the loop stops feeding records once ctx is done;
// compensating deletes inside the converters keep mapping state
// consistent for completed attempts.
func (s *Service) ProcessDataSet(ctx context.Context, opts *Options, entity string) (*DataSetResult, error) {
	if !profile.Valid(opts.ProfileID) {
		return nil, fmt.Errorf("run: unknown profile: %s", opts.ProfileID)
	}
	converter, err := s.registry.Resolve(opts.ProfileID, entity)
	if err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 250
	}

	mc := &convert.Context{
		RunID:        opts.RunID,
		ConnectionID: opts.ConnectionID,
		ProfileID:    opts.ProfileID,
		EntityType:   entity,
	}

	result := &DataSetResult{Entity: entity}
	batchSeq := 1
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := s.readPage(ctx, entity, offset, pageSize)
		if err != nil {
			return result, err
		}
		if len(records) == 0 {
			break
		}
		result.Read += len(records)

		var envelopes []staging.Envelope
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			sourceID := converter.SourceIdentifier(record)
			checksum := mapping.Checksum(record)

			if opts.SkipUnchanged && sourceID != "" {
				existing, err := s.mappings.Get(ctx, opts.ConnectionID, entity, sourceID)
				if err != nil {
					return result, err
				}
				if existing != nil && existing.Checksum == checksum {
					result.Skipped++
					continue
				}
			}

			converted, err := converter.Convert(ctx, mc, record)
			if err != nil {
				return result, fmt.Errorf("run: convert %s %s: %w", entity, sourceID, err)
			}
			if converted.Rejected() {
				result.Rejected++
				continue
			}
			result.Converted++
			envelopes = append(envelopes, staging.Envelope{
				EntityType:  entity,
				SourceID:    sourceID,
				Checksum:    checksum,
				Payload:     converted.Converted,
				ConvertedAt: time.Now().UTC(),
			})
		}

		if len(envelopes) > 0 {
			put, err := s.stage.PutBatch(ctx, &staging.PutBatchRequest{
				RunID:    opts.RunID,
				Entity:   entity,
				BatchSeq: batchSeq,
				Records:  envelopes,
			})
			if err != nil {
				return result, fmt.Errorf("run: stage %s batch: %w", entity, err)
			}
			result.Batches = append(result.Batches, put.BatchRef)
			batchSeq++
		}

		if len(records) < pageSize {
			break
		}
	}

	s.logger.Info("data set processed",
		"runId", opts.RunID,
		"entity", entity,
		"read", result.Read,
		"converted", result.Converted,
		"skipped", result.Skipped,
		"rejected", result.Rejected)
	return result, nil
}

// ProcessSelection runs every data set of a selection in declared order.
func (s *Service) ProcessSelection(ctx context.Context, opts *Options, selectionID string) ([]*DataSetResult, error) {
	selection, err := profile.SelectionByID(selectionID)
	if err != nil {
		return nil, err
	}

	var results []*DataSetResult
	for _, entity := range selection.Entities() {
		result, err := s.ProcessDataSet(ctx, opts, entity)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *Service) readPage(ctx context.Context, entity string, offset, limit int) ([]gateway.Record, error) {
	iter, err := s.source.Read(ctx, &gateway.ReadRequest{
		Entity: entity,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("run: read %s page: %w", entity, err)
	}
	defer iter.Close()

	var records []gateway.Record
	for iter.Next() {
		records = append(records, iter.Value())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("run: iterate %s page: %w", entity, err)
	}
	return records, nil
}
