// Package activities implements Temporal activities for migration runs.
package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/run"
)

// LogFlusher flushes buffered run-log entries after a data set finishes.
// The object-store sink implements it; the memory sink needs no flush.
type LogFlusher interface {
	Flush(ctx context.Context, runID string) error
}

// Activities holds the migration Temporal activities.
type Activities struct {
	service  *run.Service
	mappings mapping.Service
	flusher  LogFlusher
}

// NewActivities creates an Activities instance. flusher may be nil.
func NewActivities(service *run.Service, mappings mapping.Service, flusher LogFlusher) *Activities {
	return &Activities{
		service:  service,
		mappings: mappings,
		flusher:  flusher,
	}
}

// SeedPremappings loads a YAML premapping seed and writes it through the
// mapping service. Idempotent across retries.
func (a *Activities) SeedPremappings(ctx context.Context, req SeedPremappingsRequest) (*SeedPremappingsResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("seeding premappings", "connectionId", req.ConnectionID)

	var (
		seeds lookup.Seeds
		err   error
	)
	switch {
	case len(req.SeedData) > 0:
		seeds, err = lookup.ParseSeeds(req.SeedData)
	case req.SeedPath != "":
		seeds, err = lookup.LoadSeedFile(req.SeedPath)
	default:
		return nil, fmt.Errorf("either seedPath or seedData is required")
	}
	if err != nil {
		return nil, err
	}

	written, err := lookup.Seed(ctx, a.mappings, req.ConnectionID, seeds)
	if err != nil {
		return nil, err
	}

	logger.Info("premappings seeded", "written", written)
	return &SeedPremappingsResult{Written: written}, nil
}

// ProcessDataSet converts one entity type for a run and flushes the run
// log afterwards.
func (a *Activities) ProcessDataSet(ctx context.Context, req ProcessDataSetRequest) (*run.DataSetResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("processing data set", "runId", req.RunID, "entity", req.Entity, "profile", req.ProfileID)

	result, err := a.service.ProcessDataSet(ctx, req.options(), req.Entity)
	a.flush(ctx, req.RunID)
	if err != nil {
		return result, err
	}

	logger.Info("data set complete", "entity", req.Entity, "converted", result.Converted, "rejected", result.Rejected)
	return result, nil
}

// ProcessSelection converts every data set of a selection in order.
func (a *Activities) ProcessSelection(ctx context.Context, req ProcessSelectionRequest) (*ProcessSelectionResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("processing selection", "runId", req.RunID, "selection", req.SelectionID)

	results, err := a.service.ProcessSelection(ctx, req.options(), req.SelectionID)
	a.flush(ctx, req.RunID)
	if err != nil {
		return &ProcessSelectionResult{Results: results}, err
	}
	return &ProcessSelectionResult{Results: results}, nil
}

func (a *Activities) flush(ctx context.Context, runID string) {
	if a.flusher == nil {
		return
	}
	if err := a.flusher.Flush(ctx, runID); err != nil {
		activity.GetLogger(ctx).Warn("run log flush failed", "runId", runID, "error", err)
	}
}
