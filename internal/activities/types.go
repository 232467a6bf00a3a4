package activities

import "github.com/cartmigrate/migration-core/internal/run"

// SeedPremappingsRequest seeds curated lookup tables for a connection.
type SeedPremappingsRequest struct {
	ConnectionID string
	// SeedPath points at a YAML premapping file on the worker host.
	SeedPath string
	// SeedData carries inline YAML; used when no shared filesystem exists.
	SeedData []byte
}

// SeedPremappingsResult reports how many premapping entries were written.
type SeedPremappingsResult struct {
	Written int
}

// ProcessDataSetRequest converts one entity type for a run.
type ProcessDataSetRequest struct {
	RunID         string
	ConnectionID  string
	ProfileID     string
	Entity        string
	PageSize      int
	SkipUnchanged bool
}

// ProcessSelectionRequest converts every data set of a selection.
type ProcessSelectionRequest struct {
	RunID         string
	ConnectionID  string
	ProfileID     string
	SelectionID   string
	PageSize      int
	SkipUnchanged bool
}

// ProcessSelectionResult aggregates per-data-set results.
type ProcessSelectionResult struct {
	Results []*run.DataSetResult
}

func (r *ProcessDataSetRequest) options() *run.Options {
	return &run.Options{
		RunID:         r.RunID,
		ConnectionID:  r.ConnectionID,
		ProfileID:     r.ProfileID,
		PageSize:      r.PageSize,
		SkipUnchanged: r.SkipUnchanged,
	}
}

func (r *ProcessSelectionRequest) options() *run.Options {
	return &run.Options{
		RunID:         r.RunID,
		ConnectionID:  r.ConnectionID,
		ProfileID:     r.ProfileID,
		PageSize:      r.PageSize,
		SkipUnchanged: r.SkipUnchanged,
	}
}
