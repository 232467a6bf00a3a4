package lookup

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cartmigrate/migration-core/internal/mapping"
)

// Seeds holds curated premapping data: lookup-name → source value →
// target identifier. Seed files replace the interactive premapping step
// of the surrounding system.
//
//	salutation:
//	  mr: 0190b9e0-...
//	  mrs: 0190b9e1-...
//	country:
//	  "81": 4f9d...
//	  DE: 4f9d...
type Seeds map[string]map[string]string

// LoadSeedFile parses a YAML premapping seed file.
func LoadSeedFile(path string) (Seeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeeds(data)
}

// ParseSeeds parses YAML premapping seed data.
func ParseSeeds(data []byte) (Seeds, error) {
	var seeds Seeds
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	for name, values := range seeds {
		for source, target := range values {
			if target == "" {
				return nil, fmt.Errorf("seed %s/%s has no target identifier", name, source)
			}
		}
	}
	return seeds, nil
}

// Seed writes premapping entries through the mapping service with preset
// target UUIDs. Idempotent: existing mappings keep their identifier.
func Seed(ctx context.Context, mappings mapping.Service, connectionID string, seeds Seeds) (int, error) {
	written := 0
	for _, name := range sortedNames(seeds) {
		values := seeds[name]
		sources := make([]string, 0, len(values))
		for source := range values {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		for _, source := range sources {
			_, err := mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
				ConnectionID: connectionID,
				EntityType:   name,
				SourceID:     source,
				EntityUUID:   values[source],
			})
			if err != nil {
				return written, fmt.Errorf("seed %s/%s: %w", name, source, err)
			}
			written++
		}
	}
	return written, nil
}

func sortedNames(seeds Seeds) []string {
	names := make([]string, 0, len(seeds))
	for name := range seeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
