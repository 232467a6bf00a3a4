package convert

import (
	"fmt"
	"sync"
)

// Capability declares what a registered converter can handle: one entity
// type and the source-platform profiles it applies to. An empty profile
// list matches any profile.
type Capability struct {
	Entity   string
	Profiles []string
}

// Matches reports whether the capability covers a (profile, entity) pair.
func (c Capability) Matches(profileID, entity string) bool {
	if c.Entity != entity {
		return false
	}
	if len(c.Profiles) == 0 {
		return true
	}
	for _, p := range c.Profiles {
		if p == profileID {
			return true
		}
	}
	return false
}

type registration struct {
	capability Capability
	converter  Converter
}

// Registry selects the applicable converter for a (profile, entity-type)
// pair. Converter variants are registered as (capability, converter)
// records; registration order decides between overlapping capabilities.
type Registry struct {
	mu            sync.RWMutex
	registrations []registration
}

// NewRegistry creates an empty converter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a converter for the given capability. Panics on a
// duplicate exact capability, which is always a wiring bug.
func (r *Registry) Register(capability Capability, converter Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.registrations {
		if reg.capability.Entity == capability.Entity && equalProfiles(reg.capability.Profiles, capability.Profiles) {
			panic(fmt.Sprintf("converter already registered: entity=%s profiles=%v", capability.Entity, capability.Profiles))
		}
	}
	r.registrations = append(r.registrations, registration{capability: capability, converter: converter})
}

// Resolve returns the first converter whose capability matches.
func (r *Registry) Resolve(profileID, entity string) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.registrations {
		if reg.capability.Matches(profileID, entity) {
			return reg.converter, nil
		}
	}
	return nil, fmt.Errorf("no converter for profile %q entity %q", profileID, entity)
}

// Entities returns the distinct entity types with at least one
// registration, in registration order.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var entities []string
	for _, reg := range r.registrations {
		if !seen[reg.capability.Entity] {
			seen[reg.capability.Entity] = true
			entities = append(entities, reg.capability.Entity)
		}
	}
	return entities
}

func equalProfiles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
