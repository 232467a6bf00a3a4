package convert

import (
	"github.com/cartmigrate/migration-core/internal/lookup"
	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/profile"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

// Deps bundles the collaborators every converter is wired with.
type Deps struct {
	Mappings mapping.Service
	Lookups  *lookup.Resolver
	Logs     runlog.Sink
	Defaults Defaults
}

// NewDefaultRegistry builds the standard converter registry for all
// supported source platform versions. Converter variants that differ
// between versions register per profile group with their own
// configuration record.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()

	r.Register(Capability{Entity: EntityCustomer},
		NewCustomerConverter(deps.Mappings, deps.Lookups, deps.Logs, deps.Defaults))
	r.Register(Capability{Entity: EntityCurrency},
		NewCurrencyConverter(deps.Mappings, deps.Logs))
	r.Register(Capability{Entity: EntityCategory},
		NewCategoryConverter(deps.Mappings, deps.Logs))
	r.Register(Capability{Entity: EntityManufacturer},
		NewManufacturerConverter(deps.Mappings, deps.Logs))

	r.Register(Capability{Entity: EntityNewsletter, Profiles: []string{profile.Magento19}},
		NewNewsletterConverter(deps.Mappings, deps.Lookups, deps.Logs, Magento19NewsletterStatuses))
	r.Register(Capability{Entity: EntityNewsletter, Profiles: profile.Magento2x},
		NewNewsletterConverter(deps.Mappings, deps.Lookups, deps.Logs, Magento2NewsletterStatuses))

	return r
}
