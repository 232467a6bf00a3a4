// Package profile declares the supported source-platform versions and
// the data selections (ordered groups of data sets) a migration run can
// process.
package profile

import "fmt"

// Profile IDs for the supported source platform versions. Converters
// declare which profiles they apply to via capability dispatch.
const (
	Magento19 = "magento-1.9"
	Magento20 = "magento-2.0"
	Magento21 = "magento-2.1"
	Magento22 = "magento-2.2"
	Magento23 = "magento-2.3"
)

// Magento2x lists the 2.x profile family; converter variants that share
// behavior across 2.x register against this slice.
var Magento2x = []string{Magento20, Magento21, Magento22, Magento23}

// All lists every supported profile.
var All = []string{Magento19, Magento20, Magento21, Magento22, Magento23}

// Valid reports whether an ID names a supported profile.
func Valid(profileID string) bool {
	for _, id := range All {
		if id == profileID {
			return true
		}
	}
	return false
}

// DataSet names one entity type processed during a run.
type DataSet struct {
	Entity string
	// Position orders data sets within a selection so dependencies
	// (e.g. manufacturers before products) convert first.
	Position int
}

// DataSelection is a named, ordered group of data sets the operator can
// pick for migration.
type DataSelection struct {
	ID       string
	DataSets []DataSet
}

// Entities returns the selection's entity types in processing order.
func (s DataSelection) Entities() []string {
	out := make([]string, len(s.DataSets))
	for i, ds := range s.DataSets {
		out[i] = ds.Entity
	}
	return out
}

// Built-in data selections, mirroring the source platform's groupings.
var (
	CustomersSelection = DataSelection{
		ID: "customers-orders",
		DataSets: []DataSet{
			{Entity: "customer", Position: 0},
			{Entity: "newsletter_recipient", Position: 1},
		},
	}

	ProductsSelection = DataSelection{
		ID: "products",
		DataSets: []DataSet{
			{Entity: "currency", Position: 0},
			{Entity: "manufacturer", Position: 1},
			{Entity: "category", Position: 2},
		},
	}
)

// Selections lists the built-in data selections.
var Selections = []DataSelection{CustomersSelection, ProductsSelection}

// SelectionByID returns a built-in selection.
func SelectionByID(id string) (DataSelection, error) {
	for _, s := range Selections {
		if s.ID == id {
			return s, nil
		}
	}
	return DataSelection{}, fmt.Errorf("unknown data selection: %s", id)
}
