package catalog

import (
	"slices"

	"github.com/spachava753/buildmaster/internal/models"
)

// Predicate decides whether a dataset stays in the loaded catalog.
type Predicate func(models.Dataset) bool

// All keeps every dataset.
func All(models.Dataset) bool { return true }

// Names keeps datasets whose short name is listed. No names keeps all.
func Names(names ...string) Predicate {
	if len(names) == 0 {
		return All
	}
	return func(ds models.Dataset) bool {
		return slices.Contains(names, ds.Name)
	}
}

// Organizations keeps datasets of the listed organizations. No organizations keeps all.
func Organizations(orgs ...string) Predicate {
	if len(orgs) == 0 {
		return All
	}
	return func(ds models.Dataset) bool {
		return slices.Contains(orgs, ds.Organization)
	}
}

// And keeps datasets matching every predicate.
func And(preds ...Predicate) Predicate {
	return func(ds models.Dataset) bool {
		for _, p := range preds {
			if !p(ds) {
				return false
			}
		}
		return true
	}
}

// FromFilter builds the predicate described by a host's settings.
func FromFilter(f models.CatalogFilter) Predicate {
	return And(Names(f.Only...), Organizations(f.Organizations...))
}
