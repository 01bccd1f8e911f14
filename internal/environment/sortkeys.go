package environment

import (
	"maps"
	"slices"
)

// SortedKeys returns the keys of an environment map in a stable order.
func SortedKeys(env map[string]string) []string {
	return slices.Sorted(maps.Keys(env))
}
