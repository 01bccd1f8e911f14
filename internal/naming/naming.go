// Package naming builds every builder and scheduler name the buildmaster
// exposes. UI links and automation depend on these names, so nothing else
// in the module concatenates them by hand.
package naming

import "strings"

const (
	aggregatorPrefix = "a-release-"
	releasePrefix    = "release-"
	forceSuffix      = "-force"
)

// DatasetNameFromURL returns the final path segment of a clone URL with any
// trailing ".git" removed.
func DatasetNameFromURL(cloneURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(cloneURL), "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return strings.TrimSuffix(trimmed, ".git")
}

// DatasetID is the builder name of a dataset: "<org>-<name>".
func DatasetID(organization, name string) string {
	return organization + "-" + name
}

// DatasetForceScheduler names the scheduler that manually starts one dataset build.
func DatasetForceScheduler(datasetID string) string {
	return datasetID + forceSuffix
}

// AggregatorBuilder names the per-organization fan-out builder.
func AggregatorBuilder(organization string) string {
	return aggregatorPrefix + organization
}

// ReleaseScheduler names the triggerable scheduler targeting every dataset
// builder of an organization.
func ReleaseScheduler(organization string) string {
	return releasePrefix + organization
}

// ReleaseForceScheduler names the scheduler that manually starts an
// organization's aggregator.
func ReleaseForceScheduler(organization string) string {
	return ReleaseScheduler(organization) + forceSuffix
}
