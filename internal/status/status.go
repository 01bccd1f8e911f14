// Package status describes the per-organization dashboards of a topology.
package status

import (
	"fmt"
	"strings"

	"github.com/spachava753/buildmaster/internal/models"
)

// Entry is one dataset row of a dashboard.
type Entry struct {
	Builder      string `json:"builder" yaml:"builder"`
	Organization string `json:"organization" yaml:"organization"`
	Dataset      string `json:"dataset" yaml:"dataset"`
	RepoURL      string `json:"repo_url" yaml:"repo_url"`
}

// Dashboard lists the dataset builders of one organization.
type Dashboard struct {
	Name    string `json:"name" yaml:"name"`
	Caption string `json:"caption" yaml:"caption"`
	Icon    string `json:"icon" yaml:"icon"`
	// Order positions the dashboard in the navigation.
	Order   int     `json:"order" yaml:"order"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// DefaultIcon is used for organizations without a dedicated icon.
const DefaultIcon = "database"

var icons = map[string]string{
	"dictionaria": "book",
	"lexibank":    "clipboard",
}

// Icon returns the dashboard icon of an organization.
func Icon(org string) string {
	if icon, ok := icons[org]; ok {
		return icon
	}
	return DefaultIcon
}

// Dashboards returns one dashboard per organization, ordered by name.
func Dashboards(top *models.Topology) []Dashboard {
	orgs := top.Organizations()
	out := make([]Dashboard, 0, len(orgs))
	for i, org := range orgs {
		d := Dashboard{
			Name:    org + "-status",
			Caption: org + " Status",
			Icon:    Icon(org),
			Order:   i,
		}
		for _, name := range top.ListBuildersForOrg(org) {
			dataset := strings.TrimPrefix(name, org+"-")
			d.Entries = append(d.Entries, Entry{
				Builder:      name,
				Organization: org,
				Dataset:      dataset,
				RepoURL:      fmt.Sprintf("https://github.com/%s/%s", org, dataset),
			})
		}
		out = append(out, d)
	}
	return out
}
