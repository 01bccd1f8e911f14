package models

import (
	"fmt"
	"strings"

	"github.com/spachava753/buildmaster/internal/naming"
)

// CuratorKind describes what build tooling a dataset repository exposes.
type CuratorKind int

const (
	// CuratorNone repositories only expose data files.
	CuratorNone CuratorKind = iota
	// CuratorGeneric repositories support the generic build-and-check toolchain.
	CuratorGeneric
	// CuratorSpecialized repositories add curator-specific checks on top of the generic toolchain.
	CuratorSpecialized
)

// CuratorKinds lists every variant, in declaration order.
var CuratorKinds = []CuratorKind{CuratorNone, CuratorGeneric, CuratorSpecialized}

// ParseCuratorKind maps a catalog value to a CuratorKind. The empty string
// means CuratorNone.
func ParseCuratorKind(s string) (CuratorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CuratorNone, nil
	case "cldfbench", "generic":
		return CuratorGeneric, nil
	case "lexibank", "specialized":
		return CuratorSpecialized, nil
	default:
		return CuratorNone, fmt.Errorf("unknown curator kind %q", s)
	}
}

func (k CuratorKind) String() string {
	switch k {
	case CuratorNone:
		return "none"
	case CuratorGeneric:
		return "cldfbench"
	case CuratorSpecialized:
		return "lexibank"
	default:
		return fmt.Sprintf("CuratorKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k CuratorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CuratorKind) UnmarshalText(b []byte) error {
	parsed, err := ParseCuratorKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Dataset describes one linguistic-data repository from the catalog.
type Dataset struct {
	Organization  string      `json:"organization" yaml:"organization"`
	CloneURL      string      `json:"clone_url" yaml:"clone_url"`
	Name          string      `json:"name" yaml:"name"`
	MetadataPaths []string    `json:"metadata_paths" yaml:"metadata_paths"`
	Curator       CuratorKind `json:"curator" yaml:"curator"`
}

// NewDataset builds a Dataset and derives its name from the clone URL.
func NewDataset(organization, cloneURL string, metadataPaths []string, curator CuratorKind) (Dataset, error) {
	if organization == "" {
		return Dataset{}, fmt.Errorf("organization is required")
	}
	name := naming.DatasetNameFromURL(cloneURL)
	if name == "" {
		return Dataset{}, fmt.Errorf("cannot derive dataset name from clone url %q", cloneURL)
	}
	if len(metadataPaths) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s: no metadata paths", naming.DatasetID(organization, name))
	}

	seen := make(map[string]bool, len(metadataPaths))
	for _, p := range metadataPaths {
		if p == "" {
			return Dataset{}, fmt.Errorf("dataset %s: empty metadata path", naming.DatasetID(organization, name))
		}
		if seen[p] {
			return Dataset{}, fmt.Errorf("dataset %s: duplicate metadata path %q", naming.DatasetID(organization, name), p)
		}
		seen[p] = true
	}

	return Dataset{
		Organization:  organization,
		CloneURL:      cloneURL,
		Name:          name,
		MetadataPaths: append([]string(nil), metadataPaths...),
		Curator:       curator,
	}, nil
}

// ID returns the catalog-wide primary key, "<organization>-<name>".
func (d Dataset) ID() string {
	return naming.DatasetID(d.Organization, d.Name)
}

// Installable reports whether the dataset exposes build tooling.
func (d Dataset) Installable() bool {
	return d.Curator != CuratorNone
}
