package models

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spachava753/buildmaster/internal/naming"
)

// BuilderKind distinguishes dataset builders from per-organization aggregators.
type BuilderKind string

const (
	BuilderDataset    BuilderKind = "dataset"
	BuilderAggregator BuilderKind = "aggregator"
)

// Builder is a named unit of work bound to a pipeline.
type Builder struct {
	Name         string      `json:"name" yaml:"name"`
	Kind         BuilderKind `json:"kind" yaml:"kind"`
	Organization string      `json:"organization" yaml:"organization"`
	WorkerNames  []string    `json:"worker_names" yaml:"worker_names"`
	Pipeline     Pipeline    `json:"pipeline" yaml:"pipeline"`
}

// SchedulerKind is how a scheduler is invoked.
type SchedulerKind string

const (
	// ForceScheduler is invoked manually by an operator.
	ForceScheduler SchedulerKind = "force"
	// Triggerable is invoked by another builder's trigger step.
	Triggerable SchedulerKind = "triggerable"
)

// Scheduler is a named trigger relation targeting one or more builders.
type Scheduler struct {
	Name         string        `json:"name" yaml:"name"`
	Kind         SchedulerKind `json:"kind" yaml:"kind"`
	BuilderNames []string      `json:"builder_names" yaml:"builder_names"`
}

// Topology is the builder/scheduler graph derived from a catalog. It is
// read-only once built.
type Topology struct {
	Builders   []Builder   `json:"builders" yaml:"builders"`
	Schedulers []Scheduler `json:"schedulers" yaml:"schedulers"`
}

// Builder returns the builder with the given name.
func (t *Topology) Builder(name string) (Builder, bool) {
	for _, b := range t.Builders {
		if b.Name == name {
			return b, true
		}
	}
	return Builder{}, false
}

// Scheduler returns the scheduler with the given name.
func (t *Topology) Scheduler(name string) (Scheduler, bool) {
	for _, s := range t.Schedulers {
		if s.Name == name {
			return s, true
		}
	}
	return Scheduler{}, false
}

// BuilderNames returns every builder name, sorted.
func (t *Topology) BuilderNames() []string {
	names := make([]string, 0, len(t.Builders))
	for _, b := range t.Builders {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names
}

// SchedulerNames returns every scheduler name, sorted.
func (t *Topology) SchedulerNames() []string {
	names := make([]string, 0, len(t.Schedulers))
	for _, s := range t.Schedulers {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Organizations returns the organizations present in the topology, sorted.
func (t *Topology) Organizations() []string {
	var orgs []string
	for _, b := range t.Builders {
		if b.Kind == BuilderAggregator {
			orgs = append(orgs, b.Organization)
		}
	}
	sort.Strings(orgs)
	return orgs
}

// ListBuildersForOrg returns the dataset builder names of one organization, sorted.
func (t *Topology) ListBuildersForOrg(org string) []string {
	var names []string
	for _, b := range t.Builders {
		if b.Kind == BuilderDataset && b.Organization == org {
			names = append(names, b.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks the structural invariants linking builders and schedulers:
// one force scheduler per dataset builder, one aggregator and one triggerable
// scheduler per organization, and triggerable targets equal to the
// organization's dataset builders.
func (t *Topology) Validate() error {
	builders := make(map[string]Builder, len(t.Builders))
	for _, b := range t.Builders {
		if _, dup := builders[b.Name]; dup {
			return fmt.Errorf("duplicate builder %q", b.Name)
		}
		builders[b.Name] = b
	}

	schedulers := make(map[string]Scheduler, len(t.Schedulers))
	forced := make(map[string]int)
	for _, s := range t.Schedulers {
		if _, dup := schedulers[s.Name]; dup {
			return fmt.Errorf("duplicate scheduler %q", s.Name)
		}
		schedulers[s.Name] = s
		for _, target := range s.BuilderNames {
			if _, ok := builders[target]; !ok {
				return fmt.Errorf("scheduler %q targets unknown builder %q", s.Name, target)
			}
		}
		if s.Kind == ForceScheduler {
			if len(s.BuilderNames) != 1 {
				return fmt.Errorf("force scheduler %q must target exactly one builder", s.Name)
			}
			forced[s.BuilderNames[0]]++
		}
	}

	for _, b := range t.Builders {
		if forced[b.Name] != 1 {
			return fmt.Errorf("builder %q has %d force schedulers, want 1", b.Name, forced[b.Name])
		}
	}

	for _, org := range t.Organizations() {
		if _, ok := builders[naming.AggregatorBuilder(org)]; !ok {
			return fmt.Errorf("organization %q has no aggregator builder", org)
		}
		release, ok := schedulers[naming.ReleaseScheduler(org)]
		if !ok || release.Kind != Triggerable {
			return fmt.Errorf("organization %q has no triggerable scheduler", org)
		}
		targets := slices.Clone(release.BuilderNames)
		sort.Strings(targets)
		if !slices.Equal(targets, t.ListBuildersForOrg(org)) {
			return fmt.Errorf("scheduler %q targets %v, want %v", release.Name, targets, t.ListBuildersForOrg(org))
		}
	}

	return nil
}
