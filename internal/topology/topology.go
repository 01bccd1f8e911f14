// Package topology groups dataset pipelines into the builder and scheduler
// graph: one builder and force scheduler per dataset, and per organization
// an aggregator builder whose only step fans out to every dataset builder
// of that organization.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spachava753/buildmaster/internal/models"
	"github.com/spachava753/buildmaster/internal/naming"
)

// ErrDuplicateID is matched by every DuplicateIDError.
var ErrDuplicateID = errors.New("duplicate dataset id")

// DuplicateIDError reports two catalog records resolving to the same builder name.
type DuplicateIDError struct {
	ID   string
	URLs [2]string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate dataset id %q (%s, %s)", e.ID, e.URLs[0], e.URLs[1])
}

func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// PipelineBuilder builds the pipeline of one dataset.
type PipelineBuilder interface {
	Build(ds models.Dataset) models.Pipeline
}

// Build derives the topology of a catalog. The result depends only on the
// set of records, never on their order.
func Build(catalog []models.Dataset, pb PipelineBuilder, workerNames []string) (*models.Topology, error) {
	datasets := make([]models.Dataset, len(catalog))
	copy(datasets, catalog)
	sort.Slice(datasets, func(i, j int) bool {
		if datasets[i].ID() != datasets[j].ID() {
			return datasets[i].ID() < datasets[j].ID()
		}
		return datasets[i].CloneURL < datasets[j].CloneURL
	})

	byOrg := make(map[string][]string)
	for i, ds := range datasets {
		if i > 0 && datasets[i-1].ID() == ds.ID() {
			return nil, &DuplicateIDError{ID: ds.ID(), URLs: [2]string{datasets[i-1].CloneURL, ds.CloneURL}}
		}
		byOrg[ds.Organization] = append(byOrg[ds.Organization], ds.ID())
	}

	orgs := make([]string, 0, len(byOrg))
	for org := range byOrg {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)

	workers := append([]string(nil), workerNames...)
	top := &models.Topology{}

	for _, org := range orgs {
		aggregator := naming.AggregatorBuilder(org)
		release := naming.ReleaseScheduler(org)

		top.Builders = append(top.Builders, models.Builder{
			Name:         aggregator,
			Kind:         models.BuilderAggregator,
			Organization: org,
			WorkerNames:  workers,
			Pipeline: models.Pipeline{
				BuilderName: aggregator,
				Steps: []models.Step{{
					Name:    "trigger",
					Stage:   models.StageTrigger,
					Trigger: &models.Trigger{SchedulerNames: []string{release}, WaitForFinish: false},
				}},
			},
		})
		top.Schedulers = append(top.Schedulers,
			models.Scheduler{
				Name:         release,
				Kind:         models.Triggerable,
				BuilderNames: append([]string(nil), byOrg[org]...),
			},
			models.Scheduler{
				Name:         naming.ReleaseForceScheduler(org),
				Kind:         models.ForceScheduler,
				BuilderNames: []string{aggregator},
			},
		)
	}

	for _, ds := range datasets {
		p := pb.Build(ds)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("building pipeline for %s: %w", ds.ID(), err)
		}
		top.Builders = append(top.Builders, models.Builder{
			Name:         ds.ID(),
			Kind:         models.BuilderDataset,
			Organization: ds.Organization,
			WorkerNames:  workers,
			Pipeline:     p,
		})
		top.Schedulers = append(top.Schedulers, models.Scheduler{
			Name:         naming.DatasetForceScheduler(ds.ID()),
			Kind:         models.ForceScheduler,
			BuilderNames: []string{ds.ID()},
		})
	}

	// Dataset ids can still collide with aggregator or release names.
	if err := top.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	return top, nil
}
