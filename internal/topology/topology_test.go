package topology_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/spachava753/buildmaster/internal/models"
	"github.com/spachava753/buildmaster/internal/pipeline"
	"github.com/spachava753/buildmaster/internal/topology"
)

func mustDataset(t *testing.T, org, url string, curator models.CuratorKind, paths ...string) models.Dataset {
	t.Helper()
	if len(paths) == 0 {
		paths = []string{"cldf/cldf-metadata.json"}
	}
	ds, err := models.NewDataset(org, url, paths, curator)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

func newBuilder() *pipeline.Builder {
	return pipeline.NewBuilder(pipeline.DefaultOptions())
}

func TestBuildSingleDataset(t *testing.T) {
	catalog := []models.Dataset{
		mustDataset(t, "lexibank", "https://github.com/lexibank/abc.git", models.CuratorSpecialized, "cldf/metadata.json"),
	}

	top, err := topology.Build(catalog, newBuilder(), []string{"worker"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := top.BuilderNames(), []string{"a-release-lexibank", "lexibank-abc"}; !slices.Equal(got, want) {
		t.Errorf("builders = %v, want %v", got, want)
	}
	wantSchedulers := []string{"lexibank-abc-force", "release-lexibank", "release-lexibank-force"}
	if got := top.SchedulerNames(); !slices.Equal(got, wantSchedulers) {
		t.Errorf("schedulers = %v, want %v", got, wantSchedulers)
	}

	b, ok := top.Builder("lexibank-abc")
	if !ok {
		t.Fatal("dataset builder not found")
	}
	if got := len(b.Pipeline.StageSequence()); got != 11 {
		t.Errorf("expected 11 stages, got %d", got)
	}
	if got := len(b.Pipeline.Steps); got != 13 {
		t.Errorf("expected 13 steps, got %d", got)
	}

	agg, ok := top.Builder("a-release-lexibank")
	if !ok {
		t.Fatal("aggregator not found")
	}
	if len(agg.Pipeline.Steps) != 1 || agg.Pipeline.Steps[0].Trigger == nil {
		t.Fatalf("aggregator should have a single trigger step, got %+v", agg.Pipeline.Steps)
	}
	trig := agg.Pipeline.Steps[0].Trigger
	if trig.WaitForFinish {
		t.Error("aggregator trigger must not wait for finish")
	}
	if !slices.Equal(trig.SchedulerNames, []string{"release-lexibank"}) {
		t.Errorf("trigger targets %v", trig.SchedulerNames)
	}

	release, _ := top.Scheduler("release-lexibank")
	if release.Kind != models.Triggerable || !slices.Equal(release.BuilderNames, []string{"lexibank-abc"}) {
		t.Errorf("unexpected release scheduler %+v", release)
	}
	force, _ := top.Scheduler("release-lexibank-force")
	if force.Kind != models.ForceScheduler || !slices.Equal(force.BuilderNames, []string{"a-release-lexibank"}) {
		t.Errorf("unexpected release force scheduler %+v", force)
	}
}

func TestBuildMembership(t *testing.T) {
	catalog := []models.Dataset{
		mustDataset(t, "lexibank", "https://github.com/lexibank/abc.git", models.CuratorSpecialized),
		mustDataset(t, "dictionaria", "https://github.com/dictionaria/daakaka.git", models.CuratorNone),
		mustDataset(t, "lexibank", "https://github.com/lexibank/chenhmongmien.git", models.CuratorSpecialized),
		mustDataset(t, "cldf-datasets", "https://github.com/cldf-datasets/wals.git", models.CuratorGeneric),
	}

	top, err := topology.Build(catalog, newBuilder(), []string{"worker"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := top.Organizations(), []string{"cldf-datasets", "dictionaria", "lexibank"}; !slices.Equal(got, want) {
		t.Errorf("organizations = %v, want %v", got, want)
	}
	if got, want := top.ListBuildersForOrg("lexibank"), []string{"lexibank-abc", "lexibank-chenhmongmien"}; !slices.Equal(got, want) {
		t.Errorf("lexibank builders = %v, want %v", got, want)
	}
	if got := top.ListBuildersForOrg("unknown"); len(got) != 0 {
		t.Errorf("expected no builders for unknown org, got %v", got)
	}

	// 3 aggregators + 4 datasets, 3*2 org schedulers + 4 force schedulers.
	if len(top.Builders) != 7 {
		t.Errorf("expected 7 builders, got %d", len(top.Builders))
	}
	if len(top.Schedulers) != 10 {
		t.Errorf("expected 10 schedulers, got %d", len(top.Schedulers))
	}

	if err := top.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildDuplicateID(t *testing.T) {
	catalog := []models.Dataset{
		mustDataset(t, "lexibank", "https://github.com/lexibank/abc.git", models.CuratorSpecialized),
		mustDataset(t, "lexibank", "https://gitlab.com/mirror/abc.git", models.CuratorNone),
	}

	_, err := topology.Build(catalog, newBuilder(), []string{"worker"})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if !errors.Is(err, topology.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	var dup *topology.DuplicateIDError
	if !errors.As(err, &dup) || dup.ID != "lexibank-abc" {
		t.Errorf("expected DuplicateIDError for lexibank-abc, got %v", err)
	}
}

func TestBuildNameCollision(t *testing.T) {
	// "a" + "-" + "release-x" collides with the aggregator of organization "x".
	catalog := []models.Dataset{
		mustDataset(t, "a", "https://github.com/a/release-x.git", models.CuratorNone),
		mustDataset(t, "x", "https://github.com/x/y.git", models.CuratorNone),
	}

	if _, err := topology.Build(catalog, newBuilder(), nil); err == nil {
		t.Fatal("expected collision error")
	}
}

func TestBuildIgnoresOrder(t *testing.T) {
	catalog := []models.Dataset{
		mustDataset(t, "lexibank", "https://github.com/lexibank/abc.git", models.CuratorSpecialized),
		mustDataset(t, "dictionaria", "https://github.com/dictionaria/daakaka.git", models.CuratorNone),
		mustDataset(t, "lexibank", "https://github.com/lexibank/birchallchapacuran.git", models.CuratorGeneric),
	}
	reversed := slices.Clone(catalog)
	slices.Reverse(reversed)

	first, err := topology.Build(catalog, newBuilder(), []string{"worker"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := topology.Build(reversed, newBuilder(), []string{"worker"})
	if err != nil {
		t.Fatalf("Build reversed: %v", err)
	}

	if !slices.Equal(first.BuilderNames(), second.BuilderNames()) {
		t.Errorf("builder names differ: %v vs %v", first.BuilderNames(), second.BuilderNames())
	}
	if !slices.Equal(first.SchedulerNames(), second.SchedulerNames()) {
		t.Errorf("scheduler names differ: %v vs %v", first.SchedulerNames(), second.SchedulerNames())
	}
	for i := range first.Schedulers {
		if first.Schedulers[i].Name != second.Schedulers[i].Name {
			t.Fatalf("scheduler order differs at %d", i)
		}
		if !slices.Equal(first.Schedulers[i].BuilderNames, second.Schedulers[i].BuilderNames) {
			t.Errorf("scheduler %s membership differs", first.Schedulers[i].Name)
		}
	}
}

func TestBuildEmptyCatalog(t *testing.T) {
	top, err := topology.Build(nil, newBuilder(), []string{"worker"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(top.Builders) != 0 || len(top.Schedulers) != 0 {
		t.Errorf("expected empty topology, got %+v", top)
	}
}
