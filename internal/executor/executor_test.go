package executor_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spachava753/buildmaster/internal/environment"
	"github.com/spachava753/buildmaster/internal/executor"
	"github.com/spachava753/buildmaster/internal/models"
	"github.com/spachava753/buildmaster/internal/pipeline"
	"github.com/spachava753/buildmaster/internal/topology"
)

// fakeProvider hands out environments whose commands exit with the code
// returned by exitCode. Commands not matched exit 0.
type fakeProvider struct {
	exitCode func(argv []string) int
	onExec   func(argv []string)
	failNew  error

	mu        sync.Mutex
	created   int
	destroyed int
	commands  [][]string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	if p.failNew != nil {
		return nil, p.failNew
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return &fakeEnv{p: p, id: opts.Name}, nil
}

type fakeEnv struct {
	p  *fakeProvider
	id string
}

func (e *fakeEnv) ID() string { return e.id }

func (e *fakeEnv) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	e.p.mu.Lock()
	e.p.commands = append(e.p.commands, argv)
	e.p.mu.Unlock()
	io.WriteString(stdout, strings.Join(argv, " "))
	if e.p.onExec != nil {
		e.p.onExec(argv)
	}
	if e.p.exitCode == nil {
		return 0, nil
	}
	return e.p.exitCode(argv), nil
}

func (e *fakeEnv) Destroy(ctx context.Context) error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	e.p.destroyed++
	return nil
}

// exitOn returns exit code for the first command containing substr.
func exitOn(substr string, code int) func([]string) int {
	return func(argv []string) int {
		if strings.Contains(strings.Join(argv, " "), substr) {
			return code
		}
		return 0
	}
}

func lexibankDataset(t *testing.T) models.Dataset {
	t.Helper()
	ds, err := models.NewDataset("lexibank", "https://github.com/lexibank/abvd.git",
		[]string{"cldf/cldf-metadata.json"}, models.CuratorSpecialized)
	if err != nil {
		t.Fatalf("creating dataset: %v", err)
	}
	return ds
}

func datasetBuilder(t *testing.T, ds models.Dataset) models.Builder {
	t.Helper()
	return models.Builder{
		Name:         ds.ID(),
		Kind:         models.BuilderDataset,
		Organization: ds.Organization,
		Pipeline:     pipeline.NewBuilder(pipeline.DefaultOptions()).Build(ds),
	}
}

func stepOutcomes(r *models.BuildResult) map[string]models.Outcome {
	out := make(map[string]models.Outcome, len(r.Steps))
	for _, s := range r.Steps {
		out[s.Name] = s.Outcome
	}
	return out
}

func TestRunAllStepsSucceed(t *testing.T) {
	p := &fakeProvider{}
	b := datasetBuilder(t, lexibankDataset(t))
	r := (&executor.StepRunner{Provider: p}).Run(context.Background(), b, 1, "lexibank-abvd-force")

	if r.Outcome != models.Success || r.Verdict != models.VerdictHealthy {
		t.Errorf("got %s/%s, want success/healthy", r.Outcome, r.Verdict)
	}
	if len(r.ExecutedSteps()) != len(b.Pipeline.Steps) {
		t.Errorf("executed %d steps, want %d", len(r.ExecutedSteps()), len(b.Pipeline.Steps))
	}
	if r.Error != nil {
		t.Errorf("unexpected error: %+v", r.Error)
	}
	if p.created != 1 || p.destroyed != 1 {
		t.Errorf("created %d, destroyed %d environments, want 1 and 1", p.created, p.destroyed)
	}
	if got := p.commands[0]; !slices.Equal(got, []string{"git", "clone", "https://github.com/lexibank/abvd.git", "build"}) {
		t.Errorf("fetch command = %v", got)
	}
}

func TestRunFetchFailureAborts(t *testing.T) {
	p := &fakeProvider{exitCode: exitOn("git clone", 128)}
	b := datasetBuilder(t, lexibankDataset(t))
	r := (&executor.StepRunner{Provider: p}).Run(context.Background(), b, 1, "")

	if r.Outcome != models.Aborted || r.Verdict != models.VerdictBroken {
		t.Errorf("got %s/%s, want aborted/broken", r.Outcome, r.Verdict)
	}
	if got := r.ExecutedSteps(); !slices.Equal(got, []string{"git"}) {
		t.Errorf("executed steps = %v, want [git]", got)
	}
	if r.Steps[0].Outcome != models.Failure {
		t.Errorf("fetch outcome = %s, want failure", r.Steps[0].Outcome)
	}
	for _, s := range r.Steps[1:] {
		if s.Outcome != models.Aborted {
			t.Errorf("step %q outcome = %s, want aborted", s.Name, s.Outcome)
		}
	}
	if r.Error == nil || r.Error.Type != models.ErrStepHalted {
		t.Errorf("error = %+v, want step_halted", r.Error)
	}
}

func TestRunOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		exitCode    func([]string) int
		wantOutcome models.Outcome
		wantVerdict models.Verdict
		wantStep    string
		wantStepOut models.Outcome
		wantRan     int
	}{
		{
			name:        "check warning",
			exitCode:    exitOn("cldf check", 2),
			wantOutcome: models.Warning,
			wantVerdict: models.VerdictDegraded,
			wantStep:    "cldf check cldf/cldf-metadata.json",
			wantStepOut: models.Warning,
			wantRan:     13,
		},
		{
			name:        "check failure beyond policy",
			exitCode:    exitOn("lexibank.check_phonotactics", 1),
			wantOutcome: models.Failure,
			wantVerdict: models.VerdictDegraded,
			wantStep:    "lexibank phonotactics check",
			wantStepOut: models.Failure,
			wantRan:     13,
		},
		{
			name:        "validate exit 2 is a failure",
			exitCode:    exitOn("cldf validate", 2),
			wantOutcome: models.Failure,
			wantVerdict: models.VerdictDegraded,
			wantStep:    "validate cldf/cldf-metadata.json",
			wantStepOut: models.Failure,
			wantRan:     13,
		},
		{
			name:        "non-halting pytest failure",
			exitCode:    exitOn("bin/pytest", 1),
			wantOutcome: models.Failure,
			wantVerdict: models.VerdictDegraded,
			wantStep:    "pytest",
			wantStepOut: models.Failure,
			wantRan:     13,
		},
		{
			name:        "install failure halts",
			exitCode:    exitOn("install --upgrade .", 1),
			wantOutcome: models.Aborted,
			wantVerdict: models.VerdictBroken,
			wantStep:    "makecldf",
			wantStepOut: models.Aborted,
			wantRan:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{exitCode: tt.exitCode}
			r := (&executor.StepRunner{Provider: p}).Run(context.Background(), datasetBuilder(t, lexibankDataset(t)), 1, "")

			if r.Outcome != tt.wantOutcome || r.Verdict != tt.wantVerdict {
				t.Errorf("got %s/%s, want %s/%s", r.Outcome, r.Verdict, tt.wantOutcome, tt.wantVerdict)
			}
			if got := stepOutcomes(r)[tt.wantStep]; got != tt.wantStepOut {
				t.Errorf("step %q outcome = %s, want %s", tt.wantStep, got, tt.wantStepOut)
			}
			if got := len(r.ExecutedSteps()); got != tt.wantRan {
				t.Errorf("executed %d steps, want %d", got, tt.wantRan)
			}
		})
	}
}

func TestRunEnvironmentStartFailure(t *testing.T) {
	p := &fakeProvider{failNew: errors.New("no capacity")}
	r := (&executor.StepRunner{Provider: p}).Run(context.Background(), datasetBuilder(t, lexibankDataset(t)), 1, "")

	if r.Outcome != models.Aborted {
		t.Errorf("outcome = %s, want aborted", r.Outcome)
	}
	if r.Error == nil || r.Error.Type != models.ErrEnvironmentStartFailed {
		t.Errorf("error = %+v, want environment_start_failed", r.Error)
	}
	if len(r.ExecutedSteps()) != 0 {
		t.Errorf("executed %v, want nothing", r.ExecutedSteps())
	}
}

func TestRunCancelledAtStepBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakeProvider{onExec: func(argv []string) {
		if slices.Contains(argv, "venv") {
			cancel()
		}
	}}
	r := (&executor.StepRunner{Provider: p}).Run(ctx, datasetBuilder(t, lexibankDataset(t)), 1, "")

	if got := r.ExecutedSteps(); !slices.Equal(got, []string{"git", "virtualenv"}) {
		t.Errorf("executed steps = %v, want [git virtualenv]", got)
	}
	if r.Steps[1].Outcome != models.Success {
		t.Errorf("in-flight step outcome = %s, want success", r.Steps[1].Outcome)
	}
	if r.Outcome != models.Aborted || r.Error == nil || r.Error.Type != models.ErrBuildCancelled {
		t.Errorf("got outcome %s error %+v, want aborted build_cancelled", r.Outcome, r.Error)
	}
	if p.destroyed != 1 {
		t.Errorf("destroyed %d environments, want 1", p.destroyed)
	}
}

func TestRunWritesLogs(t *testing.T) {
	dir := t.TempDir()
	b := datasetBuilder(t, lexibankDataset(t))
	(&executor.StepRunner{Provider: &fakeProvider{}, BuildsDir: dir}).Run(context.Background(), b, 3, "")

	stdout, err := os.ReadFile(filepath.Join(dir, b.Name, "3", "00-git", "stdout.txt"))
	if err != nil {
		t.Fatalf("reading step log: %v", err)
	}
	if !strings.HasPrefix(string(stdout), "git clone") {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, b.Name, "3", "02-upgrade_tools", "stderr.txt")); err != nil {
		t.Errorf("missing stderr log: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, b.Name, "3", "result.json")); err != nil {
		t.Errorf("missing result.json: %v", err)
	}
}

func TestRunStepLogsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	b := models.Builder{
		Name: "lexibank-abvd",
		Pipeline: models.Pipeline{
			BuilderName: "lexibank-abvd",
			Steps: []models.Step{
				{Name: "validate cldf/x.json", Stage: models.StageValidate, Command: []string{"first"}},
				{Name: "validate cldf_x.json", Stage: models.StageValidate, Command: []string{"second"}},
			},
		},
	}
	(&executor.StepRunner{Provider: &fakeProvider{}, BuildsDir: dir}).Run(context.Background(), b, 1, "")

	for step, want := range map[string]string{
		"00-validate_cldf_x.json": "first",
		"01-validate_cldf_x.json": "second",
	} {
		got, err := os.ReadFile(filepath.Join(dir, b.Name, "1", step, "stdout.txt"))
		if err != nil {
			t.Fatalf("reading %s log: %v", step, err)
		}
		if string(got) != want {
			t.Errorf("%s stdout = %q, want %q", step, got, want)
		}
	}
}

func testTopology(t *testing.T) *models.Topology {
	t.Helper()
	var catalog []models.Dataset
	for _, url := range []string{
		"https://github.com/lexibank/abvd.git",
		"https://github.com/lexibank/wold.git",
	} {
		ds, err := models.NewDataset("lexibank", url, []string{"cldf/cldf-metadata.json"}, models.CuratorSpecialized)
		if err != nil {
			t.Fatal(err)
		}
		catalog = append(catalog, ds)
	}
	ds, err := models.NewDataset("cldf-datasets", "https://github.com/cldf-datasets/wals.git",
		[]string{"cldf/StructureDataset-metadata.json"}, models.CuratorGeneric)
	if err != nil {
		t.Fatal(err)
	}
	catalog = append(catalog, ds)

	top, err := topology.Build(catalog, pipeline.NewBuilder(pipeline.DefaultOptions()), []string{"worker"})
	if err != nil {
		t.Fatalf("building topology: %v", err)
	}
	return top
}

func TestMasterForce(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{exitCode: exitOn("cldf check", 2)}
	m := executor.NewMaster(testTopology(t), p, executor.MasterOptions{Workers: 2})
	m.Start(ctx)
	defer m.Close()

	h, err := m.Force(ctx, "lexibank-abvd-force")
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	r, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if r.Builder != "lexibank-abvd" || r.Number != 1 || r.Verdict != models.VerdictDegraded {
		t.Errorf("got %s #%d %s, want lexibank-abvd #1 degraded", r.Builder, r.Number, r.Verdict)
	}

	h, err = m.Force(ctx, "lexibank-abvd-force")
	if err != nil {
		t.Fatalf("second Force() error: %v", err)
	}
	if h.Number != 2 {
		t.Errorf("second build number = %d, want 2", h.Number)
	}
}

func TestMasterSchedulerErrors(t *testing.T) {
	ctx := context.Background()
	m := executor.NewMaster(testTopology(t), &fakeProvider{}, executor.MasterOptions{})

	if _, err := m.Force(ctx, "nope"); !errors.Is(err, executor.ErrUnknownScheduler) {
		t.Errorf("Force(nope) error = %v, want ErrUnknownScheduler", err)
	}
	if _, err := m.Force(ctx, "release-lexibank"); !errors.Is(err, executor.ErrSchedulerKind) {
		t.Errorf("Force(triggerable) error = %v, want ErrSchedulerKind", err)
	}
	if err := m.Trigger(ctx, "lexibank-abvd-force"); !errors.Is(err, executor.ErrSchedulerKind) {
		t.Errorf("Trigger(force) error = %v, want ErrSchedulerKind", err)
	}
}

func TestMasterAggregatorTriggersOrganization(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	m := executor.NewMaster(testTopology(t), p, executor.MasterOptions{Workers: 1, Title: "test"})
	m.Start(ctx)
	defer m.Close()

	h, err := m.Force(ctx, "release-lexibank-force")
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	r, err := h.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != models.Success || r.EnvironmentID != "" {
		t.Errorf("aggregator got %s in %q, want success without environment", r.Outcome, r.EnvironmentID)
	}

	m.Drain()
	var builders []string
	for _, r := range m.Results() {
		builders = append(builders, r.Builder)
	}
	slices.Sort(builders)
	want := []string{"a-release-lexibank", "lexibank-abvd", "lexibank-wold"}
	if !slices.Equal(builders, want) {
		t.Errorf("builds = %v, want %v", builders, want)
	}

	s := m.Summary()
	if s.TotalBuilds != 3 || s.HealthyBuilds != 3 || s.Title != "test" {
		t.Errorf("summary = %+v", s)
	}
	if p.created != 2 {
		t.Errorf("created %d environments, want 2", p.created)
	}
}

func TestMasterTrigger(t *testing.T) {
	ctx := context.Background()
	m := executor.NewMaster(testTopology(t), &fakeProvider{exitCode: exitOn("git clone", 1)}, executor.MasterOptions{Workers: 3})
	m.Start(ctx)
	defer m.Close()

	if err := m.Trigger(ctx, "release-cldf-datasets"); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	m.Drain()

	s := m.Summary()
	if s.TotalBuilds != 1 || s.BrokenBuilds != 1 {
		t.Errorf("summary = %+v, want one broken build", s)
	}
	if s.Results[0].Builder != "cldf-datasets-wals" {
		t.Errorf("built %s, want cldf-datasets-wals", s.Results[0].Builder)
	}
}

func TestMasterCancelledQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{}
	m := executor.NewMaster(testTopology(t), p, executor.MasterOptions{Workers: 1})
	cancel()
	m.Start(ctx)
	defer m.Close()

	h, err := m.Force(context.Background(), "lexibank-wold-force")
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}
	r, err := h.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Error == nil || r.Error.Type != models.ErrBuildCancelled {
		t.Errorf("error = %+v, want build_cancelled", r.Error)
	}
	if p.created != 0 {
		t.Errorf("created %d environments for a cancelled build", p.created)
	}
}
