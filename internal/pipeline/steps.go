package pipeline

import (
	"github.com/spachava753/buildmaster/internal/classify"
	"github.com/spachava753/buildmaster/internal/models"
)

const (
	entryPointGeneric     = "cldfbench.dataset"
	entryPointSpecialized = "lexibank.dataset"
)

func entryPoint(ds models.Dataset) string {
	if ds.Curator == models.CuratorSpecialized {
		return entryPointSpecialized
	}
	return entryPointGeneric
}

// venvCmd returns the path of a tool inside the dataset's virtualenv.
func venvCmd(ds models.Dataset, tool string) string {
	return "./" + ds.ID() + "/bin/" + tool
}

// cldfTool returns the cldf command line for a subcommand. Without an install
// step the venv has no cldf script, only an interpreter that sees the
// worker's site packages, so the module is run directly.
func cldfTool(ds models.Dataset, args ...string) []string {
	if !ds.Installable() {
		return append([]string{"python", "-m", "pycldf"}, args...)
	}
	return append([]string{"cldf"}, args...)
}

func (b *Builder) shell(ds models.Dataset, stage models.Stage, name string, cmd ...string) models.Step {
	return models.Step{
		Name:    name,
		Stage:   stage,
		Command: append([]string{venvCmd(ds, cmd[0])}, cmd[1:]...),
		WorkDir: b.opts.WorkDir,
		Env: map[string]string{
			"PYTHONPATH":     ".",
			"PYTHONWARNINGS": "ignore:DEPRECATION",
		},
	}
}

func (b *Builder) check(ds models.Dataset, stage models.Stage, name string, cmd ...string) models.Step {
	s := b.shell(ds, stage, name, cmd...)
	s.ExitCodePolicy = classify.WarningPolicy()
	return s
}

func (b *Builder) fetch(ds models.Dataset) []models.Step {
	return []models.Step{{
		Name:          "git",
		Stage:         models.StageFetch,
		Fetch:         &models.Fetch{RepoURL: ds.CloneURL, Mode: "full", Method: "fresh"},
		WorkDir:       b.opts.WorkDir,
		HaltOnFailure: true,
	}}
}

func (b *Builder) environment(ds models.Dataset) []models.Step {
	cmd := []string{b.opts.Interpreter, "-m", "venv"}
	if !ds.Installable() {
		// Nothing gets installed, so the worker's validation tooling must be visible.
		cmd = append(cmd, "--system-site-packages")
	}
	return []models.Step{{
		Name:    "virtualenv",
		Stage:   models.StageEnvironment,
		Command: append(cmd, ds.ID()),
		WorkDir: b.opts.WorkDir,
		Env:     map[string]string{"PYTHONPATH": "."},
	}}
}

func (b *Builder) bootstrap(ds models.Dataset) []models.Step {
	s := b.shell(ds, models.StageBootstrap, "upgrade tools",
		"pip", "--cache-dir", b.opts.CacheDir, "install", "--upgrade", "pip", "wheel", "setuptools")
	s.HaltOnFailure = true
	return []models.Step{s}
}

func (b *Builder) install(ds models.Dataset) []models.Step {
	s := b.shell(ds, models.StageInstall, "install dataset",
		"pip", "--cache-dir", b.opts.CacheDir, "install", "--upgrade", ".", "pytest", "pytest-cldf", "pycldf[catalogs]")
	s.HaltOnFailure = true
	return []models.Step{s}
}

func (b *Builder) generate(ds models.Dataset) []models.Step {
	sub := "makecldf"
	catalogs := []string{"--glottolog", b.opts.Glottolog}
	if ds.Curator == models.CuratorSpecialized {
		sub = "lexibank.makecldf"
		catalogs = append(catalogs, "--concepticon", b.opts.Concepticon, "--clts", b.opts.CLTS)
	}
	cmd := append([]string{"cldfbench", sub, ds.Name}, catalogs...)
	return []models.Step{b.shell(ds, models.StageGenerate, "makecldf", cmd...)}
}

func (b *Builder) unitTest(ds models.Dataset) []models.Step {
	return []models.Step{b.shell(ds, models.StageUnitTest, "pytest", "pytest")}
}

func (b *Builder) validate(ds models.Dataset) []models.Step {
	steps := make([]models.Step, 0, len(ds.MetadataPaths))
	for _, md := range ds.MetadataPaths {
		steps = append(steps, b.shell(ds, models.StageValidate, "validate "+md, cldfTool(ds, "validate", md)...))
	}
	return steps
}

func (b *Builder) consistencyCheck(ds models.Dataset) []models.Step {
	steps := make([]models.Step, 0, len(ds.MetadataPaths))
	for _, md := range ds.MetadataPaths {
		steps = append(steps, b.check(ds, models.StageConsistencyCheck, "cldf check "+md, cldfTool(ds, "check", md)...))
	}
	return steps
}

func (b *Builder) curatorCheck(ds models.Dataset) []models.Step {
	return []models.Step{b.check(ds, models.StageCuratorCheck, "cldfbench check",
		"cldfbench", "--log-level", "WARN", "check", ds.Name, "--entry-point", entryPoint(ds))}
}

func (b *Builder) specializedChecks(ds models.Dataset) []models.Step {
	ep := entryPoint(ds)
	return []models.Step{
		b.check(ds, models.StageSpecializedCheck, "lexibank profile check",
			"cldfbench", "--log-level", "WARN", "lexibank.check_profile", ds.Name, "--entry-point", ep, "--clts", b.opts.CLTS),
		b.check(ds, models.StageSpecializedCheck, "lexibank phonotactics check",
			"cldfbench", "--log-level", "WARN", "lexibank.check_phonotactics", ds.Name, "--entry-point", ep),
		b.check(ds, models.StageSpecializedCheck, "lexibank check",
			"cldfbench", "--log-level", "WARN", "lexibank.check", ds.Name, "--entry-point", ep),
	}
}

func (b *Builder) diffReport(ds models.Dataset) []models.Step {
	return []models.Step{b.check(ds, models.StageDiffReport, "cldfbench diff",
		"cldfbench", "diff", "--verbose", ds.Name, "--entry-point", entryPoint(ds))}
}
