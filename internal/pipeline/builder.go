// Package pipeline synthesizes the ordered build steps for one dataset.
//
// Which stages a dataset gets depends only on its curator kind, through the
// curatorPolicy table. Datasets without build tooling get checkout,
// environment, validation and consistency checks; installable datasets add
// install, generation, tests, curator checks and a diff report; specialized
// datasets add three more checks.
package pipeline

import (
	"path/filepath"

	"github.com/spachava753/buildmaster/internal/models"
)

// Options configures the commands emitted by a Builder.
type Options struct {
	Interpreter string
	CacheDir    string
	WorkDir     string
	Glottolog   string
	Concepticon string
	CLTS        string
}

// DefaultOptions mirrors the layout of a worker checkout: reference catalogs
// live next to the build directory.
func DefaultOptions() Options {
	return Options{
		Interpreter: "python3",
		CacheDir:    "../.cache",
		WorkDir:     "build",
		Glottolog:   filepath.Join("..", "glottolog"),
		Concepticon: filepath.Join("..", "concepticon-data"),
		CLTS:        filepath.Join("..", "clts"),
	}
}

// OptionsFromSettings fills Options from host settings, keeping defaults for
// anything unset.
func OptionsFromSettings(s models.Settings) Options {
	opts := DefaultOptions()
	if s.Python.Interpreter != "" {
		opts.Interpreter = s.Python.Interpreter
	}
	if s.Python.CacheDir != "" {
		opts.CacheDir = s.Python.CacheDir
	}
	if s.Python.WorkDir != "" {
		opts.WorkDir = s.Python.WorkDir
	}
	if s.Catalogs.Glottolog != "" {
		opts.Glottolog = s.Catalogs.Glottolog
	}
	if s.Catalogs.Concepticon != "" {
		opts.Concepticon = s.Catalogs.Concepticon
	}
	if s.Catalogs.CLTS != "" {
		opts.CLTS = s.Catalogs.CLTS
	}
	return opts
}

// Builder turns datasets into pipelines. It holds no state besides its options.
type Builder struct {
	opts Options
}

// NewBuilder creates a pipeline builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// curatorPolicy lists the stages emitted for each curator kind, in order.
var curatorPolicy = map[models.CuratorKind][]models.Stage{
	models.CuratorNone: {
		models.StageFetch,
		models.StageEnvironment,
		models.StageValidate,
		models.StageConsistencyCheck,
	},
	models.CuratorGeneric: {
		models.StageFetch,
		models.StageEnvironment,
		models.StageBootstrap,
		models.StageInstall,
		models.StageGenerate,
		models.StageUnitTest,
		models.StageValidate,
		models.StageConsistencyCheck,
		models.StageCuratorCheck,
		models.StageDiffReport,
	},
	models.CuratorSpecialized: models.Stages,
}

// StagesFor returns the stages a dataset of the given kind runs.
func StagesFor(kind models.CuratorKind) []models.Stage {
	return append([]models.Stage(nil), curatorPolicy[kind]...)
}

type emitter func(b *Builder, ds models.Dataset) []models.Step

var emitters = map[models.Stage]emitter{
	models.StageFetch:            (*Builder).fetch,
	models.StageEnvironment:      (*Builder).environment,
	models.StageBootstrap:        (*Builder).bootstrap,
	models.StageInstall:          (*Builder).install,
	models.StageGenerate:         (*Builder).generate,
	models.StageUnitTest:         (*Builder).unitTest,
	models.StageValidate:         (*Builder).validate,
	models.StageConsistencyCheck: (*Builder).consistencyCheck,
	models.StageCuratorCheck:     (*Builder).curatorCheck,
	models.StageSpecializedCheck: (*Builder).specializedChecks,
	models.StageDiffReport:       (*Builder).diffReport,
}

// Build returns the pipeline for ds. It is deterministic and never fails;
// a curator kind outside the enumeration is treated as CuratorNone.
func (b *Builder) Build(ds models.Dataset) models.Pipeline {
	stages, ok := curatorPolicy[ds.Curator]
	if !ok {
		stages = curatorPolicy[models.CuratorNone]
	}

	p := models.Pipeline{BuilderName: ds.ID()}
	for _, stage := range stages {
		p.Steps = append(p.Steps, emitters[stage](b, ds)...)
	}
	return p
}
