package models

import "fmt"

// Stage identifies which part of a dataset pipeline produced a step.
type Stage string

const (
	StageFetch            Stage = "fetch"
	StageEnvironment      Stage = "environment"
	StageBootstrap        Stage = "bootstrap"
	StageInstall          Stage = "install"
	StageGenerate         Stage = "generate"
	StageUnitTest         Stage = "unit-test"
	StageValidate         Stage = "validate"
	StageConsistencyCheck Stage = "consistency-check"
	StageCuratorCheck     Stage = "curator-check"
	StageSpecializedCheck Stage = "specialized-check"
	StageDiffReport       Stage = "diff-report"
	// StageTrigger is only used by aggregator builders.
	StageTrigger Stage = "trigger"
)

// Stages lists the dataset pipeline stages in execution order.
var Stages = []Stage{
	StageFetch,
	StageEnvironment,
	StageBootstrap,
	StageInstall,
	StageGenerate,
	StageUnitTest,
	StageValidate,
	StageConsistencyCheck,
	StageCuratorCheck,
	StageSpecializedCheck,
	StageDiffReport,
}

// Fetch describes a source checkout. The working tree is always replaced by
// a fresh clone.
type Fetch struct {
	RepoURL string `json:"repo_url" yaml:"repo_url"`
	Mode    string `json:"mode" yaml:"mode"`
	Method  string `json:"method" yaml:"method"`
}

// Trigger starts the builders of a triggerable scheduler.
type Trigger struct {
	SchedulerNames []string `json:"scheduler_names" yaml:"scheduler_names"`
	WaitForFinish  bool     `json:"wait_for_finish" yaml:"wait_for_finish"`
}

// Step is one unit of a pipeline. Exactly one of Fetch, Trigger or Command is set.
type Step struct {
	Name    string            `json:"name" yaml:"name"`
	Stage   Stage             `json:"stage" yaml:"stage"`
	Fetch   *Fetch            `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Trigger *Trigger          `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Command []string          `json:"command,omitempty" yaml:"command,omitempty"`
	WorkDir string            `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// HaltOnFailure aborts the remaining steps when this step fails.
	HaltOnFailure bool `json:"halt_on_failure" yaml:"halt_on_failure"`

	// ExitCodePolicy maps exit codes to outcomes. Unmapped codes are failures.
	// Nil means 0 is success and everything else is failure.
	ExitCodePolicy map[int]Outcome `json:"exit_code_policy,omitempty" yaml:"exit_code_policy,omitempty"`
}

// Validate checks that the step carries exactly one action.
func (s Step) Validate() error {
	actions := 0
	if s.Fetch != nil {
		actions++
	}
	if s.Trigger != nil {
		actions++
	}
	if len(s.Command) > 0 {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("step %q: expected exactly one of fetch, trigger or command, got %d", s.Name, actions)
	}
	return nil
}

// Pipeline is the ordered list of steps built for one builder.
type Pipeline struct {
	BuilderName string `json:"builder" yaml:"builder"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// StageSequence returns the distinct stages of the pipeline in order.
func (p Pipeline) StageSequence() []Stage {
	var stages []Stage
	for _, s := range p.Steps {
		if len(stages) == 0 || stages[len(stages)-1] != s.Stage {
			stages = append(stages, s.Stage)
		}
	}
	return stages
}

// StepNames returns the step names in order.
func (p Pipeline) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// Validate checks step actions and name uniqueness.
func (p Pipeline) Validate() error {
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("pipeline %s: %w", p.BuilderName, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("pipeline %s: duplicate step name %q", p.BuilderName, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
