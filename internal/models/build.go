package models

import "time"

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Name        string    `json:"name" yaml:"name"`
	Stage       Stage     `json:"stage" yaml:"stage"`
	Executed    bool      `json:"executed" yaml:"executed"`
	ExitCode    *int      `json:"exit_code" yaml:"exit_code"`
	Outcome     Outcome   `json:"outcome" yaml:"outcome"`
	DurationSec float64   `json:"duration_sec" yaml:"duration_sec"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	EndedAt     time.Time `json:"ended_at" yaml:"ended_at"`
}

// BuildResult is the outcome of running one builder's pipeline.
type BuildResult struct {
	Builder          string       `json:"builder" yaml:"builder"`
	Number           int          `json:"number" yaml:"number"`
	Scheduler        string       `json:"scheduler" yaml:"scheduler"`
	EnvironmentID    string       `json:"environment_id,omitempty" yaml:"environment_id,omitempty"`
	Outcome          Outcome      `json:"outcome" yaml:"outcome"`
	Verdict          Verdict      `json:"verdict" yaml:"verdict"`
	Steps            []StepResult `json:"steps" yaml:"steps"`
	Error            *BuildError  `json:"error" yaml:"error"`
	TotalDurationSec float64      `json:"total_duration_sec" yaml:"total_duration_sec"`
	StartedAt        time.Time    `json:"started_at" yaml:"started_at"`
	EndedAt          time.Time    `json:"ended_at" yaml:"ended_at"`
}

// ExecutedSteps returns the names of steps that actually ran.
func (r *BuildResult) ExecutedSteps() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Executed {
			names = append(names, s.Name)
		}
	}
	return names
}

// MasterSummary aggregates every build a master ran.
type MasterSummary struct {
	Title          string         `json:"title" yaml:"title"`
	TotalBuilds    int            `json:"total_builds" yaml:"total_builds"`
	HealthyBuilds  int            `json:"healthy_builds" yaml:"healthy_builds"`
	DegradedBuilds int            `json:"degraded_builds" yaml:"degraded_builds"`
	BrokenBuilds   int            `json:"broken_builds" yaml:"broken_builds"`
	Cancelled      bool           `json:"cancelled" yaml:"cancelled"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	EndedAt        time.Time      `json:"ended_at" yaml:"ended_at"`
	Results        []BuildSummary `json:"results" yaml:"results"`
}

// BuildSummary is the per-build line of a MasterSummary.
type BuildSummary struct {
	Builder string  `json:"builder" yaml:"builder"`
	Number  int     `json:"number" yaml:"number"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	Verdict Verdict `json:"verdict" yaml:"verdict"`
}
