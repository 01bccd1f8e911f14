package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spachava753/buildmaster/internal/classify"
	"github.com/spachava753/buildmaster/internal/environment"
	"github.com/spachava753/buildmaster/internal/models"
)

// TriggerFunc starts the builders of a triggerable scheduler. When wait is
// set it returns only once those builds have finished.
type TriggerFunc func(ctx context.Context, scheduler string, wait bool) error

// StepRunner runs the pipeline of one builder, sequentially, in a fresh
// environment.
type StepRunner struct {
	Provider environment.Provider
	// EnvOptions is the template for every environment the runner creates.
	EnvOptions environment.CreateEnvironmentOptions
	// BuildsDir receives per-step logs and result.json. Empty disables them.
	BuildsDir string
	// Trigger executes trigger steps. Nil makes every trigger step fail.
	Trigger TriggerFunc
}

// Run executes b's pipeline as build number n. Cancellation of ctx is only
// observed between steps; a running step always completes.
func (r *StepRunner) Run(ctx context.Context, b models.Builder, n int, scheduler string) *models.BuildResult {
	result := &models.BuildResult{
		Builder:   b.Name,
		Number:    n,
		Scheduler: scheduler,
		StartedAt: time.Now(),
		Steps:     make([]models.StepResult, len(b.Pipeline.Steps)),
	}
	for i, s := range b.Pipeline.Steps {
		result.Steps[i] = models.StepResult{Name: s.Name, Stage: s.Stage, Outcome: models.Aborted}
	}

	defer func() {
		result.EndedAt = time.Now()
		result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()
		result.Verdict = models.VerdictFor(result.Outcome)
		r.writeResult(result)
	}()

	logger := slog.With("builder", b.Name, "build", n)

	if err := b.Pipeline.Validate(); err != nil {
		result.Outcome = models.Aborted
		result.Error = &models.BuildError{Type: models.ErrPipelineInvalid, Message: err.Error()}
		return result
	}
	if ctx.Err() != nil {
		result.Outcome = models.Aborted
		result.Error = &models.BuildError{Type: models.ErrBuildCancelled, Message: "cancelled before start"}
		return result
	}

	// Steps run to completion even if the build is cancelled meanwhile.
	stepCtx := context.WithoutCancel(ctx)

	var env environment.Environment
	if needsEnvironment(b.Pipeline) {
		opts := r.EnvOptions
		opts.Name = fmt.Sprintf("%s-%d", b.Name, n)
		var err error
		env, err = r.Provider.CreateEnvironment(stepCtx, opts)
		if err != nil {
			logger.Error("environment start failed", "error", err)
			result.Outcome = models.Aborted
			result.Error = &models.BuildError{Type: models.ErrEnvironmentStartFailed, Message: err.Error()}
			return result
		}
		result.EnvironmentID = env.ID()
		defer func() {
			if err := env.Destroy(context.Background()); err != nil {
				logger.Warn("environment teardown failed", "environment", env.ID(), "error", err)
				if result.Error == nil {
					result.Error = &models.BuildError{Type: models.ErrEnvironmentTeardownFailed, Message: err.Error()}
				}
			}
		}()
	}

	outcome := models.Success
	for i, step := range b.Pipeline.Steps {
		if ctx.Err() != nil {
			logger.Info("build cancelled", "before_step", step.Name)
			result.Error = &models.BuildError{Type: models.ErrBuildCancelled, Message: fmt.Sprintf("cancelled before step %q", step.Name)}
			result.Outcome = models.Aborted
			return result
		}

		sr := r.runStep(stepCtx, env, result, i, step)
		result.Steps[i] = sr
		logger.Debug("step finished", "step", step.Name, "outcome", sr.Outcome)

		if classify.Halts(step, sr.Outcome) {
			logger.Info("build halted", "step", step.Name)
			if result.Error == nil {
				result.Error = &models.BuildError{Type: models.ErrStepHalted, Message: fmt.Sprintf("step %q failed", step.Name)}
			}
			result.Outcome = models.Aborted
			return result
		}
		outcome = models.Worst(outcome, sr.Outcome)
	}

	result.Outcome = outcome
	return result
}

func needsEnvironment(p models.Pipeline) bool {
	for _, s := range p.Steps {
		if s.Trigger == nil {
			return true
		}
	}
	return false
}

// runStep executes one step and classifies its outcome.
func (r *StepRunner) runStep(ctx context.Context, env environment.Environment, result *models.BuildResult, index int, step models.Step) models.StepResult {
	sr := models.StepResult{
		Name:      step.Name,
		Stage:     step.Stage,
		Executed:  true,
		StartedAt: time.Now(),
	}
	defer func() {
		sr.EndedAt = time.Now()
		sr.DurationSec = sr.EndedAt.Sub(sr.StartedAt).Seconds()
	}()

	if step.Trigger != nil {
		sr.Outcome = models.Success
		if err := r.runTrigger(ctx, step.Trigger); err != nil {
			sr.Outcome = models.Failure
			if result.Error == nil {
				result.Error = &models.BuildError{Type: models.ErrTriggerFailed, Message: err.Error()}
			}
		}
		return sr
	}

	argv, opts := commandFor(step)
	var stdout, stderr bytes.Buffer
	code, err := env.Exec(ctx, argv, &stdout, &stderr, opts)
	r.writeStepLogs(result, index, step.Name, stdout.Bytes(), stderr.Bytes())
	if err != nil {
		sr.Outcome = models.Failure
		if result.Error == nil {
			result.Error = &models.BuildError{Type: models.ErrStepExecFailed, Message: fmt.Sprintf("step %q: %s", step.Name, err)}
		}
		return sr
	}

	sr.ExitCode = &code
	sr.Outcome = classify.Classify(step, code)
	if sr.Outcome != models.Success {
		slog.Debug("step exit status", "builder", result.Builder, "step", step.Name, "exit_code", code, "outcome", sr.Outcome)
	}
	return sr
}

func (r *StepRunner) runTrigger(ctx context.Context, t *models.Trigger) error {
	if r.Trigger == nil {
		return fmt.Errorf("triggering is not available")
	}
	for _, name := range t.SchedulerNames {
		if err := r.Trigger(ctx, name, t.WaitForFinish); err != nil {
			return fmt.Errorf("triggering %s: %w", name, err)
		}
	}
	return nil
}

// commandFor returns the argv and exec options of a fetch or command step.
// A fetch always makes a fresh full clone into the step's workdir.
func commandFor(step models.Step) ([]string, environment.ExecOptions) {
	if step.Fetch != nil {
		dest := step.WorkDir
		if dest == "" {
			dest = "."
		}
		return []string{"git", "clone", step.Fetch.RepoURL, dest}, environment.ExecOptions{Env: step.Env}
	}
	return step.Command, environment.ExecOptions{Env: step.Env, WorkDir: step.WorkDir}
}

// buildDir returns <builds_dir>/<builder>/<number>, or "" when logs are disabled.
func (r *StepRunner) buildDir(result *models.BuildResult) string {
	if r.BuildsDir == "" {
		return ""
	}
	return filepath.Join(r.BuildsDir, result.Builder, strconv.Itoa(result.Number))
}

// stepDirName makes a step name usable as a directory name. The step index
// keeps names that sanitize alike apart.
func stepDirName(index int, name string) string {
	return fmt.Sprintf("%02d-%s", index, strings.NewReplacer("/", "_", " ", "_", "\\", "_").Replace(name))
}

func (r *StepRunner) writeStepLogs(result *models.BuildResult, index int, step string, stdout, stderr []byte) {
	dir := r.buildDir(result)
	if dir == "" {
		return
	}
	dir = filepath.Join(dir, stepDirName(index, step))
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("creating step log directory", "dir", dir, "error", err)
		return
	}
	os.WriteFile(filepath.Join(dir, "stdout.txt"), stdout, 0644)
	os.WriteFile(filepath.Join(dir, "stderr.txt"), stderr, 0644)
}

func (r *StepRunner) writeResult(result *models.BuildResult) {
	dir := r.buildDir(result)
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("creating build directory", "dir", dir, "error", err)
		return
	}
	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	os.WriteFile(filepath.Join(dir, "result.json"), resultJSON, 0644)

	if result.Error != nil {
		os.WriteFile(filepath.Join(dir, "error.txt"), []byte(result.Error.Message), 0644)
	}
}
