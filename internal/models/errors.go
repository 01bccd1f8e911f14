package models

// ErrorType identifies the category of error that ended a build.
type ErrorType string

const (
	// Environment phase
	ErrEnvironmentStartFailed    ErrorType = "environment_start_failed"
	ErrEnvironmentTeardownFailed ErrorType = "environment_teardown_failed"

	// Step phase
	ErrStepExecFailed ErrorType = "step_exec_failed"
	ErrStepHalted     ErrorType = "step_halted"
	ErrTriggerFailed  ErrorType = "trigger_failed"

	// Build was interrupted at a step boundary
	ErrBuildCancelled ErrorType = "build_cancelled"

	// Pre-execution
	ErrPipelineInvalid ErrorType = "pipeline_invalid"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// BuildError describes why a build did not run to completion.
type BuildError struct {
	Type    ErrorType `json:"type" yaml:"type"`
	Message string    `json:"message" yaml:"message"`
}
