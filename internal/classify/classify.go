// Package classify maps process exit codes to step outcomes.
//
// The validation tools exit with 2 when they completed but found issues a
// human should look at. Steps running those tools carry WarningPolicy so
// that code is reported as a warning instead of a failure.
package classify

import "github.com/spachava753/buildmaster/internal/models"

// WarningPolicy returns a fresh {0: Success, 2: Warning} policy.
func WarningPolicy() map[int]models.Outcome {
	return map[int]models.Outcome{
		0: models.Success,
		2: models.Warning,
	}
}

// Classify returns the outcome of a step that exited with exitCode.
func Classify(step models.Step, exitCode int) models.Outcome {
	if step.ExitCodePolicy == nil {
		if exitCode == 0 {
			return models.Success
		}
		return models.Failure
	}
	if outcome, ok := step.ExitCodePolicy[exitCode]; ok {
		return outcome
	}
	return models.Failure
}

// Halts reports whether a step with the given outcome stops its pipeline.
func Halts(step models.Step, outcome models.Outcome) bool {
	return step.HaltOnFailure && outcome == models.Failure
}
