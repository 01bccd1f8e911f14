package models

import "fmt"

// Outcome is the classified result of a step or a whole pipeline. Values are
// ordered from best to worst.
type Outcome int

const (
	Success Outcome = iota
	Warning
	Failure
	// Aborted marks steps skipped after a halting failure, and pipelines that
	// stopped early.
	Aborted
)

var outcomeNames = map[Outcome]string{
	Success: "success",
	Warning: "warning",
	Failure: "failure",
	Aborted: "aborted",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, v := range outcomeNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Worst returns the more severe of two outcomes.
func Worst(a, b Outcome) Outcome {
	if b > a {
		return b
	}
	return a
}

// Verdict is the operator-facing health of a finished pipeline.
type Verdict string

const (
	VerdictHealthy  Verdict = "healthy"
	VerdictDegraded Verdict = "degraded"
	VerdictBroken   Verdict = "broken"
)

// VerdictFor maps a pipeline outcome to a verdict. Only an aborted pipeline
// is broken; failures in non-halting steps degrade it.
func VerdictFor(o Outcome) Verdict {
	switch o {
	case Success:
		return VerdictHealthy
	case Warning, Failure:
		return VerdictDegraded
	default:
		return VerdictBroken
	}
}
