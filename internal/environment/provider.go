package environment

import (
	"context"
	"io"
	"time"
)

// Environment is an isolated place where the steps of exactly one build run.
// It is never reused: every build creates a new one and destroys it at the end.
type Environment interface {
	// ID returns the unique identifier for this environment.
	ID() string

	// Exec runs argv in the environment, streaming stdout and stderr to the
	// provided writers. It returns the exit code; an error means the process
	// could not be run or did not finish.
	Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Destroy removes the environment and all files created in it.
	Destroy(ctx context.Context) error
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	// WorkDir is relative to the environment's workspace root.
	WorkDir string
}

// Provider is a factory for creating environments.
type Provider interface {
	// Name returns the provider name (e.g., "local", "docker", "modal").
	Name() string

	// CreateEnvironment creates and starts a new, empty environment.
	CreateEnvironment(ctx context.Context, opts CreateEnvironmentOptions) (Environment, error)
}

// CreateEnvironmentOptions configures environment creation.
type CreateEnvironmentOptions struct {
	// Name is used to derive container, sandbox or directory names.
	Name     string
	Image    string
	CPUs     string
	MemoryMB int
	Env      map[string]string
}

// ExitCodeNotRun is returned alongside an error when a command never produced an exit status.
const ExitCodeNotRun = -1
