// Package local runs build steps directly on the worker host, each build in
// its own temporary directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spachava753/buildmaster/internal/environment"
)

// Provider implements the local environment provider.
type Provider struct {
	// BaseDir holds the per-build directories. Empty means os.TempDir().
	BaseDir string
}

// NewProvider creates a new local provider.
func NewProvider(baseDir string) *Provider {
	return &Provider{BaseDir: baseDir}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// CreateEnvironment creates an empty workspace directory.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	base := p.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	pattern := "buildmaster-*"
	if opts.Name != "" {
		pattern = "buildmaster-" + opts.Name + "-*"
	}
	root, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	slog.Debug("created local workspace", "path", root)
	return &LocalEnvironment{root: root, env: opts.Env}, nil
}

// LocalEnvironment is a workspace directory on the host.
type LocalEnvironment struct {
	root string
	env  map[string]string
}

// ID returns the workspace path.
func (e *LocalEnvironment) ID() string {
	return e.root
}

// Root returns the workspace path.
func (e *LocalEnvironment) Root() string {
	return e.root
}

// Exec runs argv with its working directory inside the workspace.
func (e *LocalEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return environment.ExitCodeNotRun, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Join(e.root, opts.WorkDir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()
	for k, v := range e.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return environment.ExitCodeNotRun, fmt.Errorf("command timed out")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), nil
		}
		return environment.ExitCodeNotRun, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

// Destroy removes the workspace.
func (e *LocalEnvironment) Destroy(ctx context.Context) error {
	if err := os.RemoveAll(e.root); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
