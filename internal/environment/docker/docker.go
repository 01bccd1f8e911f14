// Package docker runs each build in a throwaway container.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/spachava753/buildmaster/internal/environment"
)

// Workspace is the directory inside the container that step workdirs are relative to.
const Workspace = "/workspace"

// DefaultImage is used when the master config names no image.
const DefaultImage = "python:3.12"

// Provider implements the Docker environment provider.
type Provider struct {
	// Binary is the docker CLI to invoke.
	Binary string
}

// NewProvider creates a new Docker provider.
func NewProvider() *Provider {
	return &Provider{Binary: "docker"}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "docker"
}

// runArgs builds the "docker run" arguments for a new build container.
func runArgs(containerID string, opts environment.CreateEnvironmentOptions) []string {
	args := []string{
		"run",
		"-d",
		"--name", containerID,
		"-w", Workspace,
	}

	// Add resource constraints
	if opts.CPUs != "" {
		args = append(args, "--cpus", opts.CPUs)
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}

	// Add environment variables
	for _, k := range environment.SortedKeys(opts.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	image := opts.Image
	if image == "" {
		image = DefaultImage
	}
	args = append(args, image)
	// Keep container running with sleep infinity
	return append(args, "sleep", "infinity")
}

// CreateEnvironment creates and starts a Docker container.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	containerID := fmt.Sprintf("buildmaster-%d", time.Now().UnixNano())
	if opts.Name != "" {
		containerID = fmt.Sprintf("buildmaster-%s-%d", opts.Name, time.Now().UnixNano())
	}

	cmd := exec.CommandContext(ctx, p.Binary, runArgs(containerID, opts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating docker container: %w: %s", err, stderr.String())
	}

	slog.Debug("docker container started", "container", containerID)
	return &DockerEnvironment{
		binary:      p.Binary,
		containerID: containerID,
	}, nil
}

// DockerEnvironment represents a running Docker container.
type DockerEnvironment struct {
	binary      string
	containerID string
}

// ID returns the container ID.
func (e *DockerEnvironment) ID() string {
	return e.containerID
}

// execArgs builds the "docker exec" arguments for one step.
func execArgs(containerID string, argv []string, opts environment.ExecOptions) []string {
	args := []string{"exec"}

	// Add environment variables
	for _, k := range environment.SortedKeys(opts.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	args = append(args, "-w", path.Join(Workspace, opts.WorkDir))
	args = append(args, containerID)
	return append(args, argv...)
}

// Exec executes a command in the container.
func (e *DockerEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return environment.ExitCodeNotRun, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, e.binary, execArgs(e.containerID, argv, opts)...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	err := execCmd.Run()
	if err != nil {
		// Check for context timeout
		if ctx.Err() == context.DeadlineExceeded {
			return environment.ExitCodeNotRun, fmt.Errorf("command timed out")
		}
		// Try to extract exit code
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), nil
		}
		return environment.ExitCodeNotRun, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

// Destroy removes the container and cleans up resources.
func (e *DockerEnvironment) Destroy(ctx context.Context) error {
	// Force remove the container
	cmd := exec.CommandContext(ctx, e.binary, "rm", "-f", e.containerID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Ignore error if container already removed
		if !strings.Contains(stderr.String(), "No such container") {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	slog.Debug("docker container removed", "container", e.containerID)
	return nil
}
