// Package modal runs builds in Modal sandboxes.
package modal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/modal-labs/libmodal/modal-go"
	"github.com/spachava753/buildmaster/internal/environment"
)

// Workspace is the sandbox directory that step workdirs are relative to.
const Workspace = "/workspace"

// ProviderConfig holds Modal-specific configuration.
type ProviderConfig struct {
	// AppName is the name of the Modal app to use. If empty, one is derived per build.
	AppName string
	// Regions specifies the Modal regions (e.g., "us-east", "us-west").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
	// Timeout bounds the lifetime of a sandbox.
	Timeout time.Duration
}

// ParseProviderConfig extracts Modal-specific config from the generic config map.
func ParseProviderConfig(config map[string]any) (ProviderConfig, error) {
	pc := ProviderConfig{Timeout: 24 * time.Hour}
	if config == nil {
		return pc, nil
	}
	if v, ok := config["app_name"].(string); ok {
		pc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		pc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				pc.Regions = append(pc.Regions, s)
			}
		}
	}
	if v, ok := config["verbose"].(bool); ok {
		pc.Verbose = v
	}
	if v, ok := config["timeout"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return pc, fmt.Errorf("invalid modal timeout %q: %w", v, err)
		}
		pc.Timeout = d
	}
	return pc, nil
}

// Provider implements the Modal environment provider using Modal Sandboxes.
type Provider struct {
	client *modal.Client
	config ProviderConfig
}

// NewProvider creates a new Modal provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	slog.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "modal"
}

// appName picks the Modal app for a build: config first, then the build name.
func (p *Provider) appName(name string) string {
	if p.config.AppName != "" {
		return p.config.AppName
	}
	if name != "" {
		return "buildmaster-" + name
	}
	return fmt.Sprintf("buildmaster-%d", time.Now().UnixNano())
}

// CreateEnvironment creates and starts a Modal sandbox with an empty workspace.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	appName := p.appName(opts.Name)
	slog.Debug("creating modal app", "name", appName)

	// Get or create the Modal app
	app, err := p.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal app: %w", err)
	}

	imageRef := opts.Image
	if imageRef == "" {
		imageRef = "python:3.12"
	}
	image := p.client.Images.FromRegistry(imageRef, nil)

	cpuCount, err := parseCPUs(opts.CPUs)
	if err != nil {
		return nil, err
	}
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = 2048
	}

	envVars := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		envVars[k] = v
	}

	slog.Debug("creating modal sandbox",
		"app", appName,
		"image", imageRef,
		"cpus", cpuCount,
		"memory_mib", memoryMiB,
		"regions", p.config.Regions)

	sandbox, err := p.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       cpuCount,
		MemoryMiB: memoryMiB,
		Env:       envVars,
		Timeout:   p.config.Timeout,
		Verbose:   p.config.Verbose,
		Regions:   p.config.Regions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	env := &ModalEnvironment{
		sandbox: sandbox,
		appName: appName,
		stopApp: p.config.AppName == "",
	}
	if code, err := env.Exec(ctx, []string{"mkdir", "-p", Workspace}, nil, nil, environment.ExecOptions{}); err != nil || code != 0 {
		_ = sandbox.Terminate(ctx)
		if err == nil {
			err = fmt.Errorf("exit code %d", code)
		}
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	slog.Debug("modal sandbox created", "sandbox_id", sandbox.SandboxID)
	return env, nil
}

// parseCPUs converts a CPU string to a fractional core count.
func parseCPUs(cpus string) (float64, error) {
	cpus = strings.TrimSpace(cpus)
	if cpus == "" {
		return 1, nil
	}
	count, err := strconv.ParseFloat(cpus, 64)
	if err != nil || count <= 0 || math.IsInf(count, 0) {
		return 0, fmt.Errorf("invalid CPU value: %s", cpus)
	}
	return count, nil
}

// ModalEnvironment represents a running Modal sandbox.
type ModalEnvironment struct {
	sandbox *modal.Sandbox
	appName string
	// stopApp is set when the app was created for this build alone.
	stopApp bool
}

// ID returns the sandbox ID.
func (e *ModalEnvironment) ID() string {
	return e.sandbox.SandboxID
}

// Exec executes a command in the sandbox.
func (e *ModalEnvironment) Exec(ctx context.Context, argv []string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if len(argv) == 0 {
		return environment.ExitCodeNotRun, fmt.Errorf("empty command")
	}

	execParams := &modal.SandboxExecParams{
		Env:     opts.Env,
		Workdir: path.Join(Workspace, opts.WorkDir),
	}
	if opts.Timeout > 0 {
		execParams.Timeout = opts.Timeout
	}

	slog.Debug("executing command in modal sandbox",
		"sandbox_id", e.sandbox.SandboxID,
		"command", strings.Join(argv, " "),
		"timeout", opts.Timeout)

	process, err := e.sandbox.Exec(ctx, argv, execParams)
	if err != nil {
		return environment.ExitCodeNotRun, fmt.Errorf("executing command: %w", err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Stream stdout and stderr concurrently
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(stdout, process.Stdout)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(stderr, process.Stderr)
		done <- struct{}{}
	}()
	<-done
	<-done

	exitCode, err := process.Wait(ctx)
	if err != nil {
		return environment.ExitCodeNotRun, fmt.Errorf("waiting for process: %w", err)
	}

	if exitCode != 0 {
		slog.Debug("command exited with non-zero code",
			"sandbox_id", e.sandbox.SandboxID,
			"exit_code", exitCode)
	}
	return exitCode, nil
}

// Destroy terminates the sandbox and, when it owns it, stops the app.
func (e *ModalEnvironment) Destroy(ctx context.Context) error {
	slog.Debug("destroying modal sandbox", "sandbox_id", e.sandbox.SandboxID, "app", e.appName)

	if err := e.sandbox.Terminate(ctx); err != nil {
		if !strings.Contains(err.Error(), "already terminated") &&
			!strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("terminating sandbox: %w", err)
		}
	}

	if e.stopApp {
		// The modal-go SDK doesn't expose AppStop on the public API, so we use the CLI.
		if err := stopApp(ctx, e.appName); err != nil {
			return fmt.Errorf("stopping app: %w", err)
		}
	}

	slog.Debug("modal sandbox destroyed", "sandbox_id", e.sandbox.SandboxID)
	return nil
}

// stopApp stops the Modal app using the modal CLI.
func stopApp(ctx context.Context, appName string) error {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return fmt.Errorf("modal CLI not found: the modal-go SDK does not expose the AppStop API, " +
			"so the CLI is required to clean up apps. Install it with: pip install modal")
	}

	cmd := exec.CommandContext(ctx, modalPath, "app", "stop", appName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ignorableStopOutput(string(output)) {
			return nil
		}
		return fmt.Errorf("modal app stop failed: %s", output)
	}
	return nil
}

// ignorableStopOutput reports whether a failed "modal app stop" only means
// the app is already gone.
func ignorableStopOutput(out string) bool {
	return strings.Contains(out, "already stopped") ||
		strings.Contains(out, "not found") ||
		strings.Contains(out, "Could not find")
}
