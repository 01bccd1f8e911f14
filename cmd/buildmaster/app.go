package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/spachava753/buildmaster/internal/catalog"
	"github.com/spachava753/buildmaster/internal/config"
	"github.com/spachava753/buildmaster/internal/executor"
	"github.com/spachava753/buildmaster/internal/models"
	"github.com/spachava753/buildmaster/internal/pipeline"
	"github.com/spachava753/buildmaster/internal/status"
	"github.com/spachava753/buildmaster/internal/topology"
)

type options struct {
	configPath   string
	settingsPath string
	envFile      string
	output       string
	logLevel     string
}

func (o *options) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.configPath, "config", "c", "master.yaml", "master configuration file")
	flagSet.StringVarP(&o.settingsPath, "settings", "s", "settings.toml", "host settings file")
	flagSet.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	flagSet.StringVarP(&o.output, "output", "o", "json", "output format: json or yaml")
	flagSet.StringVar(&o.logLevel, "log-level", "", "log level (overrides configuration)")
}

// app is a loaded master: configuration, catalog and topology.
type app struct {
	cfg    models.MasterConfig
	top    *models.Topology
	out    io.Writer
	format string
}

func setup(ctx context.Context, opts options) (*app, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", opts.envFile, err)
	}

	cfg, err := config.LoadMasterConfig(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.DefaultMasterConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(os.DirFS(filepath.Dir(opts.settingsPath)), filepath.Base(opts.settingsPath))
	if errors.Is(err, fs.ErrNotExist) {
		settings, err = config.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}

	config.ApplyEnv(&cfg, &settings)
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}

	datasets, err := catalog.LoadAll(ctx, cfg.Catalog.Sources, catalog.FromFilter(settings.Catalog))
	if err != nil {
		return nil, err
	}
	slog.Debug("catalog loaded", "datasets", len(datasets))

	pb := pipeline.NewBuilder(pipeline.OptionsFromSettings(settings))
	top, err := topology.Build(datasets, pb, config.WorkerNames(cfg))
	if err != nil {
		return nil, err
	}

	switch opts.output {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", opts.output)
	}

	return &app{cfg: cfg, top: top, out: os.Stdout, format: opts.output}, nil
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func (a *app) print(v any) error {
	if a.format == "yaml" {
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func expectArgs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func (a *app) printTopology(args []string) error {
	if err := expectArgs("topology", args, 0); err != nil {
		return err
	}
	return a.print(a.top)
}

func (a *app) printPipeline(args []string) error {
	if err := expectArgs("pipeline", args, 1); err != nil {
		return err
	}
	b, ok := a.top.Builder(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", executor.ErrUnknownBuilder, args[0])
	}
	return a.print(b.Pipeline)
}

func (a *app) printStatus(args []string) error {
	if err := expectArgs("status", args, 0); err != nil {
		return err
	}
	return a.print(status.Dashboards(a.top))
}

func (a *app) newMaster(ctx context.Context) (*executor.Master, error) {
	provider, err := executor.NewProvider(a.cfg.Environment)
	if err != nil {
		return nil, err
	}
	envOpts, err := executor.EnvironmentOptions(a.cfg.Environment)
	if err != nil {
		return nil, err
	}
	m := executor.NewMaster(a.top, provider, executor.MasterOptions{
		Title:      a.cfg.Title,
		Workers:    config.Capacity(a.cfg),
		BuildsDir:  a.cfg.BuildsDir,
		EnvOptions: envOpts,
	})
	m.Start(ctx)
	return m, nil
}

func (a *app) force(ctx context.Context, args []string) error {
	if err := expectArgs("force", args, 1); err != nil {
		return err
	}
	m, err := a.newMaster(ctx)
	if err != nil {
		return err
	}
	if _, err := m.Force(ctx, args[0]); err != nil {
		m.Close()
		return err
	}
	m.Close()
	return a.finish(m)
}

func (a *app) trigger(ctx context.Context, args []string) error {
	if err := expectArgs("trigger", args, 1); err != nil {
		return err
	}
	m, err := a.newMaster(ctx)
	if err != nil {
		return err
	}
	if err := m.Trigger(ctx, args[0]); err != nil {
		m.Close()
		return err
	}
	m.Close()
	return a.finish(m)
}

// finish prints the summary and fails when any build is broken.
func (a *app) finish(m *executor.Master) error {
	summary := m.Summary()
	if err := a.print(summary); err != nil {
		return err
	}

	var broken []string
	for _, r := range summary.Results {
		if r.Verdict == models.VerdictBroken {
			broken = append(broken, fmt.Sprintf("%s #%d", r.Builder, r.Number))
		}
	}
	if len(broken) > 0 || summary.Cancelled {
		slog.Error("builds broken", "builds", strings.Join(broken, ", "), "cancelled", summary.Cancelled)
		return &exitError{code: 1}
	}
	return nil
}
