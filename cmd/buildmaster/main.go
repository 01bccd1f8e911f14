// buildmaster synthesizes CI pipelines for a catalog of CLDF datasets and
// runs them on demand.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `usage: buildmaster [flags] <command> [args]

commands:
  topology              print builders and schedulers
  pipeline <builder>    print the pipeline of one builder
  force <scheduler>     run a force scheduler and wait for its builds
  trigger <scheduler>   fire a triggerable scheduler and wait for its builds
  status                print the per-organization dashboards

flags:
`

// exitError carries a process exit code without an error message.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("buildmaster", pflag.ContinueOnError)
	opts.addFlags(flagSet)
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return &exitError{code: 2}
	}

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, finishing running steps...", "signal", sig)
		cancel()
	}()

	app, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "topology":
		return app.printTopology(rest)
	case "pipeline":
		return app.printPipeline(rest)
	case "status":
		return app.printStatus(rest)
	case "force":
		return app.force(ctx, rest)
	case "trigger":
		return app.trigger(ctx, rest)
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
