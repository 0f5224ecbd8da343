// Package main provides the tomo command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/container"
	"github.com/born-ml/tomo/internal/dataset"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/pipeline"
	"github.com/born-ml/tomo/internal/plugin"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/variant"
)

const version = "v0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tomo: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration errors and 1 for everything else.
func exitCode(err error) int {
	if pipeline.IsConfigurationError(err) {
		return 2
	}
	return 1
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "tomo %s\n", version)
		return nil
	case "plugins":
		fmt.Fprintln(stdout, "Plugins:")
		for _, name := range plugin.NewDefaultRegistry().Names() {
			fmt.Fprintf(stdout, "  %s\n", name)
		}
		fmt.Fprintln(stdout, "Variants:")
		for _, name := range variant.NewDefaultRegistry().Names() {
			fmt.Fprintf(stdout, "  %s\n", name)
		}
		return nil
	case "run":
		return runPipeline(ctx, args[1:], stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "tomo - parallel pipelines over N-d scientific arrays")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version              Show version")
	fmt.Fprintln(w, "  plugins              List plugins and indexing variants")
	fmt.Fprintln(w, "  run -config FILE     Run the pipeline described by FILE")
}

func runPipeline(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "path to the JSON run configuration")
	workers := fs.Int("workers", 0, "override the configured worker count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("run: -config is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
	}
	if *workers > 0 {
		cfg.Workers = workers
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	st, err := newStore(cfg)
	if err != nil {
		return err
	}

	return execute(ctx, cfg, st, log)
}

func newLogger(cfg *config.RunConfig, w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return nil, err
	}
	if cfg.GetLogFormat() == "json" {
		return logging.NewJSONLogger(w, level), nil
	}
	return logging.NewTextLogger(w, level), nil
}

// newStore returns the store intermediate arrays live in. With a work
// directory they are files, throttled by the configured I/O limit; otherwise
// they stay in memory.
func newStore(cfg *config.RunConfig) (store.Store, error) {
	dir := cfg.GetWorkDir()
	if dir == "" {
		return store.NewMemoryStore(), nil
	}
	var opts []store.FileOption
	if limit := cfg.GetIOLimit(); limit > 0 {
		opts = append(opts, store.WithIOLimit(limit))
	}
	return store.NewFileStore(dir, opts...)
}

// execute loads the input container, runs the configured stages and saves
// the final output.
func execute(ctx context.Context, cfg *config.RunConfig, st store.Store, log *logging.Logger) error {
	start := time.Now()
	compression, err := container.ParseCompression(cfg.GetCompression())
	if err != nil {
		return err
	}

	stages, err := plugin.NewDefaultRegistry().BuildAll(cfg.Stages, log)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
	}

	var opts []dataset.Option
	if cfg.Variant != nil {
		opts = append(opts, dataset.WithVariant(cfg.Variant.Name, cfg.Variant.Params))
	}
	inputName := "input-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	input, err := dataset.Load(ctx, *cfg.Input, st, inputName, opts...)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	defer func() {
		_ = input.Close()
		_ = st.Remove(context.WithoutCancel(ctx), inputName)
	}()
	log.InfoContext(ctx, "input loaded",
		"path", *cfg.Input,
		"shape", fmt.Sprint(input.Shape()),
		"variant", input.Kind().String(),
	)

	runner := pipeline.NewRunner(
		pipeline.WithWorkers(cfg.GetWorkers()),
		pipeline.WithStore(st),
		pipeline.WithLogger(log),
	)
	res, err := runner.Run(ctx, input, stages...)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Output.Close()
		_ = st.Remove(context.WithoutCancel(ctx), res.Output.Name())
	}()

	if err := dataset.Save(ctx, res.Output, *cfg.Output, compression); err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	log.LogAttrs(ctx, slog.LevelInfo, "output saved",
		slog.String("path", *cfg.Output),
		slog.String("run", res.RunID.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
