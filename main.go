package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chazu/tacit/pkg/config"
	"github.com/chazu/tacit/pkg/export"
	"github.com/chazu/tacit/pkg/logging"
	"github.com/chazu/tacit/pkg/telemetry"
)

type runOptions struct {
	script   string
	outDir   string
	format   string
	smooth   int
	restore  string
	snapshot string
}

func main() {
	fs := flag.NewFlagSet("tacit", flag.ExitOnError)
	var opts runOptions
	fs.StringVar(&opts.script, "script", "", "sculpt script to evaluate, - for stdin")
	fs.StringVar(&opts.outDir, "out", "", "directory to export the finished sculpture to")
	fs.StringVar(&opts.format, "format", "glb", "export format: glb or stl")
	fs.IntVar(&opts.smooth, "smooth", 0, "re-extract at this many steps per side on export, 0 writes the live mesh")
	fs.StringVar(&opts.restore, "restore", "", "voxel snapshot to load before the script runs")
	fs.StringVar(&opts.snapshot, "snapshot", "", "file to write the voxel snapshot to afterwards")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = telemetry.RunWithTelemetry(ctx, cfg.OTelEndpoint, func(ctx context.Context) error {
		return run(ctx, cfg, opts, os.Stdin, os.Stdout)
	})
	if err != nil {
		logging.New("main").WithError(err).Error("tacit failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts runOptions, stdin io.Reader, stdout io.Writer) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	app.startup(ctx)

	if opts.restore != "" {
		if err := app.LoadSnapshot(opts.restore); err != nil {
			return err
		}
	}

	if opts.script != "" {
		source, err := readScript(opts.script, stdin)
		if err != nil {
			return err
		}
		result := app.Evaluate(source)
		if len(result.Errors) > 0 {
			msgs := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				if e.Line > 0 {
					msgs[i] = fmt.Sprintf("line %d: %s", e.Line, e.Message)
				} else {
					msgs[i] = e.Message
				}
			}
			return fmt.Errorf("script: %s", strings.Join(msgs, "; "))
		}
		for _, m := range result.Messages {
			fmt.Fprintln(stdout, m)
		}
		for _, w := range result.Warnings {
			fmt.Fprintln(stdout, "warning:", w)
		}
		fmt.Fprintf(stdout, "changed %d cells, %d chunks\n", result.Changed, len(result.Meshes))
	}

	if opts.snapshot != "" {
		if err := app.SaveSnapshot(opts.snapshot); err != nil {
			return err
		}
	}
	if opts.outDir != "" {
		path, err := app.Export(opts.outDir, format, opts.smooth)
		if err != nil {
			if errors.Is(err, export.ErrEmptyMesh) {
				return fmt.Errorf("nothing to export: %w", err)
			}
			return err
		}
		fmt.Fprintln(stdout, path)
	}
	return nil
}

func readScript(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}
