// Command tscbench measures how much reading a timestamp slows a workload.
//
// It runs a low-IPC (cache-missing) or high-IPC (matrix multiply) loop for
// ten seconds, reading the timestamp every 500 steps, and prints the loop
// rate. With cmp it repeats the run without reads and prints the ratio.
// Given only a clock it measures the raw call rate of that clock.
//
// Usage:
//
//	go run ./cmd/tscbench low_ipc cmp rdtsc
//	go run ./cmd/tscbench high_ipc notsc
//	go run ./cmd/tscbench clock_gettime
//	go run ./cmd/tscbench -log-level debug low_ipc factor=1000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"golang.org/x/term"
	"pkt.systems/pslog"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/config"
	"github.com/randomizedcoder/tscbench/internal/harness"
	"github.com/randomizedcoder/tscbench/internal/matrix"
	"github.com/randomizedcoder/tscbench/internal/report"
	"github.com/randomizedcoder/tscbench/internal/tsc"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

func main() {
	os.Exit(run())
}

func run() int {
	logLevel := flag.String("log-level", "info", "minimum log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "auto", "log format: auto, console or json")
	profileDir := flag.String("cpuprofile", "", "write a CPU profile into this directory")
	casYield := flag.Bool("cas-yield", false, "rdtsc_cas waiters yield to the scheduler instead of spinning")
	flag.Usage = func() {
		config.Usage(flag.CommandLine.Output(), os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "flags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = pslog.ContextWithLogger(ctx, logger)

	cfg, err := config.Parse(ctx, flag.Args())
	if err != nil {
		logger.Error("invalid arguments", "err", err)
		flag.Usage()
		return 1
	}

	if *profileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	}

	return exitCode(logger, bench(ctx, cfg, *casYield))
}

// exitCode logs a failed run and maps it to the process status. It must
// return rather than exit so deferred profile and signal cleanup still run.
func exitCode(logger pslog.Logger, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted", "err", err)
	default:
		logger.Error("benchmark failed", "err", err)
	}
	return 1
}

func newLogger(level, format string) (pslog.Logger, error) {
	lvl, ok := pslog.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	tty := term.IsTerminal(int(os.Stderr.Fd()))
	opts := pslog.Options{MinLevel: lvl, NoColor: !tty}
	switch format {
	case "auto":
		opts.Mode = pslog.ModeStructured
		if tty {
			opts.Mode = pslog.ModeConsole
		}
	case "console":
		opts.Mode = pslog.ModeConsole
	case "json":
		opts.Mode = pslog.ModeStructured
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return pslog.NewWithOptions(os.Stderr, opts), nil
}

func bench(ctx context.Context, cfg config.Config, casYield bool) error {
	logger := pslog.Ctx(ctx)

	variant := cfg.Reader()
	if err := clock.Probe(variant); err != nil {
		return err
	}
	if tsc.Supported {
		logger.Debug("tsc calibrated", "ticks_per_ns", tsc.Calibrate(100*time.Millisecond))
	}

	var m *matrix.Matrix
	if cfg.Kind != workload.TimestampOnly {
		var err error
		if m, err = matrix.New(cfg.MatrixSize, matrix.DefaultSeed); err != nil {
			return err
		}
		logger.Debug("matrix ready", "entries", m.Len())
	}

	w, err := workload.New(cfg.Kind, m, clock.New(variant, clock.WithYield(casYield)),
		workload.WithFactor(cfg.Factor),
		workload.WithDim(cfg.HighIPCDim),
	)
	if err != nil {
		return err
	}

	rc, err := harness.NewRunContext(harness.WithLogger(logger))
	if err != nil {
		return err
	}
	pr := report.New(os.Stderr, report.LocaleFromEnv())
	skipped := variant == clock.Disabled

	if cfg.Compare {
		c, err := rc.Compare(ctx, w, cfg.Duration)
		if err != nil {
			return err
		}
		if err := pr.Rate(cfg.Kind, cfg.Variant, skipped, c.Instrumented.Rate); err != nil {
			return err
		}
		if err := pr.Rate(cfg.Kind, cfg.Variant, true, c.Disabled.Rate); err != nil {
			return err
		}
		return pr.Ratio(c.Ratio)
	}

	res, err := rc.RunFor(ctx, w, cfg.Duration)
	if err != nil {
		return err
	}
	if res.Interrupted {
		logger.Warn("run interrupted, rate covers a partial run", "elapsed_us", res.ElapsedMicros)
	}
	return pr.Rate(cfg.Kind, cfg.Variant, skipped, res.Rate)
}
