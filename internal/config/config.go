// Package config turns command-line tokens into a run configuration.
//
// Tokens are bare words, not flags, and may appear in any order:
//
//	tscbench [ipc_mode] [cmp] [clock] [factor=N]
//
// Omitted tokens are filled in as follows:
//   - no clock and no ipc mode: low_ipc
//   - cmp without an ipc mode: low_ipc
//   - no clock: rdtscp
//   - a clock without an ipc mode or cmp: the clock is timed on its own
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/matrix"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

// DefaultDuration is how long each timed run lasts.
const DefaultDuration = 10 * time.Second

// ErrUsage is returned for an unknown token or a bad factor.
var ErrUsage = errors.New("config: invalid arguments")

// Config describes one benchmark invocation.
type Config struct {
	// Kind is the workload. TimestampOnly times the reader alone.
	Kind workload.Kind

	// Variant is the timestamp mechanism under test.
	Variant clock.Variant

	// SkipReads runs the workload with reads disabled. It has no effect
	// when Kind is TimestampOnly.
	SkipReads bool

	// Compare runs the workload a second time without reads and reports
	// the rate ratio.
	Compare bool

	Duration   time.Duration
	Factor     int
	MatrixSize int
	HighIPCDim int
}

// Default returns the configuration used when no tokens are given.
func Default() Config {
	return Config{
		Kind:       workload.LowIPC,
		Variant:    clock.DefaultVariant,
		Duration:   DefaultDuration,
		Factor:     workload.DefaultFactor,
		MatrixSize: matrix.DefaultSize,
		HighIPCDim: workload.DefaultDim,
	}
}

// Reader returns the variant the workload should read, Disabled when reads
// are skipped.
func (c Config) Reader() clock.Variant {
	if c.SkipReads && c.Kind != workload.TimestampOnly {
		return clock.Disabled
	}
	return c.Variant
}

// progress lines for each accepted token
var tokenNotes = map[string]string{
	"low_ipc":                     "running low IPC test",
	"high_ipc":                    "running high IPC test",
	"notsc":                       "disabling tsc reads",
	"rdtscp":                      "use rdtscp",
	"rdtsc":                       "use rdtsc",
	"rdtsc_lfence":                "use lfence;rdtsc",
	"rdtsc_cas":                   "use cas;rdtsc",
	"clock_gettime":               "use clock_gettime",
	"clock_gettime_non_monotonic": "use clock_gettime_non_monotonic",
	"cmp":                         "comparison run",
}

// Parse builds a Config from tokens. Each accepted token is logged at info
// level through the logger carried by ctx.
//
// When several clock tokens are given the last one wins; variants have no
// precedence over each other, so "rdtscp rdtsc" times rdtsc.
func Parse(ctx context.Context, tokens []string) (Config, error) {
	logger := pslog.Ctx(ctx)
	cfg := Default()

	var haveIPC, haveClock bool
	for _, tok := range tokens {
		switch {
		case tok == "cmp":
			cfg.Compare = true
		case tok == "notsc":
			cfg.SkipReads = true
		case strings.HasPrefix(tok, "factor="):
			f, err := strconv.Atoi(strings.TrimPrefix(tok, "factor="))
			if err != nil || f < 1 {
				return Config{}, fmt.Errorf("%w: %q: factor must be a positive integer", ErrUsage, tok)
			}
			cfg.Factor = f
			logger.Info("factor", "factor", f)
			continue
		default:
			if k, ok := workload.ParseKind(tok); ok {
				cfg.Kind = k
				haveIPC = true
				break
			}
			v, ok := clock.ParseVariant(tok)
			if !ok || v == clock.Disabled {
				return Config{}, fmt.Errorf("%w: %q", ErrUsage, tok)
			}
			cfg.Variant = v
			haveClock = true
		}
		logger.Info(tokenNotes[tok])
	}

	switch {
	case !haveIPC && !haveClock:
		cfg.Kind = workload.LowIPC
		logger.Info("running default low IPC run")
	case !haveIPC && cfg.Compare:
		cfg.Kind = workload.LowIPC
		logger.Info("running default low IPC run")
	case !haveIPC:
		cfg.Kind = workload.TimestampOnly
	}
	return cfg, nil
}

// Usage writes the command synopsis to w.
func Usage(w io.Writer, prog string) {
	fmt.Fprintf(w, "usage: %s [flags] [ipc_mode] [cmp] [clock] [factor=N]\n", prog)
	fmt.Fprintf(w, "\tvalid ipc modes are low_ipc and high_ipc\n")
	fmt.Fprintf(w, "\tvalid clock modes are %s\n", strings.Join(clockTokens(), ", "))
	fmt.Fprintf(w, "\tcmp: compares the ipc mode with and without tsc reads\n")
	fmt.Fprintf(w, "\tfactor=N: allows tuning the IPC of the low_ipc loop.  Higher factors result in higher IPC\n")
}

// clockTokens lists notsc first, then every reading variant.
func clockTokens() []string {
	tokens := []string{clock.Disabled.String()}
	for _, v := range clock.Variants() {
		if v != clock.Disabled {
			tokens = append(tokens, v.String())
		}
	}
	return tokens
}
