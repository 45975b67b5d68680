package harness

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

// Comparison pairs an instrumented run with the same workload run without
// timestamp reads.
type Comparison struct {
	Instrumented Result
	Disabled     Result

	// Ratio is Instrumented.Rate / Disabled.Rate. Values below 1 are the
	// slowdown caused by the reads.
	Ratio float64
}

// String formats the ratio to two decimals.
func (c Comparison) String() string {
	return strconv.FormatFloat(c.Ratio, 'f', 2, 64)
}

// Compare runs w for d with its own reader, then again for d with reads
// disabled, and returns the rate ratio. If ctx ends either run early no
// ratio is computed and the error wraps the ctx cause.
//
// Both runs share the matrix, which the first run has already mutated; the
// second run starts from whatever state the first left behind.
func (rc *RunContext) Compare(ctx context.Context, w *workload.Workload, d time.Duration) (Comparison, error) {
	if err := ctx.Err(); err != nil {
		return Comparison{}, fmt.Errorf("harness: comparison interrupted: %w", err)
	}
	instrumented, err := rc.RunFor(ctx, w, d)
	if err != nil {
		return Comparison{}, err
	}
	if err := ctx.Err(); err != nil {
		return Comparison{}, fmt.Errorf("harness: comparison interrupted: %w", err)
	}

	disabled, err := rc.RunFor(ctx, w.WithReader(clock.New(clock.Disabled)), d)
	if err != nil {
		return Comparison{}, err
	}
	if disabled.Interrupted {
		return Comparison{}, fmt.Errorf("harness: comparison interrupted: %w", context.Cause(ctx))
	}
	if disabled.Rate == 0 {
		return Comparison{}, ErrZeroBaseline
	}

	return Comparison{
		Instrumented: instrumented,
		Disabled:     disabled,
		Ratio:        float64(instrumented.Rate) / float64(disabled.Rate),
	}, nil
}
