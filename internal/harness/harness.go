// Package harness drives timed benchmark runs.
//
// A run has exactly two participants: the controller (the caller of RunFor)
// and one worker goroutine locked to its OS thread. The controller sleeps
// for the run duration, raises the stop signal and always joins the worker
// before returning, on success and on failure alike.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	ring "github.com/randomizedcoder/go-lock-free-ring"
	"pkt.systems/pslog"

	"github.com/randomizedcoder/tscbench/internal/interval"
	"github.com/randomizedcoder/tscbench/internal/stop"
)

// MinDuration is the shortest run RunFor accepts by default.
const MinDuration = time.Second

var (
	// ErrDurationTooShort is returned for a run shorter than the minimum.
	ErrDurationTooShort = errors.New("harness: run duration too short")

	// ErrNoElapsedTime is returned when the measured elapsed time is zero,
	// which also covers a wall clock that stepped backwards during the run.
	ErrNoElapsedTime = errors.New("harness: no elapsed time")

	// ErrWorker is returned when the worker fails, e.g. a clock read error.
	ErrWorker = errors.New("harness: worker failed")

	// ErrZeroBaseline is returned by Compare when the disabled run
	// completed no iterations.
	ErrZeroBaseline = errors.New("harness: zero baseline rate")
)

// RunContext owns the state shared by consecutive runs: the stop signal and
// the outcome ring. Runs on one RunContext must not overlap.
type RunContext struct {
	sig         *stop.Signal
	outcomes    *ring.ShardedRing
	logger      pslog.Logger
	minDuration time.Duration
}

// Option configures a RunContext.
type Option func(*RunContext)

// WithLogger sets the logger for phase diagnostics. Without it the logger
// carried by the run's context is used.
func WithLogger(l pslog.Logger) Option {
	return func(rc *RunContext) {
		rc.logger = l
	}
}

// WithMinDuration lowers (or raises) the shortest accepted run.
func WithMinDuration(d time.Duration) Option {
	return func(rc *RunContext) {
		rc.minDuration = d
	}
}

// NewRunContext creates a RunContext.
func NewRunContext(opts ...Option) (*RunContext, error) {
	// one producer, the worker
	outcomes, err := ring.NewShardedRing(1024, 1)
	if err != nil {
		return nil, fmt.Errorf("harness: outcome ring: %w", err)
	}
	rc := &RunContext{
		sig:         stop.New(),
		outcomes:    outcomes,
		minDuration: MinDuration,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

func (rc *RunContext) log(ctx context.Context) pslog.Logger {
	if rc.logger != nil {
		return rc.logger
	}
	return pslog.Ctx(ctx)
}

// sleep waits for d. It returns early when ctx is done or the worker has
// exited, which only happens when the worker failed.
func sleep(ctx context.Context, d time.Duration, exited <-chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-exited:
	}
}

// Result is the outcome of one timed run.
type Result struct {
	// Label names the workload and reader, e.g. "low_ipc/rdtscp".
	Label string

	// Iterations is the number of completed loop iterations.
	Iterations uint64

	// ElapsedMicros is the wall-clock duration of the run.
	ElapsedMicros uint64

	// Rate is iterations per second, floor(Iterations*1e6/ElapsedMicros).
	Rate uint64

	// Interrupted is set when ctx ended the run before its duration.
	Interrupted bool
}

// Rate computes floor(iterations * 1e6 / micros) without intermediate
// overflow. A quotient that does not fit in 64 bits saturates.
func Rate(iterations, micros uint64) (uint64, error) {
	if micros == 0 {
		return 0, ErrNoElapsedTime
	}
	hi, lo := bits.Mul64(iterations, interval.UsecPerSec)
	if hi >= micros {
		return ^uint64(0), nil
	}
	q, _ := bits.Div64(hi, lo, micros)
	return q, nil
}
