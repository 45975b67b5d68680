package harness_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"pkt.systems/pslog"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/harness"
	"github.com/randomizedcoder/tscbench/internal/matrix"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

const shortRun = 50 * time.Millisecond

// atomicReader counts calls; safe to inspect from the test goroutine.
type atomicReader struct {
	calls atomic.Uint64
}

func (r *atomicReader) Read() uint64 {
	return r.calls.Add(1)
}

// failingReader fails like a clock_gettime reader after a few calls.
type failingReader struct {
	after uint64
	calls uint64
}

func (r *failingReader) Read() uint64 {
	r.calls++
	if r.calls > r.after {
		panic(&clock.ReadError{Variant: clock.NonMonotonic, ClockID: 12, Err: unix.EINVAL})
	}
	return r.calls
}

func newRunContext(t *testing.T, opts ...harness.Option) *harness.RunContext {
	t.Helper()
	rc, err := harness.NewRunContext(append([]harness.Option{harness.WithMinDuration(0)}, opts...)...)
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	return rc
}

func newWorkload(t *testing.T, kind workload.Kind, size int, r clock.Reader) *workload.Workload {
	t.Helper()
	var m *matrix.Matrix
	if kind != workload.TimestampOnly {
		var err error
		if m, err = matrix.New(size, matrix.DefaultSeed); err != nil {
			t.Fatalf("matrix.New() error = %v", err)
		}
	}
	w, err := workload.New(kind, m, r)
	if err != nil {
		t.Fatalf("workload.New() error = %v", err)
	}
	return w
}

func TestRate(t *testing.T) {
	testCases := []struct {
		name       string
		iterations uint64
		micros     uint64
		want       uint64
		wantErr    error
	}{
		{"one per second", 10, 10 * 1_000_000, 1, nil},
		{"floor", 3, 2_000_000, 1, nil},
		{"sub-second", 500, 250_000, 2000, nil},
		{"large count", math.MaxUint64 / 2, 1_000_000, math.MaxUint64 / 2, nil},
		{"saturates", math.MaxUint64, 1, math.MaxUint64, nil},
		{"zero iterations", 0, 1_000_000, 0, nil},
		{"zero elapsed", 100, 0, 0, harness.ErrNoElapsedTime},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := harness.Rate(tc.iterations, tc.micros)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Rate() error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Rate(%d, %d) = %d, want %d", tc.iterations, tc.micros, got, tc.want)
			}
		})
	}
}

func TestRunFor_TooShort(t *testing.T) {
	rc, err := harness.NewRunContext()
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	w := newWorkload(t, workload.TimestampOnly, 0, nil)

	_, err = rc.RunFor(context.Background(), w, harness.MinDuration-time.Millisecond)
	if !errors.Is(err, harness.ErrDurationTooShort) {
		t.Errorf("RunFor() error = %v, want ErrDurationTooShort", err)
	}
}

func TestRunFor_ElapsedCoversDuration(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))

	res, err := rc.RunFor(context.Background(), w, shortRun)
	if err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	if res.ElapsedMicros < uint64(shortRun/time.Microsecond) {
		t.Errorf("ElapsedMicros = %d, want >= %d", res.ElapsedMicros, shortRun/time.Microsecond)
	}
	if res.Iterations == 0 || res.Rate == 0 {
		t.Errorf("Iterations = %d, Rate = %d, want both > 0", res.Iterations, res.Rate)
	}
	if res.Label != "timestamp_only/notsc" {
		t.Errorf("Label = %q", res.Label)
	}
	if res.Interrupted {
		t.Error("Interrupted = true for a run that completed")
	}
}

func TestRunFor_WorkerJoined(t *testing.T) {
	rc := newRunContext(t)
	r := &atomicReader{}
	w := newWorkload(t, workload.TimestampOnly, 0, r)

	res, err := rc.RunFor(context.Background(), w, shortRun)
	if err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	after := r.calls.Load()
	if after != res.Iterations {
		t.Errorf("reader called %d times, Iterations = %d", after, res.Iterations)
	}
	time.Sleep(20 * time.Millisecond)
	if got := r.calls.Load(); got != after {
		t.Errorf("reader still running after RunFor returned: %d -> %d calls", after, got)
	}
}

func TestRunFor_ReaderFailure(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.LowIPC, 1<<20, &failingReader{after: 100})

	start := time.Now()
	_, err := rc.RunFor(context.Background(), w, 10*time.Second)
	if err == nil {
		t.Fatal("RunFor() error = nil, want worker failure")
	}
	if !errors.Is(err, harness.ErrWorker) {
		t.Errorf("error = %v, want ErrWorker", err)
	}
	if !errors.Is(err, clock.ErrClockRead) {
		t.Errorf("error = %v, want ErrClockRead in chain", err)
	}
	var re *clock.ReadError
	if !errors.As(err, &re) || re.ClockID != 12 {
		t.Errorf("errors.As(*ReadError) = %v, %+v", err, re)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("failed run returned after %v, want early return", elapsed)
	}

	// The RunContext is reusable after a failed run.
	ok := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))
	if _, err := rc.RunFor(context.Background(), ok, shortRun); err != nil {
		t.Errorf("RunFor() after failure error = %v", err)
	}
}

func TestRunFor_Canceled(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(shortRun, cancel)
	defer cancel()

	start := time.Now()
	res, err := rc.RunFor(ctx, w, time.Hour)
	if err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Minute {
		t.Errorf("canceled run took %v", elapsed)
	}
	if !res.Interrupted {
		t.Error("Interrupted = false for a canceled run")
	}
	if res.Iterations == 0 {
		t.Error("a canceled run should still report its iterations")
	}
}

func TestRunFor_LoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := pslog.NewWithOptions(&buf, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)

	rc := newRunContext(t)
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))
	if _, err := rc.RunFor(ctx, w, shortRun); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"run started", "run finished", "timestamp_only/notsc"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRunFor_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := pslog.NewWithOptions(&buf, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})

	rc := newRunContext(t, harness.WithLogger(logger))
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))
	if _, err := rc.RunFor(context.Background(), w, shortRun); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	if !strings.Contains(buf.String(), "run finished") {
		t.Errorf("log output missing run finished:\n%s", buf.String())
	}
}

func TestComparison_String(t *testing.T) {
	testCases := []struct {
		ratio float64
		want  string
	}{
		{1, "1.00"},
		{0.8765, "0.88"},
		{0.004, "0.00"},
		{0.5, "0.50"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			c := harness.Comparison{Ratio: tc.ratio}
			if got := c.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

// Disabled against disabled measures the same loop twice.
func TestCompare_DisabledBaseline(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.LowIPC, 1<<20, clock.New(clock.Disabled))

	c, err := rc.Compare(context.Background(), w, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if c.Instrumented.Rate == 0 || c.Disabled.Rate == 0 {
		t.Fatalf("rates = %d, %d, want both > 0", c.Instrumented.Rate, c.Disabled.Rate)
	}
	if c.Ratio < 0.5 || c.Ratio > 2 {
		t.Errorf("Ratio = %.2f, want about 1", c.Ratio)
	}
	if c.Disabled.Label != "low_ipc/notsc" {
		t.Errorf("Disabled.Label = %q", c.Disabled.Label)
	}
}

func TestCompare_Canceled(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rc.Compare(ctx, w, shortRun); !errors.Is(err, context.Canceled) {
		t.Errorf("Compare() error = %v, want context.Canceled", err)
	}
}

// TestLowIPC_EndToEnd runs the real default duration and compares the
// serializing counter against no reads.
func TestLowIPC_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end run skipped in short mode")
	}

	rc, err := harness.NewRunContext()
	if err != nil {
		t.Fatalf("NewRunContext() error = %v", err)
	}
	if err := clock.Probe(clock.Serializing); err != nil {
		t.Skip(err)
	}
	w := newWorkload(t, workload.LowIPC, 8<<20, clock.New(clock.Serializing))

	c, err := rc.Compare(context.Background(), w, harness.MinDuration)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if c.Disabled.Iterations == 0 {
		t.Fatal("disabled run completed no iterations")
	}
	// reads cost something; allow noise above 1
	if c.Ratio <= 0 || c.Ratio > 1.1 {
		t.Errorf("Ratio = %.2f, want in (0, 1.1]", c.Ratio)
	}
	t.Logf("%s: %d loops/s, %s: %d loops/s, ratio %s",
		c.Instrumented.Label, c.Instrumented.Rate, c.Disabled.Label, c.Disabled.Rate, c)
}

func BenchmarkRate(b *testing.B) {
	b.ReportAllocs()
	var sum uint64
	for i := 0; i < b.N; i++ {
		r, _ := harness.Rate(uint64(i)+1<<40, 10_000_000)
		sum += r
	}
	sinkRate = sum
}

// Sink variable to prevent compiler from eliminating benchmark loops
var sinkRate uint64

// Canceling during the disabled run must not produce a ratio from a
// partial baseline.
func TestCompare_CanceledDuringBaseline(t *testing.T) {
	rc := newRunContext(t)
	w := newWorkload(t, workload.TimestampOnly, 0, clock.New(clock.Disabled))

	const d = 250 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(d+d/5, cancel)

	c, err := rc.Compare(ctx, w, d)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Compare() = %+v, error = %v, want context.Canceled", c, err)
	}
	if c.Ratio != 0 {
		t.Errorf("Ratio = %.2f, want no ratio for an interrupted comparison", c.Ratio)
	}
}
