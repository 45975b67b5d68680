package harness

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/interval"
	"github.com/randomizedcoder/tscbench/internal/stop"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

// outcome is what the worker hands back to the controller.
type outcome struct {
	loops uint64
	sink  uint64
	err   error
}

// RunFor runs w for d and returns the iteration rate.
//
// The worker calls w.Pass until the stop signal is raised. The start
// timestamp is taken before the worker starts and the stop timestamp after
// it has been joined, so the elapsed time covers the whole run. A canceled
// ctx ends the sleep early; the partial run is still measured and reported
// with Interrupted set.
func (rc *RunContext) RunFor(ctx context.Context, w *workload.Workload, d time.Duration) (Result, error) {
	if d < rc.minDuration {
		return Result{}, fmt.Errorf("%w: %v, minimum %v", ErrDurationTooShort, d, rc.minDuration)
	}

	label := w.Kind().String() + "/" + clock.Name(w.Reader())
	logger := rc.log(ctx).With("run", label)

	rc.drain()
	rc.sig.Reset()

	start, err := interval.Now()
	if err != nil {
		return Result{}, err
	}

	var wg sync.WaitGroup
	exited := make(chan struct{})
	wg.Add(1)
	go rc.work(&wg, w, exited)

	logger.Debug("run started", "duration", d)
	sleep(ctx, d, exited)
	rc.sig.Stop()
	wg.Wait()

	end, err := interval.Now()
	if err != nil {
		return Result{}, err
	}

	out, err := rc.collect()
	if err != nil {
		return Result{}, err
	}
	if out.err != nil {
		return Result{}, out.err
	}

	micros, err := interval.ElapsedMicroseconds(start, end)
	if err != nil {
		return Result{}, err
	}
	rate, err := Rate(out.loops, micros)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Label:         label,
		Iterations:    out.loops,
		ElapsedMicros: micros,
		Rate:          rate,
		Interrupted:   ctx.Err() != nil,
	}
	logger.Debug("run finished",
		"iterations", res.Iterations,
		"elapsed_us", res.ElapsedMicros,
		"rate", res.Rate,
		"interrupted", res.Interrupted,
		"sink", out.sink)
	return res, nil
}

// work is the worker body. It runs on its own OS thread so the timestamp
// counter it reads belongs to one CPU for as long as the scheduler allows.
func (rc *RunContext) work(wg *sync.WaitGroup, w *workload.Workload, exited chan<- struct{}) {
	defer wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	out := &outcome{}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				out.err = fmt.Errorf("%w: %w", ErrWorker, e)
			} else {
				out.err = fmt.Errorf("%w: %v", ErrWorker, r)
			}
			// let nothing outlive a failed worker
			rc.sig.Stop()
		}
		rc.publish(out)
		close(exited)
	}()

	out.sink = loop(rc.sig, w, &out.loops)
}

func loop(sig *stop.Signal, w *workload.Workload, loops *uint64) uint64 {
	var sink uint64
	for !sig.Stopped() {
		sink += w.Pass(sig, loops)
	}
	return sink
}

// publish hands out to the controller. The ring is drained before every
// run, so the write only fails if the ring is misused.
func (rc *RunContext) publish(out *outcome) {
	for !rc.outcomes.Write(0, out) {
		runtime.Gosched()
	}
}

// collect reads the worker outcome. It is only called after the join.
func (rc *RunContext) collect() (*outcome, error) {
	v, ok := rc.outcomes.TryRead()
	if !ok {
		return nil, fmt.Errorf("%w: no outcome", ErrWorker)
	}
	out, ok := v.(*outcome)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected outcome %T", ErrWorker, v)
	}
	return out, nil
}

func (rc *RunContext) drain() {
	for {
		if _, ok := rc.outcomes.TryRead(); !ok {
			return
		}
	}
}
