// Package tsc is the hardware boundary for timestamp counter reads.
//
// Everything instruction-level lives here so that the rest of the harness
// never depends on a particular architecture:
//   - RDTSCP: serializing counter read, also returns IA32_TSC_AUX (core id)
//   - RDTSC: plain counter read, free to reorder with nearby instructions
//   - RDTSCLfence: LFENCE then RDTSC, one-sided ordering
//   - Pause: spin-wait hint for busy loops
//
// On amd64 these are implemented in tsc_amd64.s. Other architectures fall
// back to the runtime's monotonic nanosecond clock (see tsc_generic.go), so
// a port only has to replace this package.
package tsc

import (
	"time"
	_ "unsafe" // Required for go:linkname
)

// nanotime returns the current monotonic time in nanoseconds.
//
//go:linkname nanotime runtime.nanotime
func nanotime() int64

// Calibrate measures counter ticks per nanosecond over roughly d.
//
// The result is approximate and can vary with:
//   - CPU frequency scaling on parts without an invariant TSC
//   - Power management states
//   - Scheduler preemption during the measurement window
//
// On the generic fallback the counter is nanotime itself and the result is ~1.
func Calibrate(d time.Duration) float64 {
	if d <= 0 {
		d = 10 * time.Millisecond
	}

	// Warm up the counter path
	RDTSC()
	RDTSC()

	start := RDTSC()
	t1 := nanotime()
	time.Sleep(d)
	end := RDTSC()
	t2 := nanotime()

	nanos := float64(t2 - t1)
	if nanos <= 0 {
		return 0
	}
	return float64(end-start) / nanos
}
