// Package stop provides the run-level stop signal shared by the benchmark
// controller and its worker.
//
// The controller is the only writer; the worker polls Stopped at natural loop
// boundaries. Each poll is a single atomic load, which keeps the check cheap
// enough to sit inside the high-IPC kernel's innermost loop.
package stop

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Signal is a single-writer, single-reader stop flag.
//
// The flag sits on its own cache line so the worker's polling never shares
// a line with data the workload writes.
type Signal struct {
	_    cpu.CacheLinePad
	done atomic.Bool
	_    cpu.CacheLinePad
}

// New creates a Signal in the cleared state.
func New() *Signal {
	return &Signal{}
}

// Stopped reports whether Stop has been called since the last Reset.
//
// This performs a single atomic load operation.
func (s *Signal) Stopped() bool {
	return s.done.Load()
}

// Stop asks the worker to return at its next check point.
//
// Safe to call multiple times; subsequent calls are no-ops.
func (s *Signal) Stop() {
	s.done.Store(true)
}

// Reset clears the flag at the start of a run.
//
// Not safe to call while a worker from a previous run is still polling.
func (s *Signal) Reset() {
	s.done.Store(false)
}
