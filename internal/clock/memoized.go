package clock

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/randomizedcoder/tscbench/internal/tsc"
)

// updating marks the cached value as being refreshed. Published values are
// always even, so the marker never collides with a real timestamp.
const updating uint64 = 0x1

// MemoizedCounter amortizes counter reads across concurrent callers.
//
// The first caller that sees the cached value idle claims it by setting the
// low bit with a compare-and-swap, reads the counter, and publishes the new
// value with the low bit cleared. Everyone else waits for a published value
// that differs from the one they first saw and returns that. Callers get a
// coarser, shared timestamp in exchange for fewer hardware reads.
//
// Read never returns a value with the low bit set. If the claiming goroutine
// is descheduled between its claim and its publish, waiters keep spinning
// until it runs again; there is no timeout.
type MemoizedCounter struct {
	_     cpu.CacheLinePad
	value atomic.Uint64
	_     cpu.CacheLinePad
	yield bool
}

// NewMemoizedCounter returns a counter with an empty cache. When yield is
// true, waiters call runtime.Gosched instead of PAUSE.
func NewMemoizedCounter(yield bool) *MemoizedCounter {
	return &MemoizedCounter{yield: yield}
}

// Read returns the shared timestamp.
func (m *MemoizedCounter) Read() uint64 {
	cur := m.value.Load()

	if cur&updating == 0 {
		if m.value.CompareAndSwap(cur, cur|updating) {
			fresh := tsc.RDTSC() &^ updating
			m.value.Store(fresh)
			return fresh
		}
		// Someone else claimed it first. If they already published, use theirs.
		if seen := m.value.Load(); seen != cur && seen&updating == 0 {
			return seen
		}
	}

	for {
		seen := m.value.Load()
		if seen != cur && seen&updating == 0 {
			return seen
		}
		m.wait()
	}
}

// Cached returns the current cached value, which may carry the marker.
func (m *MemoizedCounter) Cached() uint64 {
	return m.value.Load()
}

func (m *MemoizedCounter) wait() {
	if m.yield {
		runtime.Gosched()
		return
	}
	tsc.Pause()
}
