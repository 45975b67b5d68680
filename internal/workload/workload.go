// Package workload implements the synthetic kernels the harness times.
//
// Two kernels bracket the IPC range:
//   - LowIPC: data-dependent pointer chasing through the matrix, dominated by
//     cache misses (IPC well below 1 on most machines)
//   - HighIPC: a dense n x n matrix multiply carved out of the matrix
//     (IPC of 3 or more on most machines)
//
// TimestampOnly does no synthetic work and measures the raw call rate of
// the timestamp reader.
//
// Every kernel reads the timestamp every ReadEvery steps and counts
// iterations into the caller's loop counter; the driver turns that count into
// a rate.
package workload

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/matrix"
	"github.com/randomizedcoder/tscbench/internal/stop"
)

const (
	// ReadEvery is the trigger period for timestamp reads.
	ReadEvery = 500

	// LowIPCOuter is the number of outer iterations in one low-IPC pass.
	LowIPCOuter = 1024

	// LowIPCInner is the number of chase steps per outer iteration.
	LowIPCInner = 256

	// DefaultDim is the side length of the high-IPC matrices.
	DefaultDim = 105

	// DefaultFactor is the default low-IPC arithmetic multiplier.
	DefaultFactor = 1
)

// ErrInvalid is returned for a kind, factor or dimension that cannot run.
var ErrInvalid = errors.New("workload: invalid parameters")

// Kind selects which kernel a Workload runs.
type Kind int

const (
	// LowIPC chases pointers through the matrix.
	LowIPC Kind = iota
	// HighIPC multiplies two matrices.
	HighIPC
	// TimestampOnly calls the reader in a tight loop.
	TimestampOnly
)

var kindNames = [...]string{
	LowIPC:        "low_ipc",
	HighIPC:       "high_ipc",
	TimestampOnly: "timestamp_only",
}

// String returns the command-line token for k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a command-line token to a Kind. Only the two synthetic
// kernels have tokens; TimestampOnly is derived from the other tokens.
func ParseKind(token string) (Kind, bool) {
	switch token {
	case "low_ipc":
		return LowIPC, true
	case "high_ipc":
		return HighIPC, true
	default:
		return 0, false
	}
}

// Workload is one configured kernel: the kind tag plus the data it needs.
//
// A Workload is driven by exactly one goroutine at a time.
type Workload struct {
	kind   Kind
	reader clock.Reader
	cells  []uint64
	factor uint64
	dim    int
	rng    *rand.Rand

	// high-IPC operands and product, views into cells
	m1, m2, m3 []uint64
}

// Option configures New.
type Option func(*Workload)

// WithFactor sets the low-IPC arithmetic multiplier: each outer iteration
// performs 2*factor accumulation updates. Higher factors raise IPC.
func WithFactor(factor int) Option {
	return func(w *Workload) {
		if factor > 0 {
			w.factor = uint64(factor)
		}
	}
}

// WithDim sets the high-IPC matrix side length.
func WithDim(dim int) Option {
	return func(w *Workload) {
		w.dim = dim
	}
}

// WithSeed seeds the low-IPC start-index source.
func WithSeed(seed uint64) Option {
	return func(w *Workload) {
		w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New builds a Workload of kind over m, reading timestamps through r.
func New(kind Kind, m *matrix.Matrix, r clock.Reader, opts ...Option) (*Workload, error) {
	if r == nil {
		r = clock.DisabledReader{}
	}
	w := &Workload{
		kind:   kind,
		reader: r,
		factor: DefaultFactor,
		dim:    DefaultDim,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.rng == nil {
		WithSeed(matrix.DefaultSeed)(w)
	}

	switch kind {
	case LowIPC:
		if m == nil {
			return nil, fmt.Errorf("%w: low_ipc needs a matrix", ErrInvalid)
		}
		w.cells = m.Cells()
	case HighIPC:
		if m == nil {
			return nil, fmt.Errorf("%w: high_ipc needs a matrix", ErrInvalid)
		}
		if w.dim <= 0 {
			return nil, fmt.Errorf("%w: dimension %d", ErrInvalid, w.dim)
		}
		w.cells = m.Cells()
		var err error
		if w.m1, err = m.Region(0, w.dim); err != nil {
			return nil, err
		}
		if w.m2, err = m.Region(1, w.dim); err != nil {
			return nil, err
		}
		if w.m3, err = m.Region(2, w.dim); err != nil {
			return nil, err
		}
	case TimestampOnly:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalid, kind)
	}
	return w, nil
}

// Kind returns the kernel tag.
func (w *Workload) Kind() Kind { return w.kind }

// Reader returns the timestamp reader.
func (w *Workload) Reader() clock.Reader { return w.reader }

// Factor returns the low-IPC arithmetic multiplier.
func (w *Workload) Factor() int { return int(w.factor) }

// Dim returns the high-IPC matrix side length.
func (w *Workload) Dim() int { return w.dim }

// WithReader returns a copy of w that reads timestamps through r. The copy
// shares the matrix, so it must not run concurrently with w.
func (w *Workload) WithReader(r clock.Reader) *Workload {
	if r == nil {
		r = clock.DisabledReader{}
	}
	c := *w
	c.reader = r
	return &c
}

// Pass runs one invocation of the kernel, adding completed iterations to
// loops. It returns early once sig is stopped: LowIPC after the current
// outer iteration, HighIPC immediately, TimestampOnly before the next read.
//
// The returned value only exists so the work cannot be optimized away.
func (w *Workload) Pass(sig *stop.Signal, loops *uint64) uint64 {
	switch w.kind {
	case LowIPC:
		return w.lowIPC(sig, loops)
	case HighIPC:
		return w.highIPC(sig, loops)
	case TimestampOnly:
		return w.readOnly(sig, loops)
	default:
		return 0
	}
}
