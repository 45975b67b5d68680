// Package matrix holds the large shared buffer the workloads chase through.
//
// The buffer is big enough to defeat the caches, but it is filled from only
// SeedCount distinct values so the access pattern has bounded entropy:
// after New, Cells()[i] == Cells()[i%SeedCount] for every i.
package matrix

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	// DefaultSize is the default number of entries (64Mi, 512MiB).
	DefaultSize = 64 * 1024 * 1024

	// SeedCount is the number of distinct pseudorandom seed values.
	SeedCount = 2048

	// DefaultSeed makes every run fill the buffer identically.
	DefaultSeed uint64 = 1
)

// ErrTooSmall is returned when the requested size cannot hold the seeds or
// the high-IPC regions.
var ErrTooSmall = errors.New("matrix: size too small")

// Matrix is a fixed-length buffer of uint64 cells.
//
// It is owned by one run context and mutated only by the single active
// worker, so it carries no locking. The length never changes.
type Matrix struct {
	cells []uint64
	seeds [SeedCount]uint64
}

// New allocates size cells and seeds them from seed.
//
// Allocation failure aborts the process in the Go runtime; there is no
// partial matrix.
func New(size int, seed uint64) (*Matrix, error) {
	if size < SeedCount {
		return nil, fmt.Errorf("%w: %d entries, need at least %d", ErrTooSmall, size, SeedCount)
	}

	m := &Matrix{cells: make([]uint64, size)}

	// find some random numbers, 31 bits like rand(3)
	r := rand.New(rand.NewPCG(seed, seed))
	for i := range m.seeds {
		m.seeds[i] = uint64(r.Uint32() >> 1)
	}

	m.Reseed()
	return m, nil
}

// Reseed restores every cell to its seed value, undoing workload mutation.
func (m *Matrix) Reseed() {
	for i := range m.cells {
		m.cells[i] = m.seeds[i%SeedCount]
	}
}

// Len returns the number of cells.
func (m *Matrix) Len() int {
	return len(m.cells)
}

// Cells returns the backing slice. Workloads index it directly.
func (m *Matrix) Cells() []uint64 {
	return m.cells
}

// Seed returns seed value i, i in [0, SeedCount).
func (m *Matrix) Seed(i int) uint64 {
	return m.seeds[i]
}

// Region returns the idx'th contiguous n*n block, used as an n x n matrix
// in row-major order.
func (m *Matrix) Region(idx, n int) ([]uint64, error) {
	if n <= 0 || idx < 0 {
		return nil, fmt.Errorf("matrix: invalid region %d of %dx%d", idx, n, n)
	}
	sq := n * n
	end := (idx + 1) * sq
	if end > len(m.cells) {
		return nil, fmt.Errorf("%w: region %d of %dx%d needs %d entries, have %d",
			ErrTooSmall, idx, n, n, end, len(m.cells))
	}
	return m.cells[idx*sq : end : end], nil
}
