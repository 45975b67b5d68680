package workload

import "github.com/randomizedcoder/tscbench/internal/stop"

// highIPC is a plain triple-loop matrix multiply, m3 = m1 * m2.
//
// It counts one iteration per completed output cell and reads the timestamp
// every ReadEvery multiply-accumulates. The stop signal is checked in the
// innermost loop and the pass returns at once, so after a stopped pass m3
// holds a partial product: the interrupted cell and everything after it are
// not meaningful.
func (w *Workload) highIPC(sig *stop.Signal, loops *uint64) uint64 {
	n := w.dim
	m1, m2, m3 := w.m1, w.m2, w.m3

	var ops, sink uint64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cell := i*n + j
			m3[cell] = 0

			for k := 0; k < n; k++ {
				m3[cell] += m1[i*n+k] * m2[k*n+j]
				ops++
				if ops%ReadEvery == 0 {
					sink += w.reader.Read()
				}
				if sig.Stopped() {
					return sink
				}
			}
			*loops++
		}
	}
	return sink
}

// Multiply computes m3 = m1 * m2 for n x n row-major matrices with uint64
// wrapping arithmetic. It is the reference the high-IPC kernel must match.
func Multiply(m1, m2, m3 []uint64, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum uint64
			for k := 0; k < n; k++ {
				sum += m1[i*n+k] * m2[k*n+j]
			}
			m3[i*n+j] = sum
		}
	}
}
