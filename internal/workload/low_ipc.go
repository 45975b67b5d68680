package workload

import "github.com/randomizedcoder/tscbench/internal/stop"

// lowIPC does a little math and a lot of cache misses.
//
// Each outer iteration derives src and dst from matrix contents, then chases
// dst through the matrix for LowIPCInner steps. The 2*factor accumulation
// loop afterwards is the IPC knob: more rounds add arithmetic per miss.
// The stop signal is checked once per outer iteration.
func (w *Workload) lowIPC(sig *stop.Signal, loops *uint64) uint64 {
	m := w.cells
	size := uint64(len(m))
	rounds := 2 * w.factor

	var src, dst, sink uint64
	index := w.rng.Uint64N(size)

	for i := uint64(0); i < LowIPCOuter; i++ {
		src = m[index] % size
		index = (index + 1) % size
		dst = m[src] % size

		for j := uint64(0); j < LowIPCInner; j++ {
			dst = m[(dst+j)%size] % size
			if (i*j)%ReadEvery == 0 {
				sink += w.reader.Read()
				*loops++
			}
		}

		for k := uint64(0); k < rounds; k++ {
			m[dst] += m[(src+k)%size] + m[(dst+k)%size]
		}

		if sig.Stopped() {
			break
		}
	}
	return m[dst] + sink
}
