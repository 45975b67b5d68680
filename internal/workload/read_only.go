package workload

import "github.com/randomizedcoder/tscbench/internal/stop"

// readOnly calls the reader until stopped, one iteration per call.
func (w *Workload) readOnly(sig *stop.Signal, loops *uint64) uint64 {
	var sink uint64
	for !sig.Stopped() {
		*loops++
		sink += w.reader.Read()
	}
	return sink
}
