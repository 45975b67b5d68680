package clock

import "github.com/randomizedcoder/tscbench/internal/tsc"

// SerializingCounter reads the timestamp counter with RDTSCP.
//
// Later instructions do not start before the read, and the read does not
// start before earlier instructions complete.
type SerializingCounter struct{}

// Read returns the counter value.
func (SerializingCounter) Read() uint64 {
	v, _ := tsc.RDTSCP()
	return v
}

// ReadCPU returns the counter value and the IA32_TSC_AUX value, which Linux
// programs with the core id. Tooling can use it to discard deltas taken
// across a migration.
func (SerializingCounter) ReadCPU() (uint64, uint32) {
	return tsc.RDTSCP()
}

// PlainCounter reads the timestamp counter with RDTSC.
type PlainCounter struct{}

// Read returns the counter value.
func (PlainCounter) Read() uint64 {
	return tsc.RDTSC()
}

// FencedCounter issues LFENCE before RDTSC.
type FencedCounter struct{}

// Read returns the counter value.
func (FencedCounter) Read() uint64 {
	return tsc.RDTSCLfence()
}
