//go:build !amd64

package tsc

// Supported is false: reads come from the runtime's monotonic clock.
const Supported = false

// HasRDTSCP is true: the fallback RDTSCP cannot fault.
var HasRDTSCP = true

// RDTSCP returns the monotonic clock in nanoseconds and a zero aux value.
func RDTSCP() (tsc uint64, aux uint32) {
	return uint64(nanotime()), 0
}

// RDTSC returns the monotonic clock in nanoseconds.
func RDTSC() uint64 {
	return uint64(nanotime())
}

// RDTSCLfence returns the monotonic clock in nanoseconds.
func RDTSCLfence() uint64 {
	return uint64(nanotime())
}

// Pause is a no-op.
func Pause() {}
