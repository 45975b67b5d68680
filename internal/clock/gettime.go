package clock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/tscbench/internal/tsc"
)

// clockNonMonotonic is the clock id used for the non-monotonic reader.
// Kernels without it reject the call with EINVAL.
const clockNonMonotonic = 12

var (
	// ErrClockRead is wrapped by every ReadError.
	ErrClockRead = errors.New("clock: clock_gettime failed")

	// ErrUnsupported is returned by Probe for an instruction the CPU lacks.
	ErrUnsupported = errors.New("clock: not supported by this CPU")
)

// ReadError reports a failed clock_gettime call.
type ReadError struct {
	Variant Variant
	ClockID int32
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s (%s, clock id %d): %v", ErrClockRead, e.Variant, e.ClockID, e.Err)
}

// Unwrap returns both the sentinel and the underlying errno.
func (e *ReadError) Unwrap() []error {
	return []error{ErrClockRead, e.Err}
}

func panicOnFailure(err *ReadError) {
	panic(err)
}

// MonotonicClock reads CLOCK_MONOTONIC, which never decreases between calls
// on one machine.
type MonotonicClock struct {
	onFailure func(*ReadError)
}

// Read returns CLOCK_MONOTONIC in nanoseconds.
func (c *MonotonicClock) Read() uint64 {
	return gettime(Monotonic, unix.CLOCK_MONOTONIC, c.onFailure)
}

// NonMonotonicClock reads a clock with no monotonicity guarantee. It exists
// to compare its cost against the monotonic clock.
type NonMonotonicClock struct {
	onFailure func(*ReadError)
}

// Read returns CLOCK_NON_MONOTONIC in nanoseconds.
func (c *NonMonotonicClock) Read() uint64 {
	return gettime(NonMonotonic, clockNonMonotonic, c.onFailure)
}

func gettime(v Variant, id int32, onFailure func(*ReadError)) uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		if onFailure == nil {
			onFailure = panicOnFailure
		}
		onFailure(&ReadError{Variant: v, ClockID: id, Err: err})
		return 0
	}
	return uint64(ts.Nano())
}

// Probe reports whether the clock behind v can be read on this system.
// Serializing fails on CPUs without RDTSCP; the other counter variants and
// Disabled always succeed.
func Probe(v Variant) error {
	var id int32
	switch v {
	case Serializing:
		if !tsc.HasRDTSCP {
			return fmt.Errorf("%w: %s", ErrUnsupported, v)
		}
		return nil
	case Monotonic:
		id = unix.CLOCK_MONOTONIC
	case NonMonotonic:
		id = clockNonMonotonic
	default:
		return nil
	}

	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return &ReadError{Variant: v, ClockID: id, Err: err}
	}
	return nil
}
