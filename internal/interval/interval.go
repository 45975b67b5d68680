// Package interval computes wall-clock deltas for timed benchmark runs.
//
// Deltas are measured with gettimeofday(2) and reported in microseconds.
// Time that appears to run backwards is clamped to zero rather than
// returned as a negative or wrapped value:
//   - stop before start (clock stepped back): 0
//   - microseconds still negative after borrowing a second: ErrTimeRanBackwards
package interval

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// UsecPerSec is the number of microseconds in one second.
const UsecPerSec = 1_000_000

var (
	// ErrClock is returned when the wall clock cannot be read.
	ErrClock = errors.New("interval: gettimeofday failed")

	// ErrTimeRanBackwards is returned when a subtraction is still negative
	// after borrowing a second. The inputs were not normalized timevals.
	ErrTimeRanBackwards = errors.New("interval: test time ran backwards")
)

// Timeval is a seconds/microseconds wall-clock reading.
//
// It mirrors unix.Timeval with fixed-width fields so arithmetic is the same
// on every architecture.
type Timeval struct {
	Sec  int64
	Usec int64
}

// FromUnix converts a unix.Timeval.
func FromUnix(tv unix.Timeval) Timeval {
	return Timeval{Sec: int64(tv.Sec), Usec: int64(tv.Usec)}
}

// FromDuration converts a duration into a Timeval relative to zero.
func FromDuration(d time.Duration) Timeval {
	return Timeval{Sec: int64(d / time.Second), Usec: int64(d%time.Second) / int64(time.Microsecond)}
}

// Now reads the current wall-clock time.
func Now() (Timeval, error) {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		return Timeval{}, fmt.Errorf("%w: %w", ErrClock, err)
	}
	return FromUnix(tv), nil
}

// Sub returns t1 - t0.
//
// A negative result is clamped to the zero Timeval. ErrTimeRanBackwards is
// returned only if the microseconds are still negative after borrowing a
// second from a positive seconds delta.
func Sub(t1, t0 Timeval) (Timeval, error) {
	d := Timeval{
		Sec:  t1.Sec - t0.Sec,
		Usec: t1.Usec - t0.Usec,
	}
	if d.Usec < 0 && d.Sec > 0 {
		d.Sec--
		d.Usec += UsecPerSec
		if d.Usec < 0 {
			return Timeval{}, ErrTimeRanBackwards
		}
	}

	// time shouldn't go backwards
	if d.Usec < 0 || t1.Sec < t0.Sec {
		return Timeval{}, nil
	}
	return d, nil
}

// ElapsedMicroseconds returns stop - start in microseconds.
//
// If stop precedes start the result is 0, never a negative or wrapped value.
// Callers must treat 0 as "no rate computable".
func ElapsedMicroseconds(start, stop Timeval) (uint64, error) {
	d, err := Sub(stop, start)
	if err != nil {
		return 0, err
	}
	usecs := uint64(d.Sec) * UsecPerSec
	usecs += uint64(d.Usec)
	return usecs, nil
}

// Micros returns d in whole microseconds, clamping negatives to 0.
func Micros(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}
