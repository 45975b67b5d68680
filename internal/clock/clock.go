// Package clock provides the timestamp readers the harness interleaves into
// its workloads.
//
// Each variant has a different cost and ordering guarantee:
//   - Serializing: RDTSCP, fully serializing, also yields a core id
//   - Plain: RDTSC, may reorder with surrounding instructions
//   - Fenced: LFENCE; RDTSC, later loads wait for the fence
//   - Memoized: one shared cached counter refreshed by CAS
//   - Monotonic: clock_gettime(CLOCK_MONOTONIC)
//   - NonMonotonic: clock_gettime(CLOCK_NON_MONOTONIC)
//   - Disabled: constant 0, no work
//
// The variant is chosen once per run; readers are not switched per call.
package clock

import (
	"fmt"
	"strings"
)

// Reader returns a timestamp. Apart from the time it takes, Read has no
// side effects the caller can observe.
type Reader interface {
	Read() uint64
}

// Variant selects a Reader implementation.
type Variant int

const (
	// Serializing reads the counter with RDTSCP.
	Serializing Variant = iota
	// Plain reads the counter with RDTSC.
	Plain
	// Fenced reads the counter with LFENCE; RDTSC.
	Fenced
	// Memoized shares one counter value refreshed through compare-and-swap.
	Memoized
	// Monotonic reads CLOCK_MONOTONIC.
	Monotonic
	// NonMonotonic reads CLOCK_NON_MONOTONIC.
	NonMonotonic
	// Disabled returns 0 without touching any clock.
	Disabled
)

// DefaultVariant is used when no variant is requested.
const DefaultVariant = Serializing

var variantNames = [...]string{
	Serializing:  "rdtscp",
	Plain:        "rdtsc",
	Fenced:       "rdtsc_lfence",
	Memoized:     "rdtsc_cas",
	Monotonic:    "clock_gettime",
	NonMonotonic: "clock_gettime_non_monotonic",
	Disabled:     "notsc",
}

// Variants lists every variant in declaration order.
func Variants() []Variant {
	return []Variant{Serializing, Plain, Fenced, Memoized, Monotonic, NonMonotonic, Disabled}
}

// String returns the command-line token for v.
func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant maps a command-line token to a Variant.
func ParseVariant(token string) (Variant, bool) {
	token = strings.TrimSpace(token)
	for i, name := range variantNames {
		if name == token {
			return Variant(i), true
		}
	}
	return 0, false
}

// New returns the Reader for v. It panics on a Variant outside Variants();
// ParseVariant never produces one.
func New(v Variant, opts ...Option) Reader {
	o := options{onFailure: panicOnFailure}
	for _, opt := range opts {
		opt(&o)
	}

	switch v {
	case Serializing:
		return SerializingCounter{}
	case Plain:
		return PlainCounter{}
	case Fenced:
		return FencedCounter{}
	case Memoized:
		return NewMemoizedCounter(o.yield)
	case Monotonic:
		return &MonotonicClock{onFailure: o.onFailure}
	case NonMonotonic:
		return &NonMonotonicClock{onFailure: o.onFailure}
	case Disabled:
		return DisabledReader{}
	default:
		panic(fmt.Sprintf("clock: unknown variant %s", v))
	}
}

// Option configures New.
type Option func(*options)

type options struct {
	yield     bool
	onFailure func(*ReadError)
}

// WithYield makes the memoized counter yield the processor to the Go
// scheduler while it waits, instead of spinning with PAUSE.
func WithYield(yield bool) Option {
	return func(o *options) {
		o.yield = yield
	}
}

// WithOnFailure replaces the failure handler of the clock_gettime readers.
//
// The default handler panics with the *ReadError; the harness recovers it
// at the worker boundary and terminates the run. A handler that returns
// makes Read return 0.
func WithOnFailure(fn func(*ReadError)) Option {
	return func(o *options) {
		if fn != nil {
			o.onFailure = fn
		}
	}
}

// DisabledReader performs no work and always returns 0.
type DisabledReader struct{}

// Read returns 0.
func (DisabledReader) Read() uint64 { return 0 }

// Name returns the variant token for a Reader built by New, or the dynamic
// type for any other Reader.
func Name(r Reader) string {
	switch r := r.(type) {
	case SerializingCounter:
		return Serializing.String()
	case PlainCounter:
		return Plain.String()
	case FencedCounter:
		return Fenced.String()
	case *MemoizedCounter:
		return Memoized.String()
	case *MonotonicClock:
		return Monotonic.String()
	case *NonMonotonicClock:
		return NonMonotonic.String()
	case DisabledReader:
		return Disabled.String()
	default:
		return fmt.Sprintf("%T", r)
	}
}
