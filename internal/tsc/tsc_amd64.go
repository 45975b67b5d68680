//go:build amd64

package tsc

// Supported reports whether counter reads use the hardware instructions.
// RDTSC and LFENCE exist on every amd64 part; RDTSCP does not, see HasRDTSCP.
const Supported = true

// HasRDTSCP reports whether RDTSCP can execute without faulting
// (CPUID.80000001H:EDX bit 27).
var HasRDTSCP = detectRDTSCP()

func detectRDTSCP() bool {
	maxExt, _, _, _ := cpuid(0x80000000, 0)
	if maxExt < 0x80000001 {
		return false
	}
	_, _, _, edx := cpuid(0x80000001, 0)
	return edx&(1<<27) != 0
}

// cpuid executes CPUID. Implemented in tsc_amd64.s
//
//go:noescape
func cpuid(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)

// rdtscp executes RDTSCP. Implemented in tsc_amd64.s
//
//go:noescape
func rdtscp() (tsc uint64, aux uint64)

// rdtsc executes RDTSC. Implemented in tsc_amd64.s
//
//go:noescape
func rdtsc() uint64

// rdtscLfence executes LFENCE; RDTSC. Implemented in tsc_amd64.s
//
//go:noescape
func rdtscLfence() uint64

// pause executes PAUSE. Implemented in tsc_amd64.s
//
//go:noescape
func pause()

// RDTSCP reads the timestamp counter with a serializing instruction.
// aux is the IA32_TSC_AUX value, which Linux sets to the core and node id.
// Callers must check HasRDTSCP first.
func RDTSCP() (tsc uint64, aux uint32) {
	t, a := rdtscp()
	return t, uint32(a)
}

// RDTSC reads the timestamp counter without ordering guarantees.
func RDTSC() uint64 {
	return rdtsc()
}

// RDTSCLfence reads the timestamp counter after a load fence.
func RDTSCLfence() uint64 {
	return rdtscLfence()
}

// Pause hints to the core that the caller is spinning.
func Pause() {
	pause()
}
