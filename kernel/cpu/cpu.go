// Package cpu models the processor state that the memory subsystem relies
// on: interrupt priority levels, per-thread lock bookkeeping and the
// software-managed TLB.
package cpu

import (
	"os"
	"sync/atomic"
)

// MaxCPUs is the number of processors the kernel supports.
const MaxCPUs = 4

// Interrupt priority levels. Raising the priority to IPLHigh masks all
// interrupts on the current processor.
const (
	IPLNone = int32(0)
	IPLHigh = int32(1)
)

// CPU holds the state that the kernel tracks for each processor.
type CPU struct {
	// ID is the processor number.
	ID int

	// ipl is the current interrupt priority level.
	ipl int32

	tlb [NumTLB]tlbEntry
}

var (
	cpus [MaxCPUs]CPU

	// currentIDFn returns the number of the processor executing the
	// caller. The hosted kernel runs everything on the boot processor;
	// tests replace it to simulate other processors.
	currentIDFn = func() int { return 0 }

	// exitFn is mocked by tests.
	exitFn = os.Exit
)

func init() {
	for i := range cpus {
		cpus[i].ID = i
		cpus[i].invalidateTLB()
	}
}

// Current returns the processor executing the caller.
func Current() *CPU {
	return &cpus[currentIDFn()]
}

// SplHigh masks interrupts on the current processor and returns the previous
// priority level, which must later be passed to Splx.
func SplHigh() int32 {
	return atomic.SwapInt32(&Current().ipl, IPLHigh)
}

// Splx restores the interrupt priority level returned by SplHigh.
func Splx(level int32) {
	atomic.StoreInt32(&Current().ipl, level)
}

// InterruptsEnabled returns true if interrupts are not masked on the current
// processor.
func InterruptsEnabled() bool {
	return atomic.LoadInt32(&Current().ipl) == IPLNone
}

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() { Splx(IPLNone) }

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() { SplHigh() }

// Halt stops instruction execution. The hosted kernel has no halt
// instruction so the process exits with a non-zero status instead.
func Halt() {
	exitFn(1)
}

// PowerOff shuts the machine down after an orderly kernel exit.
func PowerOff() {
	exitFn(0)
}
