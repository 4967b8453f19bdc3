// Package vmm manages process address spaces and resolves TLB faults
// against them.
package vmm

import (
	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/sync"
	"gophervm/kernel/trap"
)

const (
	// StackPages is the number of pages backing every user stack. It is
	// large enough to hold the biggest argument block a program can get.
	StackPages = 18

	// UserStackTop is the first address past the user stack and the end
	// of the user part of the address space.
	UserStackTop = uintptr(0x80000000)

	// userStackBase is the lowest address of the user stack.
	userStackBase = UserStackTop - StackPages*mm.PageSize
)

var (
	// the following functions are mocked by tests.
	panicFn           = kfmt.Panic
	canSleepFn        = sync.CanSleep
	tlbReadFn         = cpu.TLBRead
	tlbWriteFn        = cpu.TLBWrite
	splHighFn         = cpu.SplHigh
	splxFn            = cpu.Splx
	handleExceptionFn = trap.HandleException

	// currentAddrSpaceFn returns the address space of the running process
	// or nil if there is none.
	currentAddrSpaceFn = func() *AddrSpace { return nil }

	errInvalidRegion    = &kernel.Error{Module: "vmm", Message: "region must start above page 0 and span at least one byte", Kind: kernel.ErrInvalidArgument}
	errTooManyRegions   = &kernel.Error{Module: "vmm", Message: "address space supports at most two regions", Kind: kernel.ErrResourceExhausted}
	errOutOfMemory      = &kernel.Error{Module: "vmm", Message: "out of memory", Kind: kernel.ErrResourceExhausted}
	errNotLoaded        = &kernel.Error{Module: "vmm", Message: "address space has no physical backing", Kind: kernel.ErrInvalidArgument}
	errInvalidFaultKind = &kernel.Error{Module: "vmm", Message: "unknown fault type", Kind: kernel.ErrInvalidArgument}
	errNoAddrSpace      = &kernel.Error{Module: "vmm", Message: "fault without a current address space", Kind: kernel.ErrHardFault}
	errBadFaultAddr     = &kernel.Error{Module: "vmm", Message: "fault address is outside every region", Kind: kernel.ErrHardFault}
	errTLBExhausted     = &kernel.Error{Module: "vmm", Message: "ran out of TLB entries", Kind: kernel.ErrResourceExhausted}

	// invariant violations; these are reported through panicFn.
	errCannotSleep          = &kernel.Error{Module: "vmm", Message: "address space operation from a context that cannot sleep"}
	errAlreadyLoaded        = &kernel.Error{Module: "vmm", Message: "address space physical backing is already assigned"}
	errReadOnlyFault        = &kernel.Error{Module: "vmm", Message: "write fault on a read-only page"}
	errShootdownUnsupported = &kernel.Error{Module: "vmm", Message: "TLB shootdown is not supported"}
)

// SetAddrSpaceProvider registers the function used by Resolve and Activate
// to find the address space of the running process.
func SetAddrSpaceProvider(fn func() *AddrSpace) {
	if fn == nil {
		fn = func() *AddrSpace { return nil }
	}
	currentAddrSpaceFn = fn
}

// Init installs the handlers for the TLB exceptions.
func Init() *kernel.Error {
	handleExceptionFn(trap.TLBMissLoad, faultHandler(FaultRead))
	handleExceptionFn(trap.TLBMissStore, faultHandler(FaultWrite))
	handleExceptionFn(trap.TLBModify, faultHandler(FaultReadOnly))
	return nil
}

// assertCanSleep halts the kernel if the caller holds a spinlock or runs an
// interrupt handler.
func assertCanSleep() {
	if !canSleepFn() {
		panicFn(errCannotSleep)
	}
}
