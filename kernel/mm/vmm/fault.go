package vmm

import (
	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/trap"
)

// FaultKind describes the access that caused a TLB fault.
type FaultKind uint8

// The supported fault kinds.
const (
	// FaultRead is raised by a load from an unmapped page.
	FaultRead FaultKind = iota

	// FaultWrite is raised by a store to an unmapped page.
	FaultWrite

	// FaultReadOnly is raised by a store to a page mapped without the
	// dirty bit. Pages are always mapped writable so it never happens.
	FaultReadOnly
)

// faultHandler returns a trap handler that resolves faults of the given kind.
func faultHandler(kind FaultKind) trap.HandlerFn {
	return func(frame *trap.Frame) *kernel.Error {
		return Resolve(kind, frame.VAddr)
	}
}

// Resolve handles a TLB fault at faultAddr raised by the running process.
func Resolve(kind FaultKind, faultAddr uintptr) *kernel.Error {
	return ResolveFor(kind, faultAddr, currentAddrSpaceFn())
}

// ResolveFor installs a TLB entry that maps the page containing faultAddr to
// its physical backing in as. Entries are never evicted; once every TLB entry
// is valid the fault cannot be resolved.
func ResolveFor(kind FaultKind, faultAddr uintptr, as *AddrSpace) *kernel.Error {
	switch kind {
	case FaultRead, FaultWrite:
	case FaultReadOnly:
		panicFn(errReadOnlyFault)
		return errReadOnlyFault
	default:
		return errInvalidFaultKind
	}

	if as == nil {
		return errNoAddrSpace
	}

	faultAddr &= mm.PageFrameMask
	physAddr, ok := as.Lookup(faultAddr)
	if !ok {
		return errBadFaultAddr
	}

	// A partially written entry must never be visible to an interrupt
	// handler.
	spl := splHighFn()

	for i := 0; i < cpu.NumTLB; i++ {
		if _, lo := tlbReadFn(i); lo&cpu.TLBLoValid != 0 {
			continue
		}

		tlbWriteFn(uint32(faultAddr), uint32(physAddr)|cpu.TLBLoDirty|cpu.TLBLoValid, i)
		splxFn(spl)
		return nil
	}

	kfmt.Printf("[vmm] ran out of TLB entries - cannot handle page fault\n")
	splxFn(spl)
	return errTLBExhausted
}
