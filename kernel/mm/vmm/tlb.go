package vmm

import "gophervm/kernel/cpu"

// Activate invalidates every TLB entry on the current processor. It is
// called when switching to a process; TLB entries carry no address space
// tag so none may survive the switch.
func Activate() {
	if currentAddrSpaceFn() == nil {
		// kernel threads have no user mappings to flush
		return
	}

	spl := splHighFn()
	for i := 0; i < cpu.NumTLB; i++ {
		tlbWriteFn(cpu.TLBHiInvalid(i), cpu.TLBLoInvalid(), i)
	}
	splxFn(spl)
}

// Deactivate is called when switching away from a process. Activate flushes
// the TLB so there is nothing to do here.
func Deactivate() {}

// TLBShootdown is requested by another processor to drop the entry for
// vaddr. Address spaces are never shared between processors so a request is
// a fatal condition.
func TLBShootdown(vaddr uintptr) {
	panicFn(errShootdownUnsupported)
}

// TLBShootdownAll is requested by another processor to flush its TLB. Like
// TLBShootdown it must never happen.
func TLBShootdownAll() {
	panicFn(errShootdownUnsupported)
}
