// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"io"

	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/sync"
)

var (
	// frameAllocator is the kernel's physical frame allocator. It is
	// created by Init and switched to the frame map by Bootstrap.
	frameAllocator *FrameAllocator

	// canSleepFn and panicFn are mocked by tests.
	canSleepFn = sync.CanSleep
	panicFn    = kfmt.Panic

	errAlreadyInitialized = &kernel.Error{Module: "pmm", Message: "physical memory allocator already initialized"}
	errNotInitialized     = &kernel.Error{Module: "pmm", Message: "physical memory allocator not initialized"}
	errCannotSleep        = &kernel.Error{Module: "pmm", Message: "kernel page allocation from a context that cannot sleep"}
)

// Init sets up the kernel physical memory allocation sub-system for a machine
// with ramSize bytes of memory whose kernel image ends at physical address
// kernelEnd. Until Bootstrap is called, allocations are served by the boot
// bump allocator.
func Init(ramSize mm.Size, kernelEnd uintptr) *kernel.Error {
	if frameAllocator != nil {
		return errAlreadyInitialized
	}

	frameAllocator = NewFrameAllocator(ramSize, kernelEnd)
	frameAllocator.boot.printMemoryMap()

	mm.SetFrameAllocator(allocFrames)
	mm.SetFrameReleaser(freeFrames)
	return nil
}

// Bootstrap activates the frame map of the kernel frame allocator. From this
// point on frames can be freed.
func Bootstrap() *kernel.Error {
	if frameAllocator == nil {
		return errNotInitialized
	}
	return frameAllocator.Bootstrap()
}

// Allocator returns the kernel frame allocator or nil if Init has not been
// called.
func Allocator() *FrameAllocator {
	return frameAllocator
}

// DumpTo writes the kernel frame allocator statistics and memory map to w.
func DumpTo(w io.Writer) {
	if frameAllocator == nil {
		return
	}
	frameAllocator.DumpTo(w)
}

// AllocKernelPages allocates count contiguous pages for kernel use and
// returns their address in the kernel direct map. The pages are not cleared.
func AllocKernelPages(count uint32) (uintptr, *kernel.Error) {
	if !canSleepFn() {
		panicFn(errCannotSleep)
	}

	frame, err := mm.AllocFrames(count)
	if err != nil {
		return 0, err
	}

	return mm.PhysToVirt(frame.Address()), nil
}

// FreeKernelPages releases pages returned by AllocKernelPages.
func FreeKernelPages(virtAddr uintptr) *kernel.Error {
	return mm.FreeFrames(mm.VirtToPhys(virtAddr))
}

func allocFrames(count uint32) (mm.Frame, *kernel.Error) {
	return frameAllocator.AllocFrames(count)
}

func freeFrames(physAddr uintptr) *kernel.Error {
	return frameAllocator.FreeFrames(physAddr)
}
