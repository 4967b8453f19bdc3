package pmm

import (
	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/sync"
)

var (
	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory", Kind: kernel.ErrResourceExhausted}
)

// bootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator hands out frames from the first free physical address past
// the kernel image and bumps that address after each allocation. It is not
// possible to free allocated frames. Once the frame map takes over, the
// allocator is retired and every frame it handed out becomes part of the
// permanently reserved boot run.
type bootMemAllocator struct {
	lock sync.Spinlock

	// firstFree is the lowest physical address not yet handed out.
	firstFree uintptr

	// lastAddr is the end of physical memory.
	lastAddr uintptr

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	retired bool
}

// init sets up the boot memory allocator internal state. Allocations start at
// kernelEnd rounded up to the next page boundary.
func (alloc *bootMemAllocator) init(ramSize mm.Size, kernelEnd uintptr) {
	alloc.lock.Acquire()
	alloc.firstFree = (kernelEnd + mm.PageSize - 1) & mm.PageFrameMask
	alloc.lastAddr = uintptr(ramSize) & mm.PageFrameMask
	alloc.allocCount = 0
	alloc.retired = false
	alloc.lock.Release()
}

// AllocFrames reserves count contiguous frames right after the previously
// allocated ones.
func (alloc *bootMemAllocator) AllocFrames(count uint32) (mm.Frame, *kernel.Error) {
	size := uintptr(count) << mm.PageShift

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if alloc.retired || alloc.firstFree+size > alloc.lastAddr {
		return mm.InvalidFrame, errBootAllocOutOfMemory
	}

	frame := mm.FrameFromAddress(alloc.firstFree)
	alloc.firstFree += size
	alloc.allocCount += uint64(count)
	return frame, nil
}

// retire disables any further allocation and returns the first physical
// address the allocator never handed out together with the end of physical
// memory.
func (alloc *bootMemAllocator) retire() (firstFree, lastAddr uintptr) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	alloc.retired = true
	return alloc.firstFree, alloc.lastAddr
}

// printMemoryMap prints the memory range managed by the allocator.
func (alloc *bootMemAllocator) printMemoryMap() {
	alloc.lock.Acquire()
	firstFree, lastAddr := alloc.firstFree, alloc.lastAddr
	alloc.lock.Release()

	kfmt.Printf("[boot_mem_alloc] system memory: %dKb\n", uint64(mm.Size(lastAddr)/mm.Kb))
	kfmt.Printf("[boot_mem_alloc] first free address: 0x%8x, available: %dKb\n",
		firstFree,
		uint64(mm.Size(lastAddr-firstFree)/mm.Kb),
	)
}
