package pmm

import (
	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/sync"
)

var (
	errInvalidRunLength = &kernel.Error{Module: "pmm", Message: "requested frame count must be between 1 and 32767", Kind: kernel.ErrInvalidArgument}
	errOutOfMemory      = &kernel.Error{Module: "pmm", Message: "no free frame run large enough to satisfy request", Kind: kernel.ErrResourceExhausted}
	errFreeInactive     = &kernel.Error{Module: "pmm", Message: "frames cannot be freed before the frame map is active", Kind: kernel.ErrInvalidArgument}
	errFreeOutOfRange   = &kernel.Error{Module: "pmm", Message: "address is outside of the managed physical memory", Kind: kernel.ErrInvalidArgument}
	errFreeReserved     = &kernel.Error{Module: "pmm", Message: "address belongs to the reserved boot frames", Kind: kernel.ErrInvalidArgument}
	errFreeNotAllocated = &kernel.Error{Module: "pmm", Message: "address does not belong to an allocated frame run", Kind: kernel.ErrInvalidArgument}
	errNoFrames         = &kernel.Error{Module: "pmm", Message: "physical memory is smaller than the reserved boot frames", Kind: kernel.ErrResourceExhausted}
)

// Stats contains a snapshot of the frame allocator counters.
type Stats struct {
	// Total is the number of frames managed by the allocator.
	Total uint32

	// Allocated is the number of frames that are currently allocated or
	// reserved.
	Allocated uint32

	// Free is the number of frames that are currently free.
	Free uint32

	// BootReserved is the number of frames handed out before the frame
	// map became active.
	BootReserved uint32

	// HistoryAllocated and HistoryFreed count every frame allocated and
	// freed through the frame map since it became active.
	HistoryAllocated uint64
	HistoryFreed     uint64
}

// FrameAllocator hands out runs of physically contiguous frames.
//
// Before Bootstrap is called, requests are served by the boot bump allocator,
// which cannot free memory. Bootstrap hands every frame allocated so far to
// a single reserved run and activates the frame map; from then on all
// requests use first-fit placement over the map. The transition happens
// exactly once.
type FrameAllocator struct {
	boot bootMemAllocator

	// mapLock guards every field below, including active.
	mapLock sync.Spinlock

	active bool
	frames frameMap

	// reservedFrames is the number of frames in the reserved boot run;
	// frames below it can never be freed.
	reservedFrames uint32

	allocatedFrames  uint32
	historyAllocated uint64
	historyFreed     uint64
}

// NewFrameAllocator returns an allocator for a machine with ramSize bytes of
// physical memory whose kernel image ends at physical address kernelEnd.
func NewFrameAllocator(ramSize mm.Size, kernelEnd uintptr) *FrameAllocator {
	alloc := &FrameAllocator{}
	alloc.boot.init(ramSize, kernelEnd)
	return alloc
}

// Bootstrap builds the frame map and switches the allocator from the boot
// bump allocator to first-fit allocation. Frame 0 and every frame below the
// boot allocator's first free address become one permanently reserved run.
// Calling Bootstrap on an active allocator has no effect.
//
// The boot allocator is retired and the map activated inside a single mapLock
// critical section. AllocFrames consults the boot allocator under the same
// lock, so no request can observe a retired boot allocator while the map is
// still inactive.
func (alloc *FrameAllocator) Bootstrap() *kernel.Error {
	alloc.mapLock.Acquire()
	if alloc.active {
		alloc.mapLock.Release()
		return nil
	}

	var (
		firstFree, lastAddr = alloc.boot.retire()
		totalFrames         = uint32(lastAddr >> mm.PageShift)
		reserved            = uint32(mm.PageCount(firstFree))
	)

	// frame 0 is never handed out so that a zero physical address can
	// always mean "not allocated"
	if reserved == 0 {
		reserved = 1
	}

	if reserved > totalFrames {
		alloc.mapLock.Release()
		return errNoFrames
	}

	alloc.frames = newFrameMap(totalFrames, reserved)
	alloc.reservedFrames = reserved
	alloc.allocatedFrames = reserved
	alloc.active = true
	alloc.mapLock.Release()

	kfmt.Printf("[pmm] frame map active: %d frames, %d reserved at boot\n", totalFrames, reserved)
	return nil
}

// AllocFrames reserves count physically contiguous frames and returns the
// first one. count must be in the range [1, MaxRunLength]. The contents of
// the returned frames are not cleared.
func (alloc *FrameAllocator) AllocFrames(count uint32) (mm.Frame, *kernel.Error) {
	if count == 0 || count > MaxRunLength {
		return mm.InvalidFrame, errInvalidRunLength
	}

	alloc.mapLock.Acquire()
	if !alloc.active {
		frame, err := alloc.boot.AllocFrames(count)
		alloc.mapLock.Release()
		return frame, err
	}

	start, found := alloc.frames.findFirstFit(count)
	if !found {
		alloc.mapLock.Release()
		return mm.InvalidFrame, errOutOfMemory
	}

	alloc.frames.markRun(start, count)
	alloc.allocatedFrames += count
	alloc.historyAllocated += uint64(count)
	alloc.mapLock.Release()

	return start, nil
}

// FreeFrames returns the frame run that contains physAddr to the free pool.
// Callers are expected to pass the address of the first frame of a run
// returned by AllocFrames; an address inside the run releases the whole run.
// Freed runs are not merged with their free neighbours.
func (alloc *FrameAllocator) FreeFrames(physAddr uintptr) *kernel.Error {
	frame := mm.FrameFromAddress(physAddr)

	alloc.mapLock.Acquire()
	defer alloc.mapLock.Release()

	switch {
	case !alloc.active:
		return errFreeInactive
	case uint64(frame) >= uint64(alloc.frames.len()):
		return errFreeOutOfRange
	case uint32(frame) < alloc.reservedFrames:
		return errFreeReserved
	case alloc.frames.isFree(frame):
		return errFreeNotAllocated
	}

	count := alloc.frames.releaseRun(alloc.frames.runStart(frame))
	alloc.allocatedFrames -= count
	alloc.historyFreed += uint64(count)
	return nil
}

// Stats returns a snapshot of the allocator counters.
func (alloc *FrameAllocator) Stats() Stats {
	alloc.mapLock.Acquire()
	defer alloc.mapLock.Release()

	return alloc.statsLocked()
}

// Snapshot returns the free flag of every managed frame, indexed by frame
// number. It returns nil before the frame map is active.
func (alloc *FrameAllocator) Snapshot() []bool {
	alloc.mapLock.Acquire()
	defer alloc.mapLock.Release()

	return alloc.snapshotLocked()
}

func (alloc *FrameAllocator) statsLocked() Stats {
	return Stats{
		Total:            alloc.frames.len(),
		Allocated:        alloc.allocatedFrames,
		Free:             alloc.frames.len() - alloc.allocatedFrames,
		BootReserved:     alloc.reservedFrames,
		HistoryAllocated: alloc.historyAllocated,
		HistoryFreed:     alloc.historyFreed,
	}
}

func (alloc *FrameAllocator) snapshotLocked() []bool {
	if !alloc.active {
		return nil
	}

	free := make([]bool, alloc.frames.len())
	for i := range free {
		free[i] = alloc.frames.frames[i].free
	}
	return free
}
