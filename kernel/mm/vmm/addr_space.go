package vmm

import (
	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
)

// RegionPerm describes the access rights requested for a region. Every
// region is mapped readable and writable regardless of the requested rights.
type RegionPerm uint8

// The supported region permissions.
const (
	PermRead RegionPerm = 1 << iota
	PermWrite
	PermExec
)

// Region is a page-aligned range of user virtual addresses backed by a single
// run of physical frames.
type Region struct {
	// VirtBase is the first virtual address of the region. A zero value
	// means that the region is not defined.
	VirtBase uintptr

	// PhysBase is the physical address of the backing frame run. It is
	// zero until PrepareLoad assigns the backing.
	PhysBase uintptr

	// Pages is the region length in pages.
	Pages uint32
}

// Defined returns true if the region has been declared.
func (r Region) Defined() bool { return r.VirtBase != 0 }

// Size returns the region length in bytes.
func (r Region) Size() uintptr { return uintptr(r.Pages) << mm.PageShift }

// translate returns the physical address for vaddr if the region contains it
// and has physical backing.
func (r Region) translate(vaddr uintptr) (uintptr, bool) {
	if !r.Defined() || r.PhysBase == 0 || vaddr < r.VirtBase || vaddr >= r.VirtBase+r.Size() {
		return 0, false
	}
	return r.PhysBase + (vaddr - r.VirtBase), true
}

// AddrSpace describes the user address space of a process: up to two regions
// for code and data and a fixed-size stack ending at UserStackTop. All memory
// is allocated by PrepareLoad and stays resident until Destroy.
type AddrSpace struct {
	regions       [2]Region
	stackPhysBase uintptr
}

// NewAddrSpace returns an empty address space.
func NewAddrSpace() *AddrSpace {
	assertCanSleep()
	return &AddrSpace{}
}

// Region returns the region in slot index (0 or 1).
func (as *AddrSpace) Region(index int) Region {
	return as.regions[index]
}

// StackRegion returns the stack region.
func (as *AddrSpace) StackRegion() Region {
	return Region{VirtBase: userStackBase, PhysBase: as.stackPhysBase, Pages: StackPages}
}

// DefineRegion declares a region covering size bytes starting at vaddr. The
// region is widened to whole pages. Only the virtual range is recorded;
// PrepareLoad assigns the physical backing. The permissions are ignored.
//
// Regions must end at or below the base of the user stack so that every
// address the fault handler can resolve fits in a TLB entry.
func (as *AddrSpace) DefineRegion(vaddr, size uintptr, _ RegionPerm) *kernel.Error {
	assertCanSleep()

	offset := vaddr &^ mm.PageFrameMask
	vaddr -= offset
	size += offset

	// the order of the checks keeps every comparison free of wrap-around
	if vaddr == 0 || size == 0 || size < offset ||
		size > userStackBase || vaddr > userStackBase-size {
		return errInvalidRegion
	}

	for i := range as.regions {
		if as.regions[i].Defined() {
			continue
		}

		as.regions[i] = Region{VirtBase: vaddr, Pages: uint32(mm.PageCount(size))}
		return nil
	}

	kfmt.Printf("[vmm] warning: too many regions\n")
	return errTooManyRegions
}

// loaded returns true once PrepareLoad has assigned the stack backing.
func (as *AddrSpace) loaded() bool {
	return as.stackPhysBase != 0
}

// PrepareLoad allocates zero-filled physical backing for both regions and the
// stack, in that order. On failure, runs acquired so far are kept and are
// released by Destroy.
func (as *AddrSpace) PrepareLoad() *kernel.Error {
	assertCanSleep()

	if as.loaded() || as.regions[0].PhysBase != 0 || as.regions[1].PhysBase != 0 {
		panicFn(errAlreadyLoaded)
		return errAlreadyLoaded
	}

	for i := range as.regions {
		if !as.regions[i].Defined() {
			continue
		}

		frame, err := mm.AllocFrames(as.regions[i].Pages)
		if err != nil {
			return errOutOfMemory
		}
		as.regions[i].PhysBase = frame.Address()
	}

	frame, err := mm.AllocFrames(StackPages)
	if err != nil {
		return errOutOfMemory
	}
	as.stackPhysBase = frame.Address()

	for _, r := range as.backedRegions() {
		mm.ZeroFrames(mm.FrameFromAddress(r.PhysBase), r.Pages)
	}

	return nil
}

// CompleteLoad is called once the program image has been written to the
// address space.
func (as *AddrSpace) CompleteLoad() *kernel.Error {
	return nil
}

// DefineStack returns the initial user stack pointer.
func (as *AddrSpace) DefineStack() (uintptr, *kernel.Error) {
	if !as.loaded() {
		return 0, errNotLoaded
	}
	return UserStackTop, nil
}

// Copy returns a new address space with the same layout as as whose memory
// holds a copy of the contents of as. The two address spaces share no frames.
func (as *AddrSpace) Copy() (*AddrSpace, *kernel.Error) {
	assertCanSleep()

	if !as.loaded() {
		return nil, errNotLoaded
	}

	dup := NewAddrSpace()
	for i, r := range as.regions {
		dup.regions[i] = Region{VirtBase: r.VirtBase, Pages: r.Pages}
	}

	if err := dup.PrepareLoad(); err != nil {
		dup.Destroy()
		return nil, errOutOfMemory
	}

	src, dst := as.backedRegions(), dup.backedRegions()
	for i := range src {
		mm.CopyFrames(mm.FrameFromAddress(dst[i].PhysBase), mm.FrameFromAddress(src[i].PhysBase), src[i].Pages)
	}

	return dup, nil
}

// Destroy releases the physical backing of the address space and resets it
// to the empty state. A failure to release one run does not prevent the
// release of the others.
func (as *AddrSpace) Destroy() {
	assertCanSleep()

	for _, r := range as.backedRegions() {
		if err := mm.FreeFrames(r.PhysBase); err != nil {
			kfmt.Printf("[vmm] unable to release region at 0x%x (phys 0x%x): %s\n", r.VirtBase, r.PhysBase, err.Message)
		}
	}

	*as = AddrSpace{}
}

// Lookup returns the physical address that backs vaddr. The regions are
// searched in order followed by the stack. Addresses in regions without
// physical backing are not translated.
func (as *AddrSpace) Lookup(vaddr uintptr) (uintptr, bool) {
	for _, r := range as.regions {
		if physAddr, ok := r.translate(vaddr); ok {
			return physAddr, true
		}
	}

	return as.StackRegion().translate(vaddr)
}

// backedRegions returns the regions and stack that have physical backing,
// in load order.
func (as *AddrSpace) backedRegions() []Region {
	backed := make([]Region, 0, len(as.regions)+1)
	for _, r := range as.regions {
		if r.Defined() && r.PhysBase != 0 {
			backed = append(backed, r)
		}
	}

	if stack := as.StackRegion(); stack.PhysBase != 0 {
		backed = append(backed, stack)
	}

	return backed
}
