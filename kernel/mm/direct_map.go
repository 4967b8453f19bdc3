package mm

import (
	"unsafe"

	"gophervm/kernel"
)

var (
	// physMem backs the machine's physical memory. Physical address p is
	// reachable at kernel virtual address directMapBase+p.
	physMem       []byte
	directMapBase uintptr
)

// SetPhysicalMemory installs ram as the machine's physical memory and sets up
// the kernel direct mapping on top of it. Physical address 0 maps to the
// first byte of ram.
func SetPhysicalMemory(ram []byte) {
	physMem = ram
	directMapBase = 0
	if len(ram) != 0 {
		directMapBase = uintptr(unsafe.Pointer(&ram[0]))
	}
}

// PhysicalMemorySize returns the size of the installed physical memory.
func PhysicalMemorySize() Size {
	return Size(len(physMem))
}

// PhysToVirt returns the kernel virtual address through which the physical
// address physAddr can be accessed.
func PhysToVirt(physAddr uintptr) uintptr {
	return directMapBase + physAddr
}

// VirtToPhys is the inverse of PhysToVirt.
func VirtToPhys(virtAddr uintptr) uintptr {
	return virtAddr - directMapBase
}

// ZeroFrames fills count frames starting at frame f with zeroes.
func ZeroFrames(f Frame, count uint32) {
	kernel.Memset(PhysToVirt(f.Address()), 0, uintptr(count)<<PageShift)
}

// CopyFrames copies the contents of count frames starting at src to the
// frames starting at dst.
func CopyFrames(dst, src Frame, count uint32) {
	kernel.Memcopy(PhysToVirt(src.Address()), PhysToVirt(dst.Address()), uintptr(count)<<PageShift)
}
