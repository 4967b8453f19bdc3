package kmain

import (
	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/pmm"
	"gophervm/kernel/mm/vmm"
	"gophervm/kernel/proc"
	"gophervm/kernel/trap"
)

var (
	// the following functions are mocked by tests.
	powerOffFn = cpu.PowerOff
	panicFn    = kfmt.Panic

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// initImage is the program started by Kmain: a code segment and a data
// segment that spans a page boundary.
var initImage = []proc.Segment{
	{
		VAddr:   0x400000,
		MemSize: 0x1800,
		Data:    []byte{0x27, 0xbd, 0xff, 0xe8, 0xaf, 0xbf, 0x00, 0x14, 0x0c, 0x10, 0x00, 0x08},
		Perm:    vmm.PermRead | vmm.PermExec,
	},
	{
		VAddr:   0x10000f00,
		MemSize: 0x400,
		Data:    []byte("gophervm init\x00"),
		Perm:    vmm.PermRead | vmm.PermWrite,
	},
}

// Kmain boots the kernel on a machine with ramSize bytes of physical memory
// whose kernel image ends at physical address kernelEnd. The physical memory
// must already be installed with mm.SetPhysicalMemory.
//
// Kmain brings up the memory subsystem, runs the init program through its
// whole lifecycle, prints the frame allocator statistics and powers the
// machine off. It is not expected to return.
func Kmain(ramSize mm.Size, kernelEnd uintptr) {
	kfmt.Printf("[kmain] starting gophervm: %dKb RAM, kernel image ends at 0x%x\n", uint64(ramSize/mm.Kb), kernelEnd)

	var err *kernel.Error
	if err = pmm.Init(ramSize, kernelEnd); err != nil {
		panicFn(err)
		return
	} else if err = bootAllocations(); err != nil {
		panicFn(err)
		return
	} else if err = pmm.Bootstrap(); err != nil {
		panicFn(err)
		return
	} else if err = vmm.Init(); err != nil {
		panicFn(err)
		return
	} else if err = proc.Init(); err != nil {
		panicFn(err)
		return
	} else if err = runInit(); err != nil {
		panicFn(err)
		return
	}

	pmm.DumpTo(kfmt.GetOutputSink())
	powerOffFn()

	// Use panicFn instead of panic to prevent the compiler from treating
	// kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// bootAllocations sets up the kernel structures that live for the whole
// uptime. They are served by the boot allocator and end up in the reserved
// run once the frame map is active.
func bootAllocations() *kernel.Error {
	addr, err := pmm.AllocKernelPages(2)
	if err != nil {
		return err
	}

	kernel.Memset(addr, 0, 2*mm.PageSize)
	kfmt.Printf("[kmain] kernel heap at 0x%x (phys)\n", mm.VirtToPhys(addr))
	return nil
}

// runInit loads the init program, lets it touch every page of its image
// through the TLB fault path, forks it and exits both processes. The child
// performs a stray access and is killed by the kernel.
func runInit() *kernel.Error {
	initProc := proc.New("init")
	proc.SetCurrent(initProc)

	sp, err := initProc.Load(initImage)
	if err != nil {
		return err
	}
	kfmt.Printf("[kmain] %s (pid %d) loaded, stack pointer 0x%x\n", initProc.Name, initProc.PID, sp)

	for _, seg := range initImage {
		for vaddr := seg.VAddr & mm.PageFrameMask; vaddr < seg.VAddr+seg.MemSize; vaddr += mm.PageSize {
			trap.Dispatch(&trap.Frame{Code: trap.TLBMissLoad, VAddr: vaddr, UserMode: true})
		}
	}
	trap.Dispatch(&trap.Frame{Code: trap.TLBMissStore, VAddr: sp - 4, UserMode: true})

	child, err := initProc.Fork("init-child")
	if err != nil {
		return err
	}

	proc.SetCurrent(child)
	trap.Dispatch(&trap.Frame{Code: trap.TLBMissStore, VAddr: 0x20000000, UserMode: true})

	proc.SetCurrent(initProc)
	initProc.Exit(0)

	return nil
}
