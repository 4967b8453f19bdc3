// Package proc tracks user processes and drives the lifetime of their address
// spaces: program load, fork and exit.
package proc

import (
	"sync/atomic"
	"unsafe"

	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/vmm"
	"gophervm/kernel/sync"
	"gophervm/kernel/trap"
)

// KilledExitCode is the exit code of a process terminated by the kernel
// because of an unrecoverable fault.
const KilledExitCode = 255

var (
	// current is the process running on the processor.
	current atomic.Pointer[Process]

	// lastPID is the last assigned process id.
	lastPID int32

	// the following functions are mocked by tests.
	activateFn   = vmm.Activate
	deactivateFn = vmm.Deactivate
	panicFn      = kfmt.Panic

	errAddrSpaceExists = &kernel.Error{Module: "proc", Message: "process already has an address space", Kind: kernel.ErrInvalidArgument}
	errNoAddrSpace     = &kernel.Error{Module: "proc", Message: "process has no address space", Kind: kernel.ErrInvalidArgument}
	errBadSegment      = &kernel.Error{Module: "proc", Message: "segment data larger than its memory size", Kind: kernel.ErrInvalidArgument}
	errNoProcess       = &kernel.Error{Module: "proc", Message: "user fault without a current process"}
	errBadUserAddr     = &kernel.Error{Module: "proc", Message: "user address range is not backed by a single region", Kind: kernel.ErrInvalidArgument}
)

// Process is a user program and the address space it runs in.
type Process struct {
	// PID is the unique process id.
	PID int

	// Name is the program name used in log messages.
	Name string

	lock     sync.Spinlock
	as       *vmm.AddrSpace
	exited   bool
	exitCode int
}

// Segment is a piece of a program image to be placed in the address space.
type Segment struct {
	// VAddr is the virtual address of the first byte of the segment.
	VAddr uintptr

	// MemSize is the size of the segment in memory. Bytes past Data are
	// zero.
	MemSize uintptr

	// Data holds the initialized part of the segment.
	Data []byte

	// Perm holds the requested access rights.
	Perm vmm.RegionPerm
}

// Init registers the current process address space with the vmm and installs
// the handler that terminates processes after an unrecoverable user fault.
func Init() *kernel.Error {
	vmm.SetAddrSpaceProvider(currentAddrSpace)
	trap.SetUserFaultHandler(killCurrent)
	return nil
}

// New returns a process without an address space.
func New(name string) *Process {
	return &Process{
		PID:  int(atomic.AddInt32(&lastPID, 1)),
		Name: name,
	}
}

// Current returns the running process or nil if a kernel thread runs.
func Current() *Process {
	return current.Load()
}

// SetCurrent switches the processor to p and activates its address space.
// Passing nil switches to kernel-only execution.
func SetCurrent(p *Process) {
	if prev := current.Swap(p); prev != nil && prev != p {
		deactivateFn()
	}
	activateFn()
}

// AddrSpace returns the address space of p.
func (p *Process) AddrSpace() *vmm.AddrSpace {
	p.lock.Acquire()
	as := p.as
	p.lock.Release()
	return as
}

// SetAddrSpace replaces the address space of p and returns the previous one.
func (p *Process) SetAddrSpace(as *vmm.AddrSpace) *vmm.AddrSpace {
	p.lock.Acquire()
	prev := p.as
	p.as = as
	p.lock.Release()
	return prev
}

// Exited reports whether p has exited and its exit code.
func (p *Process) Exited() (bool, int) {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.exited, p.exitCode
}

// Load creates the address space of p and places the program segments in
// it. It returns the initial user stack pointer. On failure the partially
// built address space stays attached to p and is released by Exit.
func (p *Process) Load(segments []Segment) (uintptr, *kernel.Error) {
	if p.AddrSpace() != nil {
		return 0, errAddrSpaceExists
	}

	for _, seg := range segments {
		if uintptr(len(seg.Data)) > seg.MemSize {
			return 0, errBadSegment
		}
	}

	as := vmm.NewAddrSpace()
	p.SetAddrSpace(as)
	if Current() == p {
		activateFn()
	}

	for _, seg := range segments {
		if err := as.DefineRegion(seg.VAddr, seg.MemSize, seg.Perm); err != nil {
			return 0, err
		}
	}

	if err := as.PrepareLoad(); err != nil {
		return 0, err
	}

	// region backing is already zeroed
	for _, seg := range segments {
		if err := copyOut(as, seg.VAddr, seg.Data); err != nil {
			return 0, err
		}
	}

	if err := as.CompleteLoad(); err != nil {
		return 0, err
	}

	return as.DefineStack()
}

// copyOut writes data into as starting at user address vaddr. The whole range
// must be backed by one region; region backing is physically contiguous so a
// single copy suffices.
func copyOut(as *vmm.AddrSpace, vaddr uintptr, data []byte) *kernel.Error {
	if len(data) == 0 {
		return nil
	}

	size := uintptr(len(data))
	first, ok := as.Lookup(vaddr)
	if !ok {
		return errBadUserAddr
	}
	last, ok := as.Lookup(vaddr + size - 1)
	if !ok || last-first != size-1 {
		return errBadUserAddr
	}

	kernel.Memcopy(uintptr(unsafe.Pointer(&data[0])), mm.PhysToVirt(first), size)
	return nil
}

// Fork returns a new process named name that runs in a copy of the address
// space of p.
func (p *Process) Fork(name string) (*Process, *kernel.Error) {
	as := p.AddrSpace()
	if as == nil {
		return nil, errNoAddrSpace
	}

	dup, err := as.Copy()
	if err != nil {
		return nil, err
	}

	child := New(name)
	child.SetAddrSpace(dup)

	kfmt.Printf("[proc] %s (pid %d) forked %s (pid %d)\n", p.Name, p.PID, child.Name, child.PID)
	return child, nil
}

// Exit records the exit code of p and releases its address space. If p is
// running, the processor switches to kernel-only execution.
func (p *Process) Exit(code int) {
	p.lock.Acquire()
	p.exited, p.exitCode = true, code
	p.lock.Release()

	if Current() == p {
		deactivateFn()
		current.CompareAndSwap(p, nil)
	}

	if as := p.SetAddrSpace(nil); as != nil {
		as.Destroy()
	}

	kfmt.Printf("[proc] %s (pid %d) exited with code %d\n", p.Name, p.PID, code)
}

func currentAddrSpace() *vmm.AddrSpace {
	if p := Current(); p != nil {
		return p.AddrSpace()
	}
	return nil
}

// killCurrent terminates the running process after a fatal user fault.
func killCurrent(frame *trap.Frame, err *kernel.Error) {
	p := Current()
	if p == nil {
		panicFn(errNoProcess)
		return
	}

	kfmt.Printf("[proc] killing %s (pid %d): %s at 0x%x\n", p.Name, p.PID, err.Message, frame.VAddr)
	p.Exit(KilledExitCode)
}
