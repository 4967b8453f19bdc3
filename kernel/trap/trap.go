// Package trap dispatches processor exceptions to the kernel subsystems that
// registered a handler for them.
package trap

import (
	"io"

	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
)

// ExceptionCode identifies the cause of a trap.
type ExceptionCode uint8

// The exception codes reported by the processor.
const (
	Interrupt ExceptionCode = iota
	TLBModify
	TLBMissLoad
	TLBMissStore
	AddrErrLoad
	AddrErrStore
	BusErrFetch
	BusErrData
	Syscall
	Breakpoint
	ReservedInstruction
	CoprocUnusable
	Overflow

	numExceptionCodes
)

var exceptionNames = [numExceptionCodes]string{
	"Interrupt",
	"TLB modify trap",
	"TLB miss on load",
	"TLB miss on store",
	"Address error on load",
	"Address error on store",
	"Bus error on code",
	"Bus error on data",
	"System call",
	"Break instruction",
	"Illegal instruction",
	"Coprocessor unusable",
	"Arithmetic overflow",
}

// String returns the name of the exception.
func (c ExceptionCode) String() string {
	if c >= numExceptionCodes {
		return "Unknown exception"
	}
	return exceptionNames[c]
}

// Frame describes the processor state at the time of a trap.
type Frame struct {
	// Code is the exception cause.
	Code ExceptionCode

	// VAddr is the faulting virtual address for memory exceptions.
	VAddr uintptr

	// PC is the address of the instruction that trapped.
	PC uintptr

	// UserMode is set when the trap was raised by user code.
	UserMode bool
}

// DumpTo outputs the frame contents to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "cause = %s (%d)\n", f.Code.String(), uint8(f.Code))
	kfmt.Fprintf(w, "epc   = %8x vaddr = %8x\n", f.PC, f.VAddr)
	kfmt.Fprintf(w, "user  = %t\n", f.UserMode)
}

// HandlerFn services a trap. A non-nil error means the trap could not be
// handled and the trapping context must not be resumed.
type HandlerFn func(*Frame) *kernel.Error

// UserFaultFn terminates the user context that raised an unhandled trap.
type UserFaultFn func(*Frame, *kernel.Error)

var (
	handlers    [numExceptionCodes]HandlerFn
	userFaultFn UserFaultFn

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errUnhandledException = &kernel.Error{Module: "trap", Message: "no handler registered for exception", Kind: kernel.ErrHardFault}
	errUnknownException   = &kernel.Error{Module: "trap", Message: "unknown exception code", Kind: kernel.ErrInvalidArgument}
)

// HandleException registers handler for the exception code, replacing any
// previously registered one. Passing a nil handler removes the registration.
func HandleException(code ExceptionCode, handler HandlerFn) {
	if code >= numExceptionCodes {
		return
	}
	handlers[code] = handler
}

// SetUserFaultHandler registers the function invoked when a trap raised by
// user code cannot be handled.
func SetUserFaultHandler(fn UserFaultFn) {
	userFaultFn = fn
}

// Dispatch routes the trap described by frame to its registered handler.
// Interrupt handlers run with the current thread flagged as servicing an
// interrupt. If the handler fails, a user context is handed to the user fault
// handler while a failure in kernel mode is fatal.
func Dispatch(frame *Frame) {
	var err *kernel.Error

	switch {
	case frame.Code >= numExceptionCodes:
		err = errUnknownException
	case handlers[frame.Code] == nil:
		err = errUnhandledException
	case frame.Code == Interrupt:
		t := cpu.CurrentThread()
		t.EnterInterrupt()
		err = handlers[frame.Code](frame)
		t.ExitInterrupt()
	default:
		err = handlers[frame.Code](frame)
	}

	if err == nil {
		return
	}

	if frame.UserMode && userFaultFn != nil {
		kfmt.Printf("[trap] fatal user mode trap %d (%s, epc 0x%x, vaddr 0x%x): %s\n",
			uint8(frame.Code), frame.Code.String(), frame.PC, frame.VAddr, err.Message,
		)
		userFaultFn(frame, err)
		return
	}

	kfmt.Printf("\nFatal trap %d (%s) in kernel mode\n", uint8(frame.Code), frame.Code.String())
	frame.DumpTo(kfmt.GetOutputSink())
	panicFn(err)
}
