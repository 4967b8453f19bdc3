package kernel

// ErrorKind classifies a kernel error so that callers can decide how to
// react to it without comparing against every error value a package exports.
type ErrorKind uint8

// The supported error kinds.
const (
	// ErrUnspecified is the zero value; errors created without an explicit
	// kind carry it.
	ErrUnspecified ErrorKind = iota

	// ErrInvalidArgument is reported for malformed parameters such as an
	// unknown fault type or a zero-length frame run.
	ErrInvalidArgument

	// ErrResourceExhausted is reported when a fixed-capacity resource (free
	// frames, TLB entries, address space regions) cannot satisfy a request.
	ErrResourceExhausted

	// ErrHardFault is reported when an access cannot be resolved and the
	// faulting context must be terminated.
	ErrHardFault
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrResourceExhausted:
		return "resource exhausted"
	case ErrHardFault:
		return "hard fault"
	default:
		return "unspecified"
	}
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure so that callers can
// compare them by identity and so that reporting an error never needs a
// memory allocation.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind classifies the error.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
