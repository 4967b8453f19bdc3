// Package kfmt implements the kernel console output: a small Printf that
// does not depend on package fmt, writers that decorate kernel log output and
// the panic path that halts the machine.
package kfmt

import (
	"io"
	"sync/atomic"
)

// maxNumLen is the size of the scratch buffer used for formatting numbers;
// it fits a 64-bit value in base 8 plus padding.
const maxNumLen = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// earlyPrintBuffer stores Printf output produced before an output sink
	// is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. While it
	// is nil, output is buffered in earlyPrintBuffer.
	outputSink atomic.Value
)

// sinkBox lets outputSink store a nil writer.
type sinkBox struct {
	w io.Writer
}

// SetOutputSink sets the target for calls to Printf to w and flushes any
// output accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink.Store(sinkBox{w})
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the current target for calls to Printf or nil if no
// sink is attached.
func GetOutputSink() io.Writer {
	if box, ok := outputSink.Load().(sinkBox); ok {
		return box.w
	}
	return nil
}

// Printf formats according to a format specifier and writes to the current
// output sink. It supports the following subset of the fmt verbs:
//
//	%s  string or byte slice
//	%d  base 10 integer
//	%o  base 8 integer
//	%x  base 16 integer, lower-case letters
//	%t  "true" or "false"
//	%c  single byte
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Strings and base-10 integers are
// left-padded with spaces, base-8 and base-16 integers with zeroes.
func Printf(format string, args ...interface{}) {
	Fprintf(GetOutputSink(), format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// w. A nil w sends the output to the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	p := printer{w: w}
	p.format(format, args)
}

type printer struct {
	w      io.Writer
	numBuf [maxNumLen]byte
}

func (p *printer) format(format string, args []interface{}) {
	var (
		argIndex   int
		blockStart int
		fmtLen     = len(format)
	)

	for i := 0; i < fmtLen; i++ {
		if format[i] != '%' {
			continue
		}

		p.writeString(format[blockStart:i])

		width := 0
		for i++; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == fmtLen {
			p.write(errNoVerb)
			blockStart = i
			break
		}

		verb := format[i]
		blockStart = i + 1

		if verb == '%' {
			p.writeString("%")
			continue
		}

		if argIndex >= len(args) {
			p.write(errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			p.fmtInt(args[argIndex], 10, width)
		case 'o':
			p.fmtInt(args[argIndex], 8, width)
		case 'x':
			p.fmtInt(args[argIndex], 16, width)
		case 's':
			p.fmtString(args[argIndex], width)
		case 't':
			p.fmtBool(args[argIndex])
		case 'c':
			p.fmtChar(args[argIndex])
		default:
			p.write(errNoVerb)
			continue
		}
		argIndex++
	}

	p.writeString(format[blockStart:])

	for ; argIndex < len(args); argIndex++ {
		p.write(errExtraArg)
	}
}

func (p *printer) fmtBool(v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		p.write(errWrongArgType)
	case b:
		p.write(trueValue)
	default:
		p.write(falseValue)
	}
}

func (p *printer) fmtChar(v interface{}) {
	switch ch := v.(type) {
	case byte:
		p.numBuf[0] = ch
	case rune:
		p.numBuf[0] = byte(ch)
	default:
		p.write(errWrongArgType)
		return
	}
	p.write(p.numBuf[:1])
}

func (p *printer) fmtString(v interface{}, width int) {
	switch s := v.(type) {
	case string:
		p.pad(' ', width-len(s))
		p.writeString(s)
	case []byte:
		p.pad(' ', width-len(s))
		p.write(s)
	default:
		p.write(errWrongArgType)
	}
}

// fmtInt writes v in the requested base applying the requested width. All
// built-in integer types are supported.
func (p *printer) fmtInt(v interface{}, base uint64, width int) {
	var (
		uval     uint64
		negative bool
		padCh    = byte('0')
	)

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		p.write(errWrongArgType)
		return
	}

	if base == 10 {
		padCh = ' '
	}
	if width >= maxNumLen {
		width = maxNumLen - 1
	}

	// Digits are emitted right to left.
	end := len(p.numBuf)
	start := end
	for {
		digit := byte(uval % base)
		if digit < 10 {
			digit += '0'
		} else {
			digit += 'a' - 10
		}
		start--
		p.numBuf[start] = digit

		if uval /= base; uval == 0 {
			break
		}
	}

	if negative && padCh == ' ' {
		start--
		p.numBuf[start] = '-'
	}

	for end-start < width {
		start--
		p.numBuf[start] = padCh
	}

	// zero padding goes between the sign and the digits
	if negative && padCh == '0' {
		if end-start == width && p.numBuf[start] == '0' {
			p.numBuf[start] = '-'
		} else {
			start--
			p.numBuf[start] = '-'
		}
	}

	p.write(p.numBuf[start:end])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func (p *printer) pad(ch byte, count int) {
	p.numBuf[0] = ch
	for ; count > 0; count-- {
		p.write(p.numBuf[:1])
	}
}

func (p *printer) writeString(s string) {
	if len(s) == 0 {
		return
	}
	p.write([]byte(s))
}

func (p *printer) write(b []byte) {
	if p.w != nil {
		_, _ = p.w.Write(b)
		return
	}
	_, _ = earlyPrintBuffer.Write(b)
}
