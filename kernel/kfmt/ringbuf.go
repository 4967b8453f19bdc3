package kfmt

import (
	"io"

	"gophervm/kernel/sync"
)

// ringBufferSize is the capacity of the early output buffer. It holds the
// contents of a standard 80*25 text console and must be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it. Once
// full, new writes overwrite the oldest unread bytes.
type ringBuffer struct {
	lock           sync.Spinlock
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write appends p to the buffer, discarding the oldest data on overflow.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	rb.lock.Acquire()
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}
	rb.lock.Release()

	return len(p), nil
}

// Read copies up to len(p) unread bytes into p. It returns io.EOF once all
// buffered data has been consumed.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	rb.lock.Acquire()
	defer rb.lock.Release()

	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Read up to the write index or, if the data wraps, up to the end of
	// the backing array; the next call picks up the remainder.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = len(rb.buffer)
	}

	n := copy(p, rb.buffer[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}
