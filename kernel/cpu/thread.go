package cpu

import (
	"runtime"
	"sync"
)

// Thread holds the bookkeeping that belongs to a single kernel thread rather
// than to the processor it happens to run on. Every goroutine executing
// kernel code is a kernel thread.
type Thread struct {
	id uint64

	// spinlocks counts the spinlocks held by this thread.
	spinlocks int32

	// interruptDepth is non-zero while this thread runs an interrupt
	// handler.
	interruptDepth int32
}

var (
	// threads maps a goroutine id to its *Thread. Entries only exist while
	// the thread holds a spinlock or services an interrupt.
	threads sync.Map

	// currentThreadIDFn returns the id of the calling kernel thread.
	currentThreadIDFn = goroutineID
)

// CurrentThread returns the bookkeeping record of the calling kernel thread.
// Only the calling thread may modify the returned record.
func CurrentThread() *Thread {
	id := currentThreadIDFn()
	if t, ok := threads.Load(id); ok {
		return t.(*Thread)
	}
	return &Thread{id: id}
}

// SpinlockAcquired records that the thread acquired a spinlock.
func (t *Thread) SpinlockAcquired() {
	t.spinlocks++
	threads.Store(t.id, t)
}

// SpinlockReleased records that the thread released a spinlock.
func (t *Thread) SpinlockReleased() {
	t.spinlocks--
	t.forgetIfIdle()
}

// SpinlocksHeld returns the number of spinlocks held by the thread.
func (t *Thread) SpinlocksHeld() int { return int(t.spinlocks) }

// EnterInterrupt marks the start of an interrupt handler.
func (t *Thread) EnterInterrupt() {
	t.interruptDepth++
	threads.Store(t.id, t)
}

// ExitInterrupt marks the end of an interrupt handler.
func (t *Thread) ExitInterrupt() {
	t.interruptDepth--
	t.forgetIfIdle()
}

// InInterrupt returns true while the thread runs an interrupt handler.
func (t *Thread) InInterrupt() bool { return t.interruptDepth != 0 }

func (t *Thread) forgetIfIdle() {
	if t.spinlocks == 0 && t.interruptDepth == 0 {
		threads.Delete(t.id)
	}
}

// goroutineID extracts the id of the calling goroutine from the header line
// of its stack trace ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for _, b := range buf[len("goroutine "):n] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + uint64(b-'0')
	}
	return id
}
