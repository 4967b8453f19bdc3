// Package sync provides synchronization primitive implementations for
// spinlocks.
package sync

import (
	"runtime"
	"sync/atomic"

	"gophervm/kernel/cpu"
)

// attemptsBeforeYielding is the number of failed acquisition attempts after
// which a spinning task yields its processor.
const attemptsBeforeYielding = 128

var (
	// yieldFn is invoked by tasks spinning on a contended lock.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. Spinlocks never sleep; code holding one
// must not call anything that may block.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	acquireSpinlock(&l.state, attemptsBeforeYielding)
	cpu.CurrentThread().SpinlockAcquired()
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	if atomic.SwapUint32(&l.state, 1) != 0 {
		return false
	}

	cpu.CurrentThread().SpinlockAcquired()
	return true
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	if atomic.SwapUint32(&l.state, 0) != 0 {
		cpu.CurrentThread().SpinlockReleased()
	}
}

// CanSleep returns true if the caller runs in a context where blocking is
// legal: it holds no spinlocks and is not running an interrupt handler. Locks
// held by other threads do not affect the result.
func CanSleep() bool {
	t := cpu.CurrentThread()
	return t.SpinlocksHeld() == 0 && !t.InInterrupt()
}

func acquireSpinlock(state *uint32, attemptsBeforeYielding uint32) {
	for {
		for i := uint32(0); i < attemptsBeforeYielding; i++ {
			if atomic.CompareAndSwapUint32(state, 0, 1) {
				return
			}
		}

		yieldFn()
	}
}
