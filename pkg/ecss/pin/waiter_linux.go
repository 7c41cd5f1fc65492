//go:build linux

package pin

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWaiter blocks goroutines on a generation word using the Linux
// futex syscall, instead of a sync.Cond: a waiter parks directly on the
// word it's going to re-check, so a wake-up doesn't require every waiter
// to first reacquire a shared mutex before discovering nothing changed
// for it.
type futexWaiter struct {
	generation atomic.Uint32
}

func newWaiter() *futexWaiter {
	return &futexWaiter{}
}

// Wait blocks while cond returns true, re-evaluating cond after each
// wake-up (spurious or real).
func (w *futexWaiter) Wait(cond func() bool) {
	for {
		seen := w.generation.Load()
		if !cond() {
			return
		}

		_, _, errno := unix.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(&w.generation)), //nolint:gosec // futex requires the raw address
			uintptr(unix.FUTEX_WAIT),
			uintptr(seen),
			0, 0, 0,
		)
		if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
			return
		}
	}
}

// NotifyAll bumps the generation and wakes every goroutine parked in Wait.
func (w *futexWaiter) NotifyAll() {
	w.generation.Add(1)

	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(&w.generation)), //nolint:gosec // futex requires the raw address
		uintptr(unix.FUTEX_WAKE),
		uintptr(1<<31-1),
		0, 0, 0,
	)
}
