//go:build !linux

package pin

import "sync"

// futexWaiter falls back to a condition variable on platforms without a
// futex syscall. Same Wait/NotifyAll contract as the linux variant.
type futexWaiter struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newWaiter() *futexWaiter {
	w := &futexWaiter{}
	w.cond = sync.NewCond(&w.mu)

	return w
}

func (w *futexWaiter) Wait(cond func() bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for cond() {
		w.cond.Wait()
	}
}

func (w *futexWaiter) NotifyAll() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}
