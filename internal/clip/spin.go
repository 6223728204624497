package clip

import (
	"runtime"
	"sync/atomic"
)

// spinLock guards O(1) cursor updates that run inside audio callbacks, where
// parking the goroutine on a sync.Mutex could stall the device thread.
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.held.Store(false)
}
