package soft

import (
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/internal/utils"
)

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

// Fence is a software gpu.Fence. Its value only advances when a queue goroutine reaches a signal.
type Fence struct {
	device *Device

	mutex     utils.OptionalRWMutex
	completed uint64
	waiters   []fenceWaiter
	destroyed bool
}

var _ gpu.Fence = &Fence{}

func (f *Fence) CompletedValue() uint64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return f.completed
}

func (f *Fence) Notify(value uint64) <-chan struct{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ch := make(chan struct{})
	if f.completed >= value {
		close(ch)
		return ch
	}

	f.waiters = append(f.waiters, fenceWaiter{value: value, ch: ch})
	return ch
}

func (f *Fence) complete(value uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if value > f.completed {
		f.completed = value
	}

	remaining := f.waiters[:0]
	for _, waiter := range f.waiters {
		if waiter.value <= f.completed {
			close(waiter.ch)
			continue
		}
		remaining = append(remaining, waiter)
	}
	f.waiters = remaining
}

func (f *Fence) Destroy() {
	f.device.mutex.Lock()
	defer f.device.mutex.Unlock()

	if f.destroyed {
		return
	}
	f.destroyed = true
	f.device.live[ObjectFence]--
}
