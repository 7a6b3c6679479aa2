package soft

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/internal/utils"
)

const queueDepth = 256

type submission struct {
	list      *CommandList
	allocator *CommandAllocator
	commands  []command
}

type presentOp struct {
	swapchain *Swapchain
	buffer    *resource
	interval  int
	flags     gpu.PresentFlags
}

type queueOp struct {
	submissions []submission
	present     *presentOp
	fence       *Fence
	value       uint64
}

// Queue is a software gpu.Queue. Work is executed in order by a dedicated goroutine.
type Queue struct {
	device  *Device
	kind    gpu.QueueKind
	latency time.Duration

	sendMutex utils.OptionalMutex
	stopped   bool
	ops       chan queueOp
	done      chan struct{}
	pending   atomic.Int64
	destroyed bool
}

var _ gpu.Queue = &Queue{}

func newQueue(device *Device, kind gpu.QueueKind) *Queue {
	q := &Queue{
		device:    device,
		kind:      kind,
		latency:   device.options.ExecutionLatency,
		sendMutex: utils.OptionalMutex{UseMutex: true},
		ops:       make(chan queueOp, queueDepth),
		done:      make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Kind() gpu.QueueKind {
	return q.kind
}

// Busy reports whether submitted work has not finished executing
func (q *Queue) Busy() bool {
	return q.pending.Load() > 0
}

func (q *Queue) Submit(lists ...gpu.CommandList) {
	q.device.mutex.Lock()
	op := queueOp{}
	for _, list := range lists {
		softList, ok := list.(*CommandList)
		if !ok || softList == nil {
			q.device.validationErrorLocked("submitted a command list that was not created by this device")
			continue
		}
		if softList.destroyed {
			q.device.validationErrorLocked("submitted destroyed command list %d", softList.id)
			continue
		}
		if softList.recording {
			q.device.validationErrorLocked("submitted command list %d while it is still recording", softList.id)
			continue
		}
		if softList.kind != q.kind {
			q.device.validationErrorLocked("submitted %s command list %d to %s queue", softList.kind, softList.id, q.kind)
			continue
		}

		softList.allocator.pending++
		op.submissions = append(op.submissions, submission{
			list:      softList,
			allocator: softList.allocator,
			commands:  append([]command(nil), softList.commands...),
		})
	}
	q.device.counters.submissions++
	q.device.mutex.Unlock()

	if len(op.submissions) > 0 {
		q.enqueue(op)
	}
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) (common.VkResult, error) {
	q.device.mutex.Lock()
	res, err := q.device.faults.takeSignal()
	q.device.mutex.Unlock()
	if err != nil {
		return res, err
	}

	softFence, ok := fence.(*Fence)
	if !ok || softFence == nil {
		return core1_0.VKErrorUnknown, errors.New("signal requires a software fence")
	}

	if !q.enqueue(queueOp{fence: softFence, value: value}) {
		return core1_0.VKErrorDeviceLost, errors.New("queue has been destroyed")
	}
	return core1_0.VKSuccess, nil
}

func (q *Queue) Destroy() {
	q.stop()

	q.device.mutex.Lock()
	defer q.device.mutex.Unlock()

	if q.destroyed {
		return
	}
	q.destroyed = true
	q.device.live[ObjectQueue]--
}

func (q *Queue) enqueue(op queueOp) bool {
	q.sendMutex.Lock()
	defer q.sendMutex.Unlock()

	if q.stopped {
		return false
	}

	q.pending.Add(1)
	q.ops <- op
	return true
}

func (q *Queue) stop() {
	q.sendMutex.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.ops)
	}
	q.sendMutex.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for op := range q.ops {
		q.execute(op)
		q.pending.Add(-1)

		if op.fence != nil {
			op.fence.complete(op.value)
		}
	}
}

func (q *Queue) execute(op queueOp) {
	if len(op.submissions) > 0 && q.latency > 0 {
		time.Sleep(q.latency)
	}

	if len(op.submissions) > 0 || op.present != nil {
		q.device.mutex.Lock()
		for _, sub := range op.submissions {
			q.device.executeLocked(sub)
			sub.allocator.pending--
			q.device.counters.executedLists++
		}
		if op.present != nil {
			q.device.presentLocked(op.present)
		}
		q.device.mutex.Unlock()
	}
}
