// Package queue pairs a gpu.Queue with a gpu.Fence to give the CPU a monotonically increasing
// timeline it can signal and wait on.
package queue

import (
	"time"

	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

// CommandQueue is a queue plus the fence that tracks its progress. Signal, Wait and Flush must be called
// from a single goroutine; CompletedValue may be read from anywhere.
type CommandQueue struct {
	logger *slog.Logger

	device       gpu.Device
	kind         gpu.QueueKind
	queue        gpu.Queue
	fence        gpu.Fence
	lastSignaled uint64
	waitTimeout  time.Duration
}

// New creates an uninitialized CommandQueue
func New(logger *slog.Logger) *CommandQueue {
	return &CommandQueue{
		logger: logging.For(logger, logging.CategoryDevice),
	}
}

// Initialize creates the queue and its fence on device. Initializing an already initialized
// CommandQueue logs a warning and does nothing.
func (q *CommandQueue) Initialize(device gpu.Device, kind gpu.QueueKind) error {
	q.logger.Debug("CommandQueue::Initialize")

	if q.queue != nil {
		q.logger.Warn("Command queue is already initialized")
		return nil
	}

	if device == nil {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize %s command queue without a device", kind)
	}

	queue, res, err := device.CreateQueue(kind)
	if err != nil {
		q.logger.Error("Failed to create command queue", slog.String("kind", kind.String()), slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create %s command queue", kind)
	}

	fence, res, err := device.CreateFence(0)
	if err != nil {
		queue.Destroy()
		q.logger.Error("Failed to create fence", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create fence for %s command queue", kind)
	}

	q.device = device
	q.kind = kind
	q.queue = queue
	q.fence = fence
	q.lastSignaled = 0

	q.logger.Info("Command queue initialized", slog.String("kind", kind.String()))
	return nil
}

// SetWaitTimeout bounds every later Wait. Zero waits forever.
func (q *CommandQueue) SetWaitTimeout(timeout time.Duration) {
	q.waitTimeout = timeout
}

// Submit hands closed command lists to the queue for execution in order
func (q *CommandQueue) Submit(lists ...gpu.CommandList) {
	if q.queue == nil {
		q.logger.Error("Submit called on an uninitialized command queue")
		return
	}
	if len(lists) == 0 {
		return
	}

	q.queue.Submit(lists...)
}

// Signal advances the timeline by one and asks the queue to signal the fence with the new value once
// all previously submitted work has executed. It returns the new value.
func (q *CommandQueue) Signal() uint64 {
	if q.queue == nil {
		q.logger.Error("Signal called on an uninitialized command queue")
		return 0
	}

	q.lastSignaled++
	value := q.lastSignaled

	res, err := q.queue.Signal(q.fence, value)
	if err != nil {
		// The counter has already advanced, so waiting on value may never return
		q.logger.Error("Failed to signal fence", slog.Uint64("value", value), slog.String("result", res.String()), slog.Any("error", err))
	}

	return value
}

// Wait blocks until the fence has reached value. It never spins: the fence's completion notification
// wakes the caller.
func (q *CommandQueue) Wait(value uint64) error {
	if q.fence == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "wait for fence value %d on an uninitialized command queue", value)
	}

	if q.fence.CompletedValue() >= value {
		return nil
	}

	logging.Trace(q.logger, "Waiting for fence", slog.Uint64("value", value))

	done := q.fence.Notify(value)
	if q.waitTimeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(q.waitTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		q.logger.Error("Fence wait timed out", slog.Uint64("value", value), slog.Uint64("completed", q.fence.CompletedValue()), slog.Duration("timeout", q.waitTimeout))
		return frameutils.Newf(frameutils.ErrWaitTimeout, "fence did not reach %d within %s", value, q.waitTimeout)
	}
}

// Flush blocks until every piece of work submitted so far has executed
func (q *CommandQueue) Flush() error {
	if q.queue == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "flush of an uninitialized command queue")
	}

	return q.Wait(q.Signal())
}

// SelfTest round-trips a signal through the queue on a temporary fence, leaving the queue's own
// timeline untouched
func (q *CommandQueue) SelfTest() error {
	if q.device == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "self test of an uninitialized command queue")
	}

	fence, res, err := q.device.CreateFence(0)
	if err != nil {
		q.logger.Error("Failed to create self test fence", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create self test fence")
	}
	defer fence.Destroy()

	res, err = q.queue.Signal(fence, 1)
	if err != nil {
		q.logger.Error("Failed to signal self test fence", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to signal self test fence")
	}

	done := fence.Notify(1)
	if q.waitTimeout > 0 {
		timer := time.NewTimer(q.waitTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			return frameutils.Newf(frameutils.ErrInit, "self test fence did not complete within %s", q.waitTimeout)
		}
	} else {
		<-done
	}

	q.logger.Info("Fence synchronization test passed")
	return nil
}

// CompletedValue is the highest value the fence has reached
func (q *CommandQueue) CompletedValue() uint64 {
	if q.fence == nil {
		return 0
	}
	return q.fence.CompletedValue()
}

// LastSignaled is the highest value handed out by Signal
func (q *CommandQueue) LastSignaled() uint64 {
	return q.lastSignaled
}

func (q *CommandQueue) Kind() gpu.QueueKind {
	return q.kind
}

func (q *CommandQueue) Queue() gpu.Queue {
	return q.queue
}

func (q *CommandQueue) Fence() gpu.Fence {
	return q.fence
}

// Initialized reports whether Initialize has succeeded and Destroy has not been called since
func (q *CommandQueue) Initialized() bool {
	return q.queue != nil
}

// CreateCommandAllocator creates an allocator of this queue's kind
func (q *CommandQueue) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	if q.device == nil {
		return nil, frameutils.Newf(frameutils.ErrNotInitialized, "create command allocator on an uninitialized command queue")
	}

	allocator, res, err := q.device.CreateCommandAllocator(q.kind)
	if err != nil {
		q.logger.Error("Failed to create command allocator", slog.String("result", res.String()))
		return nil, frameutils.Wrap(err, frameutils.ErrInit, "failed to create %s command allocator", q.kind)
	}
	return allocator, nil
}

// CreateCommandList creates a list of this queue's kind recording into allocator, and closes it so it
// is ready to be reset
func (q *CommandQueue) CreateCommandList(allocator gpu.CommandAllocator) (gpu.CommandList, error) {
	if q.device == nil {
		return nil, frameutils.Newf(frameutils.ErrNotInitialized, "create command list on an uninitialized command queue")
	}

	list, res, err := q.device.CreateCommandList(q.kind, allocator, nil)
	if err != nil {
		q.logger.Error("Failed to create command list", slog.String("result", res.String()))
		return nil, frameutils.Wrap(err, frameutils.ErrInit, "failed to create %s command list", q.kind)
	}

	_, err = list.Close()
	if err != nil {
		list.Destroy()
		return nil, frameutils.Wrap(err, frameutils.ErrInit, "failed to close new %s command list", q.kind)
	}
	return list, nil
}

// Destroy waits for all submitted work, then releases the fence and queue
func (q *CommandQueue) Destroy() {
	q.logger.Debug("CommandQueue::Destroy")

	if q.queue == nil {
		return
	}

	err := q.Flush()
	if err != nil {
		q.logger.Warn("Command queue destroyed without completing outstanding work", slog.Any("error", err))
	}

	q.fence.Destroy()
	q.queue.Destroy()
	q.fence = nil
	q.queue = nil
	q.device = nil
}
