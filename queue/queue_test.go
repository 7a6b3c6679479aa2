package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/gpu/soft"
	"github.com/vkngwrapper/frameline/logging"
)

func newDevice(t *testing.T, latency time.Duration) *soft.Device {
	device := soft.NewDevice(soft.Options{ExecutionLatency: latency})
	_, _, err := device.Opener()(logging.Discard(), false)
	require.NoError(t, err)
	t.Cleanup(device.Destroy)
	return device
}

func newQueue(t *testing.T, device *soft.Device) *CommandQueue {
	q := New(logging.Discard())
	require.NoError(t, q.Initialize(device, gpu.QueueDirect))
	t.Cleanup(q.Destroy)
	return q
}

func TestSignalIsMonotonic(t *testing.T) {
	q := newQueue(t, newDevice(t, 0))

	for i := uint64(1); i <= 10; i++ {
		require.Equal(t, i, q.Signal())
		require.Equal(t, i, q.LastSignaled())
	}

	require.NoError(t, q.Wait(10))
	require.Equal(t, uint64(10), q.CompletedValue())
	require.LessOrEqual(t, q.CompletedValue(), q.LastSignaled())
}

func TestWaitBlocksUntilWorkCompletes(t *testing.T) {
	device := newDevice(t, 30*time.Millisecond)
	q := newQueue(t, device)

	allocator, err := q.CreateCommandAllocator()
	require.NoError(t, err)
	defer allocator.Destroy()
	list, err := q.CreateCommandList(allocator)
	require.NoError(t, err)
	defer list.Destroy()

	q.Submit(list)
	value := q.Signal()
	require.Less(t, q.CompletedValue(), value)

	require.NoError(t, q.Wait(value))
	require.GreaterOrEqual(t, q.CompletedValue(), value)
	require.Equal(t, 1, device.ExecutedLists())
}

func TestWaitOnCompletedValueReturnsImmediately(t *testing.T) {
	q := newQueue(t, newDevice(t, 0))

	require.NoError(t, q.Flush())
	require.NoError(t, q.Wait(0))
	require.NoError(t, q.Wait(1))
}

func TestWaitTimeout(t *testing.T) {
	device := newDevice(t, 200*time.Millisecond)
	q := newQueue(t, device)
	q.SetWaitTimeout(10 * time.Millisecond)

	allocator, err := q.CreateCommandAllocator()
	require.NoError(t, err)
	defer allocator.Destroy()
	list, err := q.CreateCommandList(allocator)
	require.NoError(t, err)
	defer list.Destroy()

	q.Submit(list)
	err = q.Wait(q.Signal())
	require.True(t, errors.Is(err, frameutils.ErrWaitTimeout))

	q.SetWaitTimeout(0)
	require.NoError(t, q.Flush())
}

func TestFlushWithConcurrentObserver(t *testing.T) {
	device := newDevice(t, time.Millisecond)
	q := newQueue(t, device)

	allocator, err := q.CreateCommandAllocator()
	require.NoError(t, err)
	defer allocator.Destroy()
	list, err := q.CreateCommandList(allocator)
	require.NoError(t, err)
	defer list.Destroy()

	var wg sync.WaitGroup
	var regressed atomic.Bool
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			completed := q.CompletedValue()
			if completed < last {
				regressed.Store(true)
			}
			last = completed
		}
	}()

	for i := 0; i < 20; i++ {
		q.Submit(list)
		require.NoError(t, q.Flush())
		require.Equal(t, q.LastSignaled(), q.CompletedValue())
	}
	close(stop)
	wg.Wait()
	require.False(t, regressed.Load())
}

func TestInitializeFailures(t *testing.T) {
	q := New(nil)
	err := q.Initialize(nil, gpu.QueueDirect)
	require.True(t, errors.Is(err, frameutils.ErrInit))

	device := newDevice(t, 0)
	device.FailNextCreate(soft.ObjectQueue, core1_0.VKErrorOutOfDeviceMemory)
	err = q.Initialize(device, gpu.QueueDirect)
	require.True(t, errors.Is(err, frameutils.ErrInit))
	require.False(t, q.Initialized())

	device.FailNextCreate(soft.ObjectFence, core1_0.VKErrorOutOfDeviceMemory)
	err = q.Initialize(device, gpu.QueueDirect)
	require.True(t, errors.Is(err, frameutils.ErrInit))
	require.Zero(t, device.LiveObjects(soft.ObjectQueue))

	require.NoError(t, q.Initialize(device, gpu.QueueCompute))
	require.NoError(t, q.Initialize(device, gpu.QueueDirect))
	require.Equal(t, gpu.QueueCompute, q.Kind())

	q.Destroy()
	require.Zero(t, device.LiveObjects(soft.ObjectQueue))
	require.Zero(t, device.LiveObjects(soft.ObjectFence))
}

func TestUninitializedQueue(t *testing.T) {
	q := New(nil)
	require.Zero(t, q.Signal())
	q.Submit()
	require.True(t, errors.Is(q.Wait(1), frameutils.ErrNotInitialized))
	require.True(t, errors.Is(q.Flush(), frameutils.ErrNotInitialized))
	_, err := q.CreateCommandAllocator()
	require.True(t, errors.Is(err, frameutils.ErrNotInitialized))
	q.Destroy()
}

func TestSignalFailureStillAdvances(t *testing.T) {
	device := newDevice(t, 0)
	q := newQueue(t, device)

	device.FailNextSignal(core1_0.VKErrorDeviceLost)
	require.Equal(t, uint64(1), q.Signal())
	require.Equal(t, uint64(2), q.Signal())
	require.NoError(t, q.Wait(2))
}

func TestSelfTestLeavesTimelineUntouched(t *testing.T) {
	device := newDevice(t, time.Millisecond)
	q := newQueue(t, device)

	require.NoError(t, q.SelfTest())
	require.Zero(t, q.LastSignaled())
	require.Zero(t, q.CompletedValue())
	require.Equal(t, 1, device.LiveObjects(soft.ObjectFence))
	require.Equal(t, uint64(1), q.Signal())

	device.FailNextSignal(core1_0.VKErrorDeviceLost)
	require.True(t, errors.Is(q.SelfTest(), frameutils.ErrInit))
	require.True(t, errors.Is(New(nil).SelfTest(), frameutils.ErrNotInitialized))
}
