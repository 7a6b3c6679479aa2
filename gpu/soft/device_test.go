package soft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/frameline/gpu"
)

func openDevice(t *testing.T, options Options) *Device {
	device := NewDevice(options)
	opened, res, err := device.Opener()(nil, true)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Same(t, device, opened)
	t.Cleanup(device.Destroy)
	return device
}

func waitFence(t *testing.T, fence gpu.Fence, value uint64) {
	select {
	case <-fence.Notify(value):
	case <-time.After(5 * time.Second):
		t.Fatalf("fence did not reach %d", value)
	}
}

func TestFenceSignalCompletesAsynchronously(t *testing.T) {
	device := openDevice(t, Options{ExecutionLatency: 20 * time.Millisecond})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	fence, _, err := device.CreateFence(0)
	require.NoError(t, err)

	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)
	_, err = list.Close()
	require.NoError(t, err)

	queue.Submit(list)
	_, err = queue.Signal(fence, 1)
	require.NoError(t, err)

	// The submission sleeps before executing, so the fence cannot have completed yet
	require.Equal(t, uint64(0), fence.CompletedValue())

	waitFence(t, fence, 1)
	require.Equal(t, uint64(1), fence.CompletedValue())
	require.Equal(t, 1, device.ExecutedLists())

	select {
	case <-fence.Notify(1):
	default:
		t.Fatal("notify for a completed value must be closed immediately")
	}
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	device := openDevice(t, Options{ExecutionLatency: 50 * time.Millisecond})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	fence, _, err := device.CreateFence(0)
	require.NoError(t, err)
	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)
	_, err = list.Close()
	require.NoError(t, err)

	queue.Submit(list)
	_, err = queue.Signal(fence, 1)
	require.NoError(t, err)

	res, err := allocator.Reset()
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorUnknown, res)
	require.Len(t, device.ValidationErrors(), 1)

	waitFence(t, fence, 1)
	_, err = allocator.Reset()
	require.NoError(t, err)
	require.Equal(t, 1, device.AllocatorResets())
}

func TestListResetRules(t *testing.T) {
	device := openDevice(t, Options{})

	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)

	// Still recording after creation
	_, err = list.Reset(allocator, nil)
	require.Error(t, err)

	_, err = list.Close()
	require.NoError(t, err)
	_, err = list.Reset(allocator, nil)
	require.NoError(t, err)
	require.Equal(t, 1, device.ListResets())

	_, err = list.Close()
	require.NoError(t, err)
	device.FailListResets(1)
	res, err := list.Reset(allocator, nil)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	_, err = list.Reset(allocator, nil)
	require.NoError(t, err)
}

func TestSubmitRecordingListIsRejected(t *testing.T) {
	device := openDevice(t, Options{})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)

	queue.Submit(list)
	require.Len(t, device.ValidationErrors(), 1)
}

func TestDescriptorTableHandles(t *testing.T) {
	device := openDevice(t, Options{})

	rtv, _, err := device.CreateDescriptorTable(gpu.DescriptorRenderTarget, 4, false)
	require.NoError(t, err)
	srv, _, err := device.CreateDescriptorTable(gpu.DescriptorShaderResource, 4, true)
	require.NoError(t, err)

	require.Zero(t, rtv.GPUStart())
	require.NotZero(t, srv.GPUStart())
	require.NotEqual(t, rtv.CPUStart(), srv.CPUStart())
	require.Equal(t, uint64(32), device.DescriptorIncrement(gpu.DescriptorRenderTarget))

	_, _, err = device.CreateDescriptorTable(gpu.DescriptorDepthStencil, 4, true)
	require.Error(t, err)

	require.Equal(t, 2, device.LiveObjects(ObjectDescriptorTable))
	rtv.Destroy()
	rtv.Destroy()
	require.Equal(t, 1, device.LiveObjects(ObjectDescriptorTable))
}

func TestSwapchainFrame(t *testing.T) {
	device := openDevice(t, Options{TearingSupported: true})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	fence, _, err := device.CreateFence(0)
	require.NoError(t, err)
	swapchain, _, err := device.CreateSwapchain(queue, 1, gpu.SwapchainDesc{
		Width: 64, Height: 32, Format: gpu.FormatR8G8B8A8Unorm, BufferCount: 3, Flags: gpu.SwapchainAllowTearing,
	})
	require.NoError(t, err)

	table, _, err := device.CreateDescriptorTable(gpu.DescriptorRenderTarget, 3, false)
	require.NoError(t, err)

	image, _, err := swapchain.Image(swapchain.CurrentImageIndex())
	require.NoError(t, err)
	_, err = device.CreateRenderTargetView(image, table.CPUStart())
	require.NoError(t, err)

	id, ok := device.ViewImageID(table.CPUStart())
	require.True(t, ok)
	require.Equal(t, image.ID(), id)

	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)

	color := gpu.Color{0.39, 0.58, 0.93, 1}
	list.ResourceBarrier(image, gpu.StatePresent, gpu.StateRenderTarget)
	list.SetRenderTarget(table.CPUStart())
	list.ClearRenderTarget(table.CPUStart(), color)
	list.ResourceBarrier(image, gpu.StateRenderTarget, gpu.StatePresent)
	_, err = list.Close()
	require.NoError(t, err)

	queue.Submit(list)
	_, err = swapchain.Present(0, gpu.PresentAllowTearing)
	require.NoError(t, err)
	require.Equal(t, 1, swapchain.CurrentImageIndex())

	_, err = queue.Signal(fence, 1)
	require.NoError(t, err)
	waitFence(t, fence, 1)

	softImage := image.(*Image)
	cleared, clears := softImage.LastClear()
	require.Equal(t, color, cleared)
	require.Equal(t, 1, clears)
	require.Equal(t, gpu.StatePresent, softImage.State())

	count, interval, flags := device.Presents()
	require.Equal(t, 1, count)
	require.Equal(t, 0, interval)
	require.Equal(t, gpu.PresentAllowTearing, flags)
	require.Empty(t, device.ValidationErrors())

	image.Release()
}

func TestSwapchainBarrierMismatch(t *testing.T) {
	device := openDevice(t, Options{})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	fence, _, err := device.CreateFence(0)
	require.NoError(t, err)
	swapchain, _, err := device.CreateSwapchain(queue, 1, gpu.SwapchainDesc{Width: 8, Height: 8, BufferCount: 2})
	require.NoError(t, err)

	image, _, err := swapchain.Image(0)
	require.NoError(t, err)
	defer image.Release()

	allocator, _, err := device.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, _, err := device.CreateCommandList(gpu.QueueDirect, allocator, nil)
	require.NoError(t, err)
	list.ResourceBarrier(image, gpu.StateRenderTarget, gpu.StatePresent)
	_, err = list.Close()
	require.NoError(t, err)

	queue.Submit(list)
	_, err = queue.Signal(fence, 1)
	require.NoError(t, err)
	waitFence(t, fence, 1)

	require.Len(t, device.ValidationErrors(), 1)
}

func TestSwapchainResizeRequiresReleasedImages(t *testing.T) {
	device := openDevice(t, Options{})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	swapchain, _, err := device.CreateSwapchain(queue, 7, gpu.SwapchainDesc{Width: 8, Height: 8, BufferCount: 3})
	require.NoError(t, err)

	image, _, err := swapchain.Image(0)
	require.NoError(t, err)
	oldID := image.ID()

	_, err = swapchain.ResizeBuffers(3, 16, 16, gpu.FormatR8G8B8A8Unorm, 0)
	require.Error(t, err)

	image.Release()
	require.Zero(t, swapchain.(*Swapchain).OutstandingReferences())

	_, err = swapchain.ResizeBuffers(3, 16, 16, gpu.FormatR8G8B8A8Unorm, 0)
	require.NoError(t, err)

	image, _, err = swapchain.Image(0)
	require.NoError(t, err)
	require.NotEqual(t, oldID, image.ID())
	require.Equal(t, 16, image.Width())
	image.Release()
}

func TestSwapchainRejectsSecondBinding(t *testing.T) {
	device := openDevice(t, Options{})

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	desc := gpu.SwapchainDesc{Width: 8, Height: 8, BufferCount: 3}

	_, _, err = device.CreateSwapchain(queue, 0, desc)
	require.Error(t, err)

	first, _, err := device.CreateSwapchain(queue, 3, desc)
	require.NoError(t, err)
	_, _, err = device.CreateSwapchain(queue, 3, desc)
	require.Error(t, err)

	first.Destroy()
	_, _, err = device.CreateSwapchain(queue, 3, desc)
	require.NoError(t, err)
}

func TestInjectedFailures(t *testing.T) {
	device := openDevice(t, Options{})

	device.FailNextCreate(ObjectFence, core1_0.VKErrorOutOfDeviceMemory)
	_, res, err := device.CreateFence(0)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	_, _, err = device.CreateFence(0)
	require.NoError(t, err)

	queue, _, err := device.CreateQueue(gpu.QueueDirect)
	require.NoError(t, err)
	swapchain, _, err := device.CreateSwapchain(queue, 9, gpu.SwapchainDesc{Width: 8, Height: 8, BufferCount: 3})
	require.NoError(t, err)

	device.FailNextPresent(khr_swapchain.VKErrorOutOfDate)
	res, err = swapchain.Present(1, 0)
	require.Error(t, err)
	require.Equal(t, khr_swapchain.VKErrorOutOfDate, res)
	require.Equal(t, 0, swapchain.CurrentImageIndex())

	device.FailNextCreate(ObjectFullscreenToggle, core1_0.VKErrorUnknown)
	_, err = device.DisableFullscreenToggle(9)
	require.Error(t, err)
	require.False(t, device.FullscreenToggleDisabled(9))
	_, err = device.DisableFullscreenToggle(9)
	require.NoError(t, err)
	require.True(t, device.FullscreenToggleDisabled(9))
}

func TestOpenerFailure(t *testing.T) {
	device := NewDevice(Options{})
	device.FailNextCreate(ObjectDevice, core1_0.VKErrorInitializationFailed)

	_, res, err := device.Opener()(nil, false)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorInitializationFailed, res)
	require.Zero(t, device.LiveObjects(ObjectDevice))
}
