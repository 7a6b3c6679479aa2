package swapchain_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/gpu/soft"
	"github.com/vkngwrapper/frameline/logging"
	"github.com/vkngwrapper/frameline/queue"
	"github.com/vkngwrapper/frameline/swapchain"
)

const target gpu.SurfaceTarget = 0x42

type fixture struct {
	device *soft.Device
	queue  *queue.CommandQueue
}

func newFixture(t *testing.T, options soft.Options) *fixture {
	device := soft.NewDevice(options)
	_, _, err := device.Opener()(logging.Discard(), true)
	require.NoError(t, err)
	t.Cleanup(device.Destroy)

	q := queue.New(nil)
	require.NoError(t, q.Initialize(device, gpu.QueueDirect))
	t.Cleanup(q.Destroy)

	return &fixture{device: device, queue: q}
}

func (f *fixture) surface(t *testing.T, desc swapchain.Desc) *swapchain.Surface {
	surface := swapchain.New(nil)
	require.NoError(t, surface.Initialize(f.device, f.queue.Queue(), target, desc))
	t.Cleanup(surface.Destroy)
	return surface
}

func imageIDs(surface *swapchain.Surface) []uint64 {
	var ids []uint64
	for i := 0; i < swapchain.ImageCount; i++ {
		ids = append(ids, surface.Image(i).ID())
	}
	return ids
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, soft.Options{})
	surface := f.surface(t, swapchain.Desc{Width: 640, Height: 480, VSync: true})

	require.Equal(t, 640, surface.Width())
	require.Equal(t, 480, surface.Height())
	require.Equal(t, gpu.FormatR8G8B8A8Unorm, surface.Format())
	require.Equal(t, 0, surface.CurrentImageIndex())
	require.True(t, surface.VSync())
	require.False(t, surface.TearingSupported())
	require.True(t, f.device.FullscreenToggleDisabled(target))

	for i := 0; i < swapchain.ImageCount; i++ {
		require.NotNil(t, surface.Image(i))
		require.Equal(t, 640, surface.Image(i).Width())
	}
	require.Nil(t, surface.Image(swapchain.ImageCount))
	require.Same(t, surface.Image(0), surface.CurrentImage())
}

func TestTearingNeedsDeviceSupport(t *testing.T) {
	f := newFixture(t, soft.Options{TearingSupported: false})
	surface := f.surface(t, swapchain.Desc{Width: 64, Height: 64, AllowTearing: true})
	require.False(t, surface.TearingSupported())
	require.Zero(t, surface.Flags())

	g := newFixture(t, soft.Options{TearingSupported: true})
	tearing := g.surface(t, swapchain.Desc{Width: 64, Height: 64, AllowTearing: true})
	require.True(t, tearing.TearingSupported())
	require.Equal(t, gpu.SwapchainAllowTearing, tearing.Flags())
}

func TestPresentFlags(t *testing.T) {
	f := newFixture(t, soft.Options{TearingSupported: true})
	surface := f.surface(t, swapchain.Desc{Width: 64, Height: 64, VSync: true, AllowTearing: true})

	require.NoError(t, surface.Present())
	require.NoError(t, f.queue.Flush())
	count, interval, flags := f.device.Presents()
	require.Equal(t, 1, count)
	require.Equal(t, 1, interval)
	require.Zero(t, flags)
	require.Equal(t, 1, surface.CurrentImageIndex())

	surface.SetVSync(false)
	require.NoError(t, surface.Present())
	require.NoError(t, f.queue.Flush())
	count, interval, flags = f.device.Presents()
	require.Equal(t, 2, count)
	require.Equal(t, 0, interval)
	require.Equal(t, gpu.PresentAllowTearing, flags)
	require.Equal(t, 2, surface.CurrentImageIndex())

	require.NoError(t, surface.Present())
	require.Equal(t, 0, surface.CurrentImageIndex())
	require.NoError(t, f.queue.Flush())
	require.Empty(t, f.device.ValidationErrors())
}

func TestPresentWithoutTearingSupport(t *testing.T) {
	f := newFixture(t, soft.Options{})
	surface := f.surface(t, swapchain.Desc{Width: 64, Height: 64, VSync: false, AllowTearing: true})

	require.NoError(t, surface.Present())
	require.NoError(t, f.queue.Flush())
	_, interval, flags := f.device.Presents()
	require.Equal(t, 0, interval)
	require.Zero(t, flags)
}

func TestPresentDeviceLost(t *testing.T) {
	var logs bytes.Buffer
	sink, err := logging.Open(logging.Options{Console: &logs})
	require.NoError(t, err)

	f := newFixture(t, soft.Options{})
	surface := swapchain.New(sink.Logger())
	require.NoError(t, surface.Initialize(f.device, f.queue.Queue(), target, swapchain.Desc{Width: 64, Height: 64}))
	defer surface.Destroy()

	f.device.FailNextPresent(core1_0.VKErrorDeviceLost)
	err = surface.Present()
	require.True(t, errors.Is(err, frameutils.ErrDeviceLost))
	require.True(t, errors.Is(err, frameutils.ErrPresent))
	require.Contains(t, logs.String(), "Device lost during Present")

	f.device.FailNextPresent(khr_swapchain.VKErrorOutOfDate)
	err = surface.Present()
	require.True(t, errors.Is(err, frameutils.ErrPresent))
	require.False(t, errors.Is(err, frameutils.ErrDeviceLost))
	require.Contains(t, logs.String(), "Swapchain out of date during Present")

	f.device.FailNextPresent(core1_0.VKErrorOutOfHostMemory)
	err = surface.Present()
	require.True(t, errors.Is(err, frameutils.ErrPresent))
	require.False(t, errors.Is(err, frameutils.ErrDeviceLost))
	require.Equal(t, 0, surface.CurrentImageIndex())
}

func TestResize(t *testing.T) {
	f := newFixture(t, soft.Options{TearingSupported: true})
	surface := f.surface(t, swapchain.Desc{Width: 640, Height: 480, AllowTearing: true})
	before := imageIDs(surface)

	require.NoError(t, surface.Resize(640, 480))
	require.Equal(t, before, imageIDs(surface))

	require.True(t, errors.Is(surface.Resize(0, 480), frameutils.ErrValidation))
	require.True(t, errors.Is(surface.Resize(640, 0), frameutils.ErrValidation))
	require.Equal(t, before, imageIDs(surface))

	require.NoError(t, surface.Resize(1920, 1080))
	after := imageIDs(surface)
	for i := range after {
		require.NotContains(t, before, after[i])
		require.Equal(t, 1920, surface.Image(i).Width())
		require.Equal(t, 1080, surface.Image(i).Height())
	}
	require.Equal(t, gpu.SwapchainAllowTearing, surface.Flags())
	require.Equal(t, 1920, surface.Width())
	require.Equal(t, 0, surface.CurrentImageIndex())
	require.Empty(t, f.device.ValidationErrors())
}

func TestResizeFailureKeepsImages(t *testing.T) {
	f := newFixture(t, soft.Options{})
	surface := f.surface(t, swapchain.Desc{Width: 64, Height: 64})
	before := imageIDs(surface)

	// An outside reference keeps the old buffers alive, so the resize is rejected
	extra, _, err := surface.Swapchain().Image(0)
	require.NoError(t, err)

	err = surface.Resize(128, 128)
	require.True(t, errors.Is(err, frameutils.ErrPresent))
	require.Equal(t, 64, surface.Width())
	require.Equal(t, before, imageIDs(surface))

	extra.Release()
	require.NoError(t, surface.Resize(128, 128))
	require.Equal(t, 128, surface.Image(0).Width())
}

func TestInitializeFailures(t *testing.T) {
	f := newFixture(t, soft.Options{})

	surface := swapchain.New(nil)
	require.True(t, errors.Is(surface.Initialize(nil, nil, target, swapchain.Desc{Width: 1, Height: 1}), frameutils.ErrInit))
	require.True(t, errors.Is(surface.Initialize(f.device, f.queue.Queue(), target, swapchain.Desc{}), frameutils.ErrInit))

	f.device.FailNextCreate(soft.ObjectSwapchain, core1_0.VKErrorOutOfDeviceMemory)
	require.True(t, errors.Is(surface.Initialize(f.device, f.queue.Queue(), target, swapchain.Desc{Width: 8, Height: 8}), frameutils.ErrInit))
	require.Zero(t, f.device.LiveObjects(soft.ObjectSwapchain))

	// A failed fullscreen toggle is only a warning
	f.device.FailNextCreate(soft.ObjectFullscreenToggle, core1_0.VKErrorUnknown)
	require.NoError(t, surface.Initialize(f.device, f.queue.Queue(), target, swapchain.Desc{Width: 8, Height: 8}))
	require.False(t, f.device.FullscreenToggleDisabled(target))
	surface.Destroy()
	require.Zero(t, f.device.LiveObjects(soft.ObjectSwapchain))

	require.True(t, errors.Is(surface.Present(), frameutils.ErrNotInitialized))
	require.True(t, errors.Is(surface.Resize(1, 1), frameutils.ErrNotInitialized))
}
