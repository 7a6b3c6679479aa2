// Package swapchain wraps a gpu.Swapchain as the presentation surface of one window.
package swapchain

import (
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

// ImageCount is the number of presentable images in every Surface
const ImageCount = 3

// Desc describes the surface to create
type Desc struct {
	Width  int
	Height int
	// Format defaults to R8G8B8A8_UNORM
	Format gpu.Format
	VSync  bool
	// AllowTearing requests tearing presents when vsync is off. It only takes effect if the device
	// supports tearing.
	AllowTearing bool
}

// Surface owns a swapchain and one reference to each of its images
type Surface struct {
	logger *slog.Logger

	device    gpu.Device
	swapchain gpu.Swapchain
	target    gpu.SurfaceTarget
	images    [ImageCount]gpu.Image

	width   int
	height  int
	format  gpu.Format
	flags   gpu.SwapchainFlags
	current int

	vsync            bool
	tearingSupported bool
}

// New creates an uninitialized Surface
func New(logger *slog.Logger) *Surface {
	return &Surface{
		logger: logging.For(logger, logging.CategoryRenderer),
	}
}

// Initialize creates the swapchain for target on queue and acquires its images
func (s *Surface) Initialize(device gpu.Device, queue gpu.Queue, target gpu.SurfaceTarget, desc Desc) error {
	s.logger.Debug("Surface::Initialize")

	if s.swapchain != nil {
		s.logger.Warn("Surface is already initialized")
		return nil
	}
	if device == nil || queue == nil {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize surface without a device and queue")
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize surface with size %dx%d", desc.Width, desc.Height)
	}
	if desc.Format == gpu.FormatUnknown {
		desc.Format = gpu.FormatR8G8B8A8Unorm
	}

	tearingSupported := desc.AllowTearing && device.TearingSupported()

	var flags gpu.SwapchainFlags
	if tearingSupported {
		flags |= gpu.SwapchainAllowTearing
	}

	swapchain, res, err := device.CreateSwapchain(queue, target, gpu.SwapchainDesc{
		Width:       desc.Width,
		Height:      desc.Height,
		Format:      desc.Format,
		BufferCount: ImageCount,
		Flags:       flags,
	})
	if err != nil {
		s.logger.Error("Failed to create swapchain", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create swapchain")
	}

	res, err = device.DisableFullscreenToggle(target)
	if err != nil {
		s.logger.Warn("Failed to disable the fullscreen toggle", slog.String("result", res.String()))
	}

	s.device = device
	s.swapchain = swapchain
	s.target = target
	s.width = desc.Width
	s.height = desc.Height
	s.format = desc.Format
	s.flags = flags
	s.vsync = desc.VSync
	s.tearingSupported = tearingSupported

	err = s.acquireImages()
	if err != nil {
		s.Destroy()
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to acquire swapchain images")
	}

	s.current = swapchain.CurrentImageIndex()

	s.logger.Info("Surface initialized",
		slog.Int("width", desc.Width),
		slog.Int("height", desc.Height),
		slog.String("format", desc.Format.String()),
		slog.Bool("vsync", desc.VSync),
		slog.Bool("tearing", tearingSupported))
	return nil
}

func (s *Surface) acquireImages() error {
	for i := range s.images {
		image, res, err := s.swapchain.Image(i)
		if err != nil {
			s.logger.Error("Failed to get swapchain image", slog.Int("index", i), slog.String("result", res.String()))
			s.releaseImages()
			return err
		}
		s.images[i] = image
	}
	return nil
}

func (s *Surface) releaseImages() {
	for i := range s.images {
		if s.images[i] != nil {
			s.images[i].Release()
			s.images[i] = nil
		}
	}
}

// Present queues the current image for display. A device-removed or out-of-date result is reported as
// ErrDeviceLost, which is also an ErrPresent.
func (s *Surface) Present() error {
	if s.swapchain == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "present on an uninitialized surface")
	}

	syncInterval := 0
	if s.vsync {
		syncInterval = 1
	}

	var flags gpu.PresentFlags
	if !s.vsync && s.tearingSupported {
		flags |= gpu.PresentAllowTearing
	}

	res, err := s.swapchain.Present(syncInterval, flags)
	if err != nil {
		if gpu.IsDeviceLost(res) {
			s.logger.Error("Device lost during Present", slog.String("result", res.String()))
			return frameutils.Wrap(frameutils.Wrap(err, frameutils.ErrPresent, "present failed with %s", res), frameutils.ErrDeviceLost, "device lost")
		}
		if gpu.IsOutOfDate(res) {
			s.logger.Warn("Swapchain out of date during Present", slog.String("result", res.String()))
			return frameutils.Wrap(err, frameutils.ErrPresent, "swapchain out of date")
		}

		s.logger.Error("Present failed", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrPresent, "present failed with %s", res)
	}

	s.current = s.swapchain.CurrentImageIndex()
	return nil
}

// Resize rebuilds the images at the new size, keeping format and swapchain flags. Resizing to the
// current size does nothing. Every external reference to the old images must already have been
// released, and the GPU must be idle.
func (s *Surface) Resize(width, height int) error {
	s.logger.Debug("Surface::Resize")

	if s.swapchain == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "resize of an uninitialized surface")
	}
	if width <= 0 || height <= 0 {
		return frameutils.Newf(frameutils.ErrValidation, "cannot resize surface to %dx%d", width, height)
	}
	if width == s.width && height == s.height {
		return nil
	}

	s.releaseImages()

	res, err := s.swapchain.ResizeBuffers(ImageCount, width, height, s.format, s.flags)
	if err != nil {
		s.logger.Error("Failed to resize swapchain buffers", slog.String("result", res.String()))
		if gpu.IsDeviceLost(res) {
			return frameutils.Wrap(err, frameutils.ErrDeviceLost, "device lost resizing swapchain to %dx%d", width, height)
		}

		// The old buffers are still in place
		reacquireErr := s.acquireImages()
		if reacquireErr != nil {
			s.logger.Error("Failed to reacquire swapchain images", slog.Any("error", reacquireErr))
		}
		return frameutils.Wrap(err, frameutils.ErrPresent, "failed to resize swapchain to %dx%d", width, height)
	}

	s.width = width
	s.height = height

	err = s.acquireImages()
	if err != nil {
		return frameutils.Wrap(err, frameutils.ErrPresent, "failed to acquire resized swapchain images")
	}
	s.current = s.swapchain.CurrentImageIndex()

	s.logger.Info("Surface resized", slog.Int("width", width), slog.Int("height", height))
	return nil
}

// CurrentImageIndex is the index of the image the next frame renders into
func (s *Surface) CurrentImageIndex() int {
	return s.current
}

// Image returns the surface's reference to image index, or nil if index is out of range
func (s *Surface) Image(index int) gpu.Image {
	if index < 0 || index >= ImageCount {
		return nil
	}
	return s.images[index]
}

func (s *Surface) CurrentImage() gpu.Image {
	return s.images[s.current]
}

func (s *Surface) Width() int {
	return s.width
}

func (s *Surface) Height() int {
	return s.height
}

func (s *Surface) Format() gpu.Format {
	return s.format
}

func (s *Surface) Flags() gpu.SwapchainFlags {
	return s.flags
}

func (s *Surface) VSync() bool {
	return s.vsync
}

// SetVSync changes the sync interval of later presents
func (s *Surface) SetVSync(vsync bool) {
	s.vsync = vsync
}

// TearingSupported reports whether tearing was requested and the device supports it
func (s *Surface) TearingSupported() bool {
	return s.tearingSupported
}

// Swapchain returns the underlying swapchain
func (s *Surface) Swapchain() gpu.Swapchain {
	return s.swapchain
}

func (s *Surface) Target() gpu.SurfaceTarget {
	return s.target
}

// Destroy releases the images and the swapchain
func (s *Surface) Destroy() {
	s.logger.Debug("Surface::Destroy")

	if s.swapchain == nil {
		return
	}

	s.releaseImages()
	s.swapchain.Destroy()
	s.swapchain = nil
	s.device = nil
}
