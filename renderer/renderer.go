// Package renderer sequences the queue, command pool, presentation surface and descriptor registry
// into BeginFrame/RenderFrame/EndFrame and resize.
package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/frameline/cmdpool"
	"github.com/vkngwrapper/frameline/config"
	"github.com/vkngwrapper/frameline/descriptor"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"github.com/vkngwrapper/frameline/queue"
	"github.com/vkngwrapper/frameline/swapchain"
	"golang.org/x/exp/slog"
)

// ClearColor is the color every frame's render target is cleared to
var ClearColor = gpu.Color{0.39, 0.58, 0.93, 1.0}

// Renderer drives one window's frames. All methods must be called from the same goroutine.
type Renderer struct {
	logger *slog.Logger
	opener gpu.Opener

	settings config.Renderer
	state    State

	device      gpu.Device
	queue       *queue.CommandQueue
	pool        *cmdpool.Pool
	surface     *swapchain.Surface
	descriptors *descriptor.Registry
	rtvSlots    [swapchain.ImageCount]descriptor.Slot

	width  int
	height int

	frameOpen    bool
	frameDropped bool
	frameList    gpu.CommandList
	frameImage   gpu.Image
	frameRTV     gpu.CPUHandle
	frameStart   time.Duration

	frameCount     uint64
	droppedFrames  int
	lastFenceValue uint64
	deviceLost     bool
	frameTimes     frameutils.FrameStatistics
}

// New creates an uninitialized Renderer that will open its device with opener
func New(logger *slog.Logger, opener gpu.Opener) *Renderer {
	r := &Renderer{
		logger: logging.For(logger, logging.CategoryRenderer),
		opener: opener,
	}
	for i := range r.rtvSlots {
		r.rtvSlots[i] = descriptor.InvalidSlot
	}
	r.frameTimes.Clear()
	return r
}

// Initialize brings up the device, queue, command pool, presentation surface, descriptor registry and
// render target views, in that order. If any step fails, everything already created is torn down in
// reverse order and an ErrInit error is returned.
func (r *Renderer) Initialize(target gpu.SurfaceTarget, width, height int, settings config.Renderer) error {
	r.logger.Debug("Renderer::Initialize")

	if r.state == StateShuttingDown {
		return frameutils.Newf(frameutils.ErrInit, "renderer has been shut down")
	}
	if r.state != StateUninitialized {
		r.logger.Warn("Renderer is already initialized", slog.String("state", r.state.String()))
		return nil
	}
	if r.opener == nil {
		return frameutils.Newf(frameutils.ErrInit, "renderer has no device opener")
	}
	if width <= 0 || height <= 0 {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize renderer with size %dx%d", width, height)
	}

	r.logger.Info("Initializing renderer",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Bool("vsync", settings.VSync),
		slog.Bool("debugValidation", settings.EnableDebugValidation),
		slog.Bool("hdr", settings.HDR))

	err := r.initialize(target, width, height, settings)
	if err != nil {
		r.logger.Error("Renderer initialization failed", slog.Any("error", err))
		r.teardown()
		if !errors.Is(err, frameutils.ErrInit) {
			err = frameutils.Wrap(err, frameutils.ErrInit, "renderer initialization failed")
		}
		return err
	}

	r.settings = settings
	r.width = width
	r.height = height
	r.state = StateInitialized
	r.deviceLost = false
	r.frameTimes.Clear()

	r.logger.Info("Renderer initialized")
	return nil
}

func (r *Renderer) initialize(target gpu.SurfaceTarget, width, height int, settings config.Renderer) error {
	device, res, err := r.opener(r.logger, settings.EnableDebugValidation)
	if err != nil {
		r.logger.Error("Failed to create device", slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create device")
	}
	r.device = device
	r.logger.Info("Device created", slog.String("device", device.Description()))

	r.queue = queue.New(r.logger)
	err = r.queue.Initialize(device, gpu.QueueDirect)
	if err != nil {
		return err
	}
	r.queue.SetWaitTimeout(settings.WaitTimeout)

	err = r.queue.SelfTest()
	if err != nil {
		return err
	}

	r.pool = cmdpool.New(r.logger)
	err = r.pool.Initialize(device, gpu.QueueDirect, cmdpool.DefaultInitialListCount)
	if err != nil {
		return err
	}

	format := gpu.FormatR8G8B8A8Unorm
	if settings.HDR {
		format = gpu.FormatR16G16B16A16Float
	}

	r.surface = swapchain.New(r.logger)
	err = r.surface.Initialize(device, r.queue.Queue(), target, swapchain.Desc{
		Width:        width,
		Height:       height,
		Format:       format,
		VSync:        settings.VSync,
		AllowTearing: !settings.VSync,
	})
	if err != nil {
		return err
	}

	capacities := descriptor.DefaultCapacities()
	capacities.RenderTarget = settings.Descriptors.RenderTarget
	capacities.DepthStencil = settings.Descriptors.DepthStencil
	capacities.ShaderResource = settings.Descriptors.ShaderResource
	capacities.Sampler = settings.Descriptors.Sampler

	r.descriptors = descriptor.NewRegistry(r.logger)
	err = r.descriptors.Initialize(device, capacities)
	if err != nil {
		return err
	}

	err = r.createRenderTargets()
	if err != nil {
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create render target views")
	}

	return nil
}

func (r *Renderer) createRenderTargets() error {
	for i := range r.rtvSlots {
		slot, err := r.descriptors.TryAllocate(gpu.DescriptorRenderTarget)
		if err != nil {
			r.freeRenderTargets()
			return err
		}
		r.rtvSlots[i] = slot

		res, err := r.device.CreateRenderTargetView(r.surface.Image(i), slot.CPU)
		if err != nil {
			r.logger.Error("Failed to create render target view", slog.Int("image", i), slog.String("result", res.String()))
			r.freeRenderTargets()
			return err
		}
	}

	r.logger.Debug("Render target views created", slog.Int("count", len(r.rtvSlots)))
	return nil
}

func (r *Renderer) freeRenderTargets() {
	for i := range r.rtvSlots {
		if r.rtvSlots[i].Valid() {
			r.descriptors.FreeRenderTarget(r.rtvSlots[i])
			r.rtvSlots[i] = descriptor.InvalidSlot
		}
	}
}

// teardown destroys whatever has been created, in reverse creation order
func (r *Renderer) teardown() {
	if r.descriptors != nil {
		r.freeRenderTargets()
		r.descriptors.Destroy()
		r.descriptors = nil
	}
	if r.surface != nil {
		r.surface.Destroy()
		r.surface = nil
	}
	if r.pool != nil {
		r.pool.Destroy()
		r.pool = nil
	}
	if r.queue != nil {
		r.queue.Destroy()
		r.queue = nil
	}
	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}
}

func (r *Renderer) checkFrameCall(operation string) error {
	if r.deviceLost {
		return frameutils.Newf(frameutils.ErrDeviceLost, "%s after the device was lost", operation)
	}
	if r.state != StateInitialized && r.state != StateRunning {
		return frameutils.Newf(frameutils.ErrNotInitialized, "%s on a renderer in state %s", operation, r.state)
	}
	return nil
}

// BeginFrame waits until the current frame slot has been retired by the GPU, then opens a command list
// targeting the current presentable image. If no list can be reset the frame is dropped: the ErrPool
// error is returned and RenderFrame and EndFrame do nothing for it.
func (r *Renderer) BeginFrame() error {
	err := r.checkFrameCall("BeginFrame")
	if err != nil {
		return err
	}
	if r.frameOpen {
		return frameutils.Newf(frameutils.ErrValidation, "BeginFrame called while frame %d is still open", r.frameCount)
	}

	if r.settings.LogFrameTime {
		r.frameStart = hrtime.Now()
	}

	err = r.pool.BeginFrame(r.queue)
	if err != nil {
		if errors.Is(err, frameutils.ErrWaitTimeout) {
			r.loseDevice(err)
			return frameutils.Wrap(err, frameutils.ErrDeviceLost, "GPU stopped making progress")
		}
		return err
	}

	r.state = StateRunning
	r.frameOpen = true

	list, err := r.pool.Acquire(nil)
	if err != nil {
		r.frameDropped = true
		r.droppedFrames++
		r.logger.Warn("Dropping frame", slog.Uint64("frame", r.frameCount), slog.Any("error", err))
		return err
	}

	current := r.surface.CurrentImageIndex()
	r.frameList = list
	r.frameImage = r.surface.Image(current)
	r.frameRTV = r.rtvSlots[current].CPU

	list.ResourceBarrier(r.frameImage, gpu.StatePresent, gpu.StateRenderTarget)
	list.SetViewport(gpu.FullViewport(r.width, r.height))
	list.SetScissor(gpu.FullRect(r.width, r.height))
	list.SetRenderTarget(r.frameRTV)

	logging.Trace(r.logger, "Frame begun", slog.Uint64("frame", r.frameCount), slog.Int("image", current), slog.Int("slot", r.pool.CurrentFrameIndex()))
	return nil
}

// RenderFrame records the frame's work into the open command list
func (r *Renderer) RenderFrame() error {
	err := r.checkFrameCall("RenderFrame")
	if err != nil {
		return err
	}
	if !r.frameOpen {
		return frameutils.Newf(frameutils.ErrValidation, "RenderFrame called without BeginFrame")
	}
	if r.frameDropped {
		return nil
	}

	r.frameList.ClearRenderTarget(r.frameRTV, ClearColor)
	return nil
}

// EndFrame submits the frame, presents it and signals the fence that retires its frame slot. A lost
// device is returned as ErrDeviceLost and latched: every later frame call fails with it.
func (r *Renderer) EndFrame() error {
	err := r.checkFrameCall("EndFrame")
	if err != nil {
		return err
	}
	if !r.frameOpen {
		return frameutils.Newf(frameutils.ErrValidation, "EndFrame called without BeginFrame")
	}

	if r.frameDropped {
		r.closeFrame()
		return nil
	}

	list := r.frameList
	list.ResourceBarrier(r.frameImage, gpu.StateRenderTarget, gpu.StatePresent)

	res, err := list.Close()
	if err != nil {
		r.logger.Error("Failed to close command list", slog.String("result", res.String()))
		r.pool.Release(list)
		r.droppedFrames++
		r.closeFrame()
		return frameutils.Wrap(err, frameutils.ErrPool, "failed to close command list for frame %d", r.frameCount)
	}

	r.queue.Submit(list)
	r.pool.Release(list)

	presentErr := r.surface.Present()

	value := r.queue.Signal()
	r.pool.EndFrame(value)
	r.lastFenceValue = value
	r.frameCount++
	r.closeFrame()

	if r.settings.LogFrameTime {
		elapsed := hrtime.Since(r.frameStart)
		r.frameTimes.AddFrame(elapsed.Nanoseconds())
		logging.Trace(r.logger, "Frame time", slog.Uint64("frame", r.frameCount), slog.Duration("elapsed", elapsed))
	}

	if presentErr != nil {
		if errors.Is(presentErr, frameutils.ErrDeviceLost) {
			r.loseDevice(presentErr)
		}
		return presentErr
	}

	return nil
}

func (r *Renderer) closeFrame() {
	r.frameOpen = false
	r.frameDropped = false
	r.frameList = nil
	r.frameImage = nil
	r.frameRTV = 0
}

func (r *Renderer) loseDevice(err error) {
	if r.deviceLost {
		return
	}
	r.deviceLost = true
	logging.Fatal(r.logger, "Device lost, rendering stopped", slog.Uint64("frame", r.frameCount), slog.Any("error", err))
}

// OnResize waits for the GPU to go idle, frees the render target views, resizes the surface and
// rebuilds the views against the new images. It does nothing when uninitialized or when the size is
// unchanged. A zero dimension (a minimized window) is ignored.
func (r *Renderer) OnResize(width, height int) error {
	r.logger.Debug("Renderer::OnResize")

	if r.state != StateInitialized && r.state != StateRunning {
		return nil
	}
	if width == r.width && height == r.height {
		return nil
	}
	if width <= 0 || height <= 0 {
		r.logger.Info("Ignoring resize to an empty surface", slog.Int("width", width), slog.Int("height", height))
		return nil
	}
	if r.deviceLost {
		return frameutils.Newf(frameutils.ErrDeviceLost, "resize after the device was lost")
	}
	if r.frameOpen {
		return frameutils.Newf(frameutils.ErrValidation, "resize called while frame %d is open", r.frameCount)
	}

	err := r.queue.Flush()
	if err != nil {
		if errors.Is(err, frameutils.ErrWaitTimeout) {
			r.loseDevice(err)
			return frameutils.Wrap(err, frameutils.ErrDeviceLost, "GPU stopped making progress")
		}
		return err
	}

	r.freeRenderTargets()

	err = r.surface.Resize(width, height)
	if err != nil {
		r.logger.Error("Failed to resize surface", slog.Any("error", err))
		if errors.Is(err, frameutils.ErrDeviceLost) {
			r.loseDevice(err)
			return err
		}

		rebuildErr := r.createRenderTargets()
		if rebuildErr != nil {
			r.logger.Error("Failed to rebuild render target views", slog.Any("error", rebuildErr))
		}
		return err
	}

	err = r.createRenderTargets()
	if err != nil {
		return frameutils.Wrap(err, frameutils.ErrPresent, "failed to rebuild render target views after resize")
	}

	r.width = width
	r.height = height

	r.logger.Info("Renderer resized", slog.Int("width", width), slog.Int("height", height))
	return nil
}

// Shutdown waits for the GPU and destroys everything Initialize created. ShuttingDown is terminal: a
// shut down renderer cannot be initialized again.
func (r *Renderer) Shutdown() {
	r.logger.Debug("Renderer::Shutdown")

	if r.state == StateUninitialized || r.state == StateShuttingDown {
		return
	}
	r.state = StateShuttingDown

	if r.frameOpen {
		r.logger.Warn("Shutting down with a frame still open", slog.Uint64("frame", r.frameCount))
		if r.frameList != nil {
			_, _ = r.frameList.Close()
			r.pool.Release(r.frameList)
		}
		r.closeFrame()
	}

	err := r.queue.Flush()
	if err != nil {
		r.logger.Error("Failed to drain the GPU during shutdown", slog.Any("error", err))
	}

	if r.settings.LogFrameTime && r.frameTimes.FrameCount > 0 {
		r.logger.Info("Frame time summary",
			slog.Int("frames", r.frameTimes.FrameCount),
			slog.Duration("average", time.Duration(r.frameTimes.AverageNanos())),
			slog.Duration("min", time.Duration(r.frameTimes.MinNanos)),
			slog.Duration("max", time.Duration(r.frameTimes.MaxNanos)))
	}

	r.teardown()
	r.logger.Info("Renderer shut down", slog.Uint64("frames", r.frameCount))
}

func (r *Renderer) State() State {
	return r.state
}

func (r *Renderer) Width() int {
	return r.width
}

func (r *Renderer) Height() int {
	return r.height
}

// FrameCount is the number of frames submitted
func (r *Renderer) FrameCount() uint64 {
	return r.frameCount
}

// DroppedFrames is the number of frames begun but never submitted
func (r *Renderer) DroppedFrames() int {
	return r.droppedFrames
}

// LastFenceValue is the fence value signaled by the most recent frame
func (r *Renderer) LastFenceValue() uint64 {
	return r.lastFenceValue
}

// CurrentFrameIndex is the frame slot the next frame records into
func (r *Renderer) CurrentFrameIndex() int {
	if r.pool == nil {
		return 0
	}
	return r.pool.CurrentFrameIndex()
}

// DeviceLost reports whether the device was lost. Once set, it stays set until Shutdown and
// Initialize.
func (r *Renderer) DeviceLost() bool {
	return r.deviceLost
}

// FrameOpen reports whether BeginFrame has been called without a matching EndFrame
func (r *Renderer) FrameOpen() bool {
	return r.frameOpen
}

// RenderTargetSlots returns the render target descriptor slot of each presentable image
func (r *Renderer) RenderTargetSlots() [swapchain.ImageCount]descriptor.Slot {
	return r.rtvSlots
}

func (r *Renderer) Device() gpu.Device {
	return r.device
}

func (r *Renderer) Queue() *queue.CommandQueue {
	return r.queue
}

func (r *Renderer) Pool() *cmdpool.Pool {
	return r.pool
}

func (r *Renderer) Surface() *swapchain.Surface {
	return r.surface
}

func (r *Renderer) Descriptors() *descriptor.Registry {
	return r.descriptors
}

// FrameTimes summarizes CPU frame times. It is only populated when LogFrameTime is set.
func (r *Renderer) FrameTimes() frameutils.FrameStatistics {
	return r.frameTimes
}

func (r *Renderer) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("State").String(r.state.String())
	obj.Name("Width").Int(r.width)
	obj.Name("Height").Int(r.height)
	obj.Name("Frames").Int(int(r.frameCount))
	obj.Name("DroppedFrames").Int(r.droppedFrames)
	obj.Name("LastFenceValue").Int(int(r.lastFenceValue))
	obj.Name("DeviceLost").Bool(r.deviceLost)

	if r.frameTimes.FrameCount > 0 {
		frameTimes := obj.Name("FrameTimes").Object()
		frameTimes.Name("Count").Int(r.frameTimes.FrameCount)
		frameTimes.Name("AverageNanos").Int(int(r.frameTimes.AverageNanos()))
		frameTimes.Name("MinNanos").Int(int(r.frameTimes.MinNanos))
		frameTimes.Name("MaxNanos").Int(int(r.frameTimes.MaxNanos))
		frameTimes.Name("FPS").Float64(r.frameTimes.FramesPerSecond())
		frameTimes.End()
	}

	if r.pool != nil {
		r.pool.BuildStatsString(obj.Name("CommandPool"))
	}
	if r.descriptors != nil {
		r.descriptors.BuildStatsString(obj.Name("Descriptors"))
	}
}
