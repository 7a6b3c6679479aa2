// Package soft implements the gpu contract in software. Submitted work runs on one goroutine per queue,
// so fences complete asynchronously just as they would on hardware. Misuse that a hardware debug layer
// would catch is recorded as a validation error, and failures can be injected for any platform call.
package soft

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/internal/utils"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

// DefaultDescriptorIncrements are the per-kind descriptor strides used when Options leaves them unset
var DefaultDescriptorIncrements = [gpu.DescriptorKindCount]uint64{32, 8, 32, 32}

const (
	handleRegionAlign = 0x10000
	gpuHandleOffset   = 0x1_0000_0000
)

// Options configures a software Device
type Options struct {
	Logger *slog.Logger
	// Description is reported by Device.Description
	Description string
	// TearingSupported is reported by Device.TearingSupported
	TearingSupported bool
	// ExecutionLatency is slept by the queue goroutine before executing each submission
	ExecutionLatency time.Duration
	// DescriptorIncrements overrides DefaultDescriptorIncrements for any non-zero entry
	DescriptorIncrements [gpu.DescriptorKindCount]uint64
}

// Device is a software gpu.Device
type Device struct {
	logger  *slog.Logger
	options Options

	mutex      utils.OptionalMutex
	debugLayer bool
	destroyed  bool

	increments     [gpu.DescriptorKindCount]uint64
	nextHandleBase uint64
	nextID         uint64

	tables  []*DescriptorTable
	views   *swiss.Map[gpu.CPUHandle, *resource]
	targets *swiss.Map[gpu.SurfaceTarget, *Swapchain]
	toggles *swiss.Map[gpu.SurfaceTarget, bool]
	queues  []*Queue

	faults   faults
	live     [objectKindCount]int
	counters counters
	errors   []string
}

var _ gpu.Device = &Device{}

// NewDevice creates a software device
func NewDevice(options Options) *Device {
	d := &Device{
		logger:         logging.For(options.Logger, logging.CategoryDevice),
		options:        options,
		mutex:          utils.OptionalMutex{UseMutex: true},
		nextHandleBase: handleRegionAlign,
		views:          swiss.NewMap[gpu.CPUHandle, *resource](42),
		targets:        swiss.NewMap[gpu.SurfaceTarget, *Swapchain](4),
		toggles:        swiss.NewMap[gpu.SurfaceTarget, bool](4),
	}

	for kind := range d.increments {
		d.increments[kind] = DefaultDescriptorIncrements[kind]
		if options.DescriptorIncrements[kind] != 0 {
			d.increments[kind] = options.DescriptorIncrements[kind]
		}
	}

	if d.options.Description == "" {
		d.options.Description = "frameline software device"
	}

	return d
}

// Opener returns a gpu.Opener that hands out this device. The opener fails if a failure was injected
// for ObjectDevice.
func (d *Device) Opener() gpu.Opener {
	return func(logger *slog.Logger, debugValidation bool) (gpu.Device, common.VkResult, error) {
		d.mutex.Lock()
		defer d.mutex.Unlock()

		res, err := d.faults.takeCreate(ObjectDevice)
		if err != nil {
			return nil, res, err
		}

		if logger != nil {
			d.logger = logging.For(logger, logging.CategoryDevice)
		}
		d.debugLayer = debugValidation
		d.destroyed = false
		d.live[ObjectDevice]++

		if debugValidation {
			d.logger.Info("Debug layer enabled")
		}
		d.logger.Info("Device created", slog.String("description", d.options.Description))
		return d, core1_0.VKSuccess, nil
	}
}

func (d *Device) Description() string {
	return d.options.Description
}

// DebugLayer reports whether the device was opened with validation enabled
func (d *Device) DebugLayer() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.debugLayer
}

func (d *Device) TearingSupported() bool {
	return d.options.TearingSupported
}

func (d *Device) DescriptorIncrement(kind gpu.DescriptorKind) uint64 {
	if kind < 0 || int(kind) >= len(d.increments) {
		return 0
	}
	return d.increments[kind]
}

func (d *Device) CreateQueue(kind gpu.QueueKind) (gpu.Queue, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectQueue)
	if err != nil {
		return nil, res, err
	}

	q := newQueue(d, kind)
	d.queues = append(d.queues, q)
	d.live[ObjectQueue]++
	return q, core1_0.VKSuccess, nil
}

func (d *Device) CreateFence(initialValue uint64) (gpu.Fence, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectFence)
	if err != nil {
		return nil, res, err
	}

	d.live[ObjectFence]++
	return &Fence{device: d, mutex: utils.OptionalRWMutex{UseMutex: true}, completed: initialValue}, core1_0.VKSuccess, nil
}

func (d *Device) CreateCommandAllocator(kind gpu.QueueKind) (gpu.CommandAllocator, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectCommandAllocator)
	if err != nil {
		return nil, res, err
	}

	d.live[ObjectCommandAllocator]++
	return &CommandAllocator{device: d, kind: kind}, core1_0.VKSuccess, nil
}

func (d *Device) CreateCommandList(kind gpu.QueueKind, allocator gpu.CommandAllocator, initial gpu.PipelineState) (gpu.CommandList, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectCommandList)
	if err != nil {
		return nil, res, err
	}

	softAllocator, ok := allocator.(*CommandAllocator)
	if !ok || softAllocator == nil {
		return nil, core1_0.VKErrorUnknown, errors.New("command list requires a software command allocator")
	}
	if softAllocator.kind != kind {
		d.validationErrorLocked("command list of kind %s created against allocator of kind %s", kind, softAllocator.kind)
		return nil, core1_0.VKErrorUnknown, errors.Newf("allocator kind %s does not match list kind %s", softAllocator.kind, kind)
	}

	d.nextID++
	list := &CommandList{
		device:    d,
		id:        d.nextID,
		kind:      kind,
		allocator: softAllocator,
		recording: true,
		pipeline:  initial,
	}
	d.live[ObjectCommandList]++
	return list, core1_0.VKSuccess, nil
}

func (d *Device) CreateDescriptorTable(kind gpu.DescriptorKind, capacity int, shaderVisible bool) (gpu.DescriptorTable, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectDescriptorTable)
	if err != nil {
		return nil, res, err
	}

	if capacity <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("descriptor table capacity must be positive, got %d", capacity)
	}
	if shaderVisible && !kind.ShaderVisibleAllowed() {
		d.validationErrorLocked("%s descriptor tables cannot be shader visible", kind)
		return nil, core1_0.VKErrorUnknown, errors.Newf("%s descriptor tables cannot be shader visible", kind)
	}

	increment := d.DescriptorIncrement(kind)
	table := &DescriptorTable{
		device:        d,
		kind:          kind,
		capacity:      capacity,
		shaderVisible: shaderVisible,
		increment:     increment,
		cpuStart:      gpu.CPUHandle(d.nextHandleBase),
	}
	if shaderVisible {
		table.gpuStart = gpu.GPUHandle(d.nextHandleBase + gpuHandleOffset)
	}

	size := uint64(capacity) * increment
	d.nextHandleBase += (size/handleRegionAlign + 1) * handleRegionAlign
	d.tables = append(d.tables, table)
	d.live[ObjectDescriptorTable]++

	return table, core1_0.VKSuccess, nil
}

func (d *Device) CreateRenderTargetView(image gpu.Image, handle gpu.CPUHandle) (common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectRenderTargetView)
	if err != nil {
		return res, err
	}

	softImage, ok := image.(*Image)
	if !ok || softImage == nil {
		return core1_0.VKErrorUnknown, errors.New("render target view requires a software image")
	}
	if softImage.released {
		d.validationErrorLocked("render target view created from released image %d", softImage.res.id)
		return core1_0.VKErrorUnknown, errors.Newf("image %d has been released", softImage.res.id)
	}

	table := d.tableForHandleLocked(handle)
	if table == nil || table.kind != gpu.DescriptorRenderTarget {
		d.validationErrorLocked("render target view written to handle %#x outside every render target table", uint64(handle))
		return core1_0.VKErrorUnknown, errors.Newf("handle %#x is not a render target descriptor", uint64(handle))
	}

	d.views.Put(handle, softImage.res)
	return core1_0.VKSuccess, nil
}

func (d *Device) CreateSwapchain(queue gpu.Queue, target gpu.SurfaceTarget, desc gpu.SwapchainDesc) (gpu.Swapchain, common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectSwapchain)
	if err != nil {
		return nil, res, err
	}

	softQueue, ok := queue.(*Queue)
	if !ok || softQueue == nil {
		return nil, core1_0.VKErrorUnknown, errors.New("swapchain requires a software queue")
	}
	if softQueue.kind != gpu.QueueDirect {
		return nil, core1_0.VKErrorUnknown, errors.Newf("swapchain requires a Direct queue, got %s", softQueue.kind)
	}
	if target == 0 {
		return nil, core1_0.VKErrorInitializationFailed, errors.New("swapchain requires a surface target")
	}
	if _, bound := d.targets.Get(target); bound {
		return nil, core1_0.VKErrorInitializationFailed, errors.Newf("surface target %#x already has a swapchain", uintptr(target))
	}
	if desc.Width <= 0 || desc.Height <= 0 || desc.BufferCount < 2 || desc.BufferCount > 16 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("invalid swapchain description %+v", desc)
	}
	if desc.Flags&gpu.SwapchainAllowTearing != 0 && !d.options.TearingSupported {
		d.validationErrorLocked("swapchain created with %s on a device without tearing support", gpu.SwapchainAllowTearing)
	}

	swapchain := &Swapchain{
		device: d,
		queue:  softQueue,
		target: target,
		desc:   desc,
	}
	swapchain.buffers = d.createBuffersLocked(desc)

	d.targets.Put(target, swapchain)
	d.live[ObjectSwapchain]++
	return swapchain, core1_0.VKSuccess, nil
}

func (d *Device) DisableFullscreenToggle(target gpu.SurfaceTarget) (common.VkResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, err := d.faults.takeCreate(ObjectFullscreenToggle)
	if err != nil {
		return res, err
	}

	d.toggles.Put(target, true)
	return core1_0.VKSuccess, nil
}

// Destroy stops every queue goroutine created from this device
func (d *Device) Destroy() {
	d.mutex.Lock()
	if d.destroyed {
		d.mutex.Unlock()
		return
	}
	d.destroyed = true
	d.live[ObjectDevice]--
	queues := d.queues
	d.queues = nil
	d.mutex.Unlock()

	for _, q := range queues {
		q.stop()
	}

	d.logger.Info("Device destroyed")
}

func (d *Device) createBuffersLocked(desc gpu.SwapchainDesc) []*resource {
	buffers := make([]*resource, desc.BufferCount)
	for i := range buffers {
		d.nextID++
		buffers[i] = &resource{
			id:     d.nextID,
			width:  desc.Width,
			height: desc.Height,
			format: desc.Format,
			state:  gpu.StatePresent,
		}
	}
	return buffers
}

func (d *Device) tableForHandleLocked(handle gpu.CPUHandle) *DescriptorTable {
	for _, table := range d.tables {
		if table.destroyed {
			continue
		}
		start := uint64(table.cpuStart)
		end := start + uint64(table.capacity)*table.increment
		if uint64(handle) >= start && uint64(handle) < end && (uint64(handle)-start)%table.increment == 0 {
			return table
		}
	}
	return nil
}

func (d *Device) validationErrorLocked(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	d.errors = append(d.errors, message)
	d.logger.Error("Validation error", slog.String("message", message))
}
