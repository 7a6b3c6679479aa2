package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/gpu"
	"golang.org/x/exp/slog"
)

type resource struct {
	id         uint64
	width      int
	height     int
	format     gpu.Format
	state      gpu.ResourceState
	refs       int
	clearColor gpu.Color
	clears     int
}

// Image is a reference to one swapchain buffer
type Image struct {
	device   *Device
	res      *resource
	released bool
}

var _ gpu.Image = &Image{}

func (i *Image) ID() uint64 {
	return i.res.id
}

func (i *Image) Width() int {
	return i.res.width
}

func (i *Image) Height() int {
	return i.res.height
}

func (i *Image) Format() gpu.Format {
	return i.res.format
}

// State returns the state the image was left in by the last executed barrier
func (i *Image) State() gpu.ResourceState {
	i.device.mutex.Lock()
	defer i.device.mutex.Unlock()

	return i.res.state
}

// LastClear returns the color of the most recent executed clear and the number of clears executed
func (i *Image) LastClear() (gpu.Color, int) {
	i.device.mutex.Lock()
	defer i.device.mutex.Unlock()

	return i.res.clearColor, i.res.clears
}

func (i *Image) Release() {
	i.device.mutex.Lock()
	defer i.device.mutex.Unlock()

	if i.released {
		return
	}
	i.released = true
	i.res.refs--
}

// Swapchain is a software gpu.Swapchain. Presents are executed on the queue it was created with.
type Swapchain struct {
	device    *Device
	queue     *Queue
	target    gpu.SurfaceTarget
	desc      gpu.SwapchainDesc
	buffers   []*resource
	current   int
	destroyed bool
}

var _ gpu.Swapchain = &Swapchain{}

func (s *Swapchain) Desc() gpu.SwapchainDesc {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	return s.desc
}

func (s *Swapchain) Image(index int) (gpu.Image, common.VkResult, error) {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	if index < 0 || index >= len(s.buffers) {
		return nil, core1_0.VKErrorUnknown, errors.Newf("swapchain buffer index %d out of range [0, %d)", index, len(s.buffers))
	}

	buffer := s.buffers[index]
	buffer.refs++
	return &Image{device: s.device, res: buffer}, core1_0.VKSuccess, nil
}

func (s *Swapchain) CurrentImageIndex() int {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	return s.current
}

// OutstandingReferences returns the number of image references not yet released
func (s *Swapchain) OutstandingReferences() int {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	refs := 0
	for _, buffer := range s.buffers {
		refs += buffer.refs
	}
	return refs
}

func (s *Swapchain) Present(syncInterval int, flags gpu.PresentFlags) (common.VkResult, error) {
	s.device.mutex.Lock()

	res, err := s.device.faults.takePresent()
	if err != nil {
		s.device.mutex.Unlock()
		return res, err
	}

	if flags&gpu.PresentAllowTearing != 0 && (syncInterval != 0 || s.desc.Flags&gpu.SwapchainAllowTearing == 0) {
		s.device.validationErrorLocked("tearing present requested with sync interval %d on swapchain with flags %s", syncInterval, s.desc.Flags)
		s.device.mutex.Unlock()
		return core1_0.VKErrorUnknown, errors.New("tearing present is not allowed here")
	}

	op := &presentOp{
		swapchain: s,
		buffer:    s.buffers[s.current],
		interval:  syncInterval,
		flags:     flags,
	}
	s.current = (s.current + 1) % len(s.buffers)
	s.device.mutex.Unlock()

	if !s.queue.enqueue(queueOp{present: op}) {
		return core1_0.VKErrorDeviceLost, errors.New("present queue has been destroyed")
	}
	return core1_0.VKSuccess, nil
}

func (d *Device) presentLocked(op *presentOp) {
	if op.buffer.state != gpu.StatePresent {
		d.validationErrorLocked("image %d presented in state %s", op.buffer.id, op.buffer.state)
	}
	d.counters.presents++
	d.counters.lastInterval = op.interval
	d.counters.lastFlags = op.flags
}

// ResizeBuffers replaces every buffer. It fails while any image reference is outstanding or while the
// presenting queue still has work in flight.
func (s *Swapchain) ResizeBuffers(count, width, height int, format gpu.Format, flags gpu.SwapchainFlags) (common.VkResult, error) {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	for _, buffer := range s.buffers {
		if buffer.refs > 0 {
			s.device.validationErrorLocked("swapchain resized while image %d has %d outstanding references", buffer.id, buffer.refs)
			return core1_0.VKErrorUnknown, errors.Newf("image %d still referenced", buffer.id)
		}
	}
	if s.queue.Busy() {
		s.device.validationErrorLocked("swapchain resized while its queue has work in flight")
		return core1_0.VKErrorUnknown, errors.New("queue is busy")
	}
	if width <= 0 || height <= 0 || count < 2 || count > 16 {
		return core1_0.VKErrorUnknown, errors.Newf("invalid swapchain size %dx%d with %d buffers", width, height, count)
	}
	if flags != s.desc.Flags {
		s.device.validationErrorLocked("swapchain flags changed on resize from %s to %s", s.desc.Flags, flags)
	}

	s.desc = gpu.SwapchainDesc{
		Width:       width,
		Height:      height,
		Format:      format,
		BufferCount: count,
		Flags:       flags,
	}
	s.buffers = s.device.createBuffersLocked(s.desc)
	s.current = 0

	s.device.logger.Debug("Swapchain buffers resized", slog.Int("width", width), slog.Int("height", height))
	return core1_0.VKSuccess, nil
}

func (s *Swapchain) Destroy() {
	s.device.mutex.Lock()
	defer s.device.mutex.Unlock()

	if s.destroyed {
		return
	}
	for _, buffer := range s.buffers {
		if buffer.refs > 0 {
			s.device.validationErrorLocked("swapchain destroyed while image %d has %d outstanding references", buffer.id, buffer.refs)
		}
	}
	s.destroyed = true
	s.device.targets.Delete(s.target)
	s.device.live[ObjectSwapchain]--
}
