package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/gpu"
	"golang.org/x/exp/slog"
)

// CommandAllocator is a software gpu.CommandAllocator
type CommandAllocator struct {
	device    *Device
	kind      gpu.QueueKind
	pending   int
	destroyed bool
}

var _ gpu.CommandAllocator = &CommandAllocator{}

func (a *CommandAllocator) Kind() gpu.QueueKind {
	return a.kind
}

// Reset fails with a validation error while any list recorded into this allocator is still executing
func (a *CommandAllocator) Reset() (common.VkResult, error) {
	a.device.mutex.Lock()
	defer a.device.mutex.Unlock()

	if a.device.faults.allocatorResets > 0 {
		a.device.faults.allocatorResets--
		return core1_0.VKErrorOutOfDeviceMemory, errors.Wrap(core1_0.VKErrorOutOfDeviceMemory.ToError(), "injected allocator reset failure")
	}

	if a.pending > 0 {
		a.device.validationErrorLocked("command allocator reset while %d submitted lists are still executing", a.pending)
		return core1_0.VKErrorUnknown, errors.Newf("command allocator has %d lists in flight", a.pending)
	}

	a.device.counters.allocatorResets++
	return core1_0.VKSuccess, nil
}

func (a *CommandAllocator) Destroy() {
	a.device.mutex.Lock()
	defer a.device.mutex.Unlock()

	if a.destroyed {
		return
	}
	if a.pending > 0 {
		a.device.validationErrorLocked("command allocator destroyed while %d submitted lists are still executing", a.pending)
	}
	a.destroyed = true
	a.device.live[ObjectCommandAllocator]--
}

type commandKind int

const (
	commandBarrier commandKind = iota
	commandViewport
	commandScissor
	commandSetRenderTarget
	commandClear
)

type command struct {
	kind     commandKind
	resource *resource
	before   gpu.ResourceState
	after    gpu.ResourceState
	handle   gpu.CPUHandle
	color    gpu.Color
	viewport gpu.Viewport
	rect     gpu.Rect
}

// CommandList is a software gpu.CommandList. Recorded commands are replayed by the queue goroutine.
type CommandList struct {
	device    *Device
	id        uint64
	kind      gpu.QueueKind
	allocator *CommandAllocator
	pipeline  gpu.PipelineState
	recording bool
	destroyed bool
	commands  []command
}

var _ gpu.CommandList = &CommandList{}

// ID is the device-unique id of this list
func (l *CommandList) ID() uint64 {
	return l.id
}

func (l *CommandList) Kind() gpu.QueueKind {
	return l.kind
}

// Recording reports whether the list is open for recording
func (l *CommandList) Recording() bool {
	l.device.mutex.Lock()
	defer l.device.mutex.Unlock()

	return l.recording
}

func (l *CommandList) Reset(allocator gpu.CommandAllocator, initial gpu.PipelineState) (common.VkResult, error) {
	l.device.mutex.Lock()
	defer l.device.mutex.Unlock()

	if l.device.faults.listResets > 0 {
		l.device.faults.listResets--
		return core1_0.VKErrorOutOfDeviceMemory, errors.Wrap(core1_0.VKErrorOutOfDeviceMemory.ToError(), "injected command list reset failure")
	}

	softAllocator, ok := allocator.(*CommandAllocator)
	if !ok || softAllocator == nil {
		return core1_0.VKErrorUnknown, errors.New("command list reset requires a software command allocator")
	}
	if l.recording {
		l.device.validationErrorLocked("command list %d reset while still recording", l.id)
		return core1_0.VKErrorUnknown, errors.Newf("command list %d is still recording", l.id)
	}
	if softAllocator.kind != l.kind {
		l.device.validationErrorLocked("command list %d of kind %s reset against %s allocator", l.id, l.kind, softAllocator.kind)
		return core1_0.VKErrorUnknown, errors.Newf("allocator kind %s does not match list kind %s", softAllocator.kind, l.kind)
	}

	l.allocator = softAllocator
	l.pipeline = initial
	l.recording = true
	l.commands = l.commands[:0]
	l.device.counters.listResets++
	return core1_0.VKSuccess, nil
}

func (l *CommandList) Close() (common.VkResult, error) {
	l.device.mutex.Lock()
	defer l.device.mutex.Unlock()

	if !l.recording {
		l.device.validationErrorLocked("command list %d closed while not recording", l.id)
		return core1_0.VKErrorUnknown, errors.Newf("command list %d is not recording", l.id)
	}
	l.recording = false
	return core1_0.VKSuccess, nil
}

func (l *CommandList) record(cmd command) {
	l.device.mutex.Lock()
	defer l.device.mutex.Unlock()

	if !l.recording {
		l.device.validationErrorLocked("command recorded into closed command list %d", l.id)
		return
	}
	l.commands = append(l.commands, cmd)
}

func (l *CommandList) ResourceBarrier(image gpu.Image, before, after gpu.ResourceState) {
	softImage, ok := image.(*Image)
	if !ok || softImage == nil {
		l.device.mutex.Lock()
		l.device.validationErrorLocked("resource barrier recorded for an image not created by this device")
		l.device.mutex.Unlock()
		return
	}
	l.record(command{kind: commandBarrier, resource: softImage.res, before: before, after: after})
}

func (l *CommandList) SetViewport(viewport gpu.Viewport) {
	l.record(command{kind: commandViewport, viewport: viewport})
}

func (l *CommandList) SetScissor(rect gpu.Rect) {
	l.record(command{kind: commandScissor, rect: rect})
}

func (l *CommandList) SetRenderTarget(handle gpu.CPUHandle) {
	l.record(command{kind: commandSetRenderTarget, handle: handle})
}

func (l *CommandList) ClearRenderTarget(handle gpu.CPUHandle, color gpu.Color) {
	l.record(command{kind: commandClear, handle: handle, color: color})
}

func (l *CommandList) Destroy() {
	l.device.mutex.Lock()
	defer l.device.mutex.Unlock()

	if l.destroyed {
		return
	}
	l.destroyed = true
	l.device.live[ObjectCommandList]--
}

func (d *Device) executeLocked(sub submission) {
	for _, cmd := range sub.commands {
		switch cmd.kind {
		case commandBarrier:
			if cmd.resource.state != cmd.before {
				d.validationErrorLocked("barrier on image %d expected state %s but image is in %s",
					cmd.resource.id, cmd.before, cmd.resource.state)
			}
			cmd.resource.state = cmd.after
		case commandSetRenderTarget:
			if _, ok := d.views.Get(cmd.handle); !ok {
				d.validationErrorLocked("render target %#x bound without a view", uint64(cmd.handle))
			}
		case commandClear:
			target, ok := d.views.Get(cmd.handle)
			if !ok {
				d.validationErrorLocked("clear of render target %#x without a view", uint64(cmd.handle))
				continue
			}
			if target.state != gpu.StateRenderTarget {
				d.validationErrorLocked("clear of image %d in state %s", target.id, target.state)
			}
			target.clearColor = cmd.color
			target.clears++
		}
	}

	if d.debugLayer {
		d.logger.Debug("Command list executed", slog.Uint64("list", sub.list.id), slog.Int("commands", len(sub.commands)))
	}
}
