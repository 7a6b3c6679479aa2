package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/gpu"
)

// ObjectKind names a kind of object the device creates, for fault injection and leak accounting
type ObjectKind int

const (
	ObjectDevice ObjectKind = iota
	ObjectQueue
	ObjectFence
	ObjectCommandAllocator
	ObjectCommandList
	ObjectDescriptorTable
	ObjectSwapchain
	ObjectRenderTargetView
	ObjectFullscreenToggle
	objectKindCount
)

var objectKindNames = [objectKindCount]string{
	"Device",
	"Queue",
	"Fence",
	"CommandAllocator",
	"CommandList",
	"DescriptorTable",
	"Swapchain",
	"RenderTargetView",
	"FullscreenToggle",
}

func (k ObjectKind) String() string {
	if k < 0 || k >= objectKindCount {
		return "Unknown"
	}
	return objectKindNames[k]
}

type faults struct {
	create          [objectKindCount]common.VkResult
	listResets      int
	allocatorResets int
	signal          common.VkResult
	present         common.VkResult
}

func (f *faults) takeCreate(kind ObjectKind) (common.VkResult, error) {
	res := f.create[kind]
	if res == core1_0.VKSuccess {
		return core1_0.VKSuccess, nil
	}
	f.create[kind] = core1_0.VKSuccess
	return res, errors.Wrapf(res.ToError(), "injected %s failure", kind)
}

func (f *faults) takeSignal() (common.VkResult, error) {
	res := f.signal
	if res == core1_0.VKSuccess {
		return core1_0.VKSuccess, nil
	}
	f.signal = core1_0.VKSuccess
	return res, errors.Wrap(res.ToError(), "injected signal failure")
}

func (f *faults) takePresent() (common.VkResult, error) {
	res := f.present
	if res == core1_0.VKSuccess {
		return core1_0.VKSuccess, nil
	}
	f.present = core1_0.VKSuccess
	return res, errors.Wrap(res.ToError(), "injected present failure")
}

type counters struct {
	allocatorResets int
	listResets      int
	submissions     int
	executedLists   int
	presents        int
	lastInterval    int
	lastFlags       gpu.PresentFlags
}

// FailNextCreate makes the next creation of kind fail with res
func (d *Device) FailNextCreate(kind ObjectKind, res common.VkResult) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults.create[kind] = res
}

// FailListResets makes the next count command list resets fail
func (d *Device) FailListResets(count int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults.listResets = count
}

// FailAllocatorResets makes the next count command allocator resets fail
func (d *Device) FailAllocatorResets(count int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults.allocatorResets = count
}

// FailNextSignal makes the next queue signal fail with res without enqueuing it
func (d *Device) FailNextSignal(res common.VkResult) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults.signal = res
}

// FailNextPresent makes the next present on any swapchain fail with res
func (d *Device) FailNextPresent(res common.VkResult) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults.present = res
}

// ValidationErrors returns every validation error recorded so far
func (d *Device) ValidationErrors() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return append([]string(nil), d.errors...)
}

// LiveObjects returns the number of objects of kind created and not yet destroyed
func (d *Device) LiveObjects(kind ObjectKind) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.live[kind]
}

// AllocatorResets returns the number of successful command allocator resets
func (d *Device) AllocatorResets() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.counters.allocatorResets
}

// ListResets returns the number of successful command list resets
func (d *Device) ListResets() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.counters.listResets
}

// ExecutedLists returns the number of command lists the queues have finished executing
func (d *Device) ExecutedLists() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.counters.executedLists
}

// Presents returns the number of presents executed, together with the sync interval and flags of the
// most recent one
func (d *Device) Presents() (count int, lastInterval int, lastFlags gpu.PresentFlags) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.counters.presents, d.counters.lastInterval, d.counters.lastFlags
}

// FullscreenToggleDisabled reports whether DisableFullscreenToggle succeeded for target
func (d *Device) FullscreenToggleDisabled(target gpu.SurfaceTarget) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	disabled, _ := d.toggles.Get(target)
	return disabled
}

// ViewImageID returns the id of the image the render target view at handle was created from
func (d *Device) ViewImageID(handle gpu.CPUHandle) (uint64, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	res, ok := d.views.Get(handle)
	if !ok {
		return 0, false
	}
	return res.id, true
}
