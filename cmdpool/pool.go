// Package cmdpool recycles command lists and rotates per-frame command allocators so the CPU can record
// frame N+1 while the GPU is still executing frame N.
package cmdpool

//go:generate mockgen -source pool.go -destination mocks/pool.go

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

const (
	// MaxFramesInFlight is the number of frames the CPU may record ahead of the GPU
	MaxFramesInFlight = 3
	// DefaultInitialListCount is the number of lists the renderer creates up front
	DefaultInitialListCount = 4
)

// FenceWaiter is the part of a command queue's timeline the pool needs to know when a frame slot's
// allocator has been retired. queue.CommandQueue satisfies it.
type FenceWaiter interface {
	CompletedValue() uint64
	Wait(value uint64) error
}

type frameSlot struct {
	allocator  gpu.CommandAllocator
	fenceValue uint64
}

// Statistics counts the pool's activity since it was initialized
type Statistics struct {
	ListCount     int
	Available     int
	Acquisitions  int
	Releases      int
	ResetFailures int
	FenceWaits    int
	ListsCreated  int
}

// Pool owns MaxFramesInFlight command allocators and a growable set of command lists. It is used from
// the render goroutine only.
type Pool struct {
	logger *slog.Logger

	device gpu.Device
	kind   gpu.QueueKind

	slots   [MaxFramesInFlight]frameSlot
	current int

	lists     []gpu.CommandList
	available []int
	isFree    []bool
	indices   *swiss.Map[gpu.CommandList, int]

	stats Statistics
}

// New creates an uninitialized Pool
func New(logger *slog.Logger) *Pool {
	return &Pool{
		logger: logging.For(logger, logging.CategoryResource),
	}
}

// Initialize creates one allocator per frame slot and initialListCount closed lists, all available.
// Passing 0 starts with an empty pool that grows on the first Acquire.
func (p *Pool) Initialize(device gpu.Device, kind gpu.QueueKind, initialListCount int) error {
	p.logger.Debug("Pool::Initialize")

	if p.device != nil {
		p.logger.Warn("Command pool is already initialized")
		return nil
	}
	if device == nil {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize command pool without a device")
	}
	if initialListCount < 0 {
		return frameutils.Newf(frameutils.ErrInit, "initial list count must not be negative, got %d", initialListCount)
	}

	p.device = device
	p.kind = kind
	p.current = 0
	p.indices = swiss.NewMap[gpu.CommandList, int](uint32(max(initialListCount, DefaultInitialListCount)))

	for i := range p.slots {
		allocator, res, err := device.CreateCommandAllocator(kind)
		if err != nil {
			p.logger.Error("Failed to create command allocator", slog.Int("slot", i), slog.String("result", res.String()))
			p.Destroy()
			return frameutils.Wrap(err, frameutils.ErrInit, "failed to create command allocator for frame slot %d", i)
		}
		p.slots[i] = frameSlot{allocator: allocator}
	}

	for i := 0; i < initialListCount; i++ {
		index, err := p.createList()
		if err != nil {
			p.Destroy()
			return frameutils.Wrap(err, frameutils.ErrInit, "failed to create initial command list %d", i)
		}
		p.pushAvailable(index)
	}

	p.logger.Info("Command pool initialized",
		slog.String("kind", kind.String()),
		slog.Int("frameSlots", MaxFramesInFlight),
		slog.Int("lists", initialListCount))
	return nil
}

func (p *Pool) createList() (int, error) {
	list, res, err := p.device.CreateCommandList(p.kind, p.slots[p.current].allocator, nil)
	if err != nil {
		p.logger.Error("Failed to create command list", slog.String("result", res.String()))
		return -1, err
	}

	_, err = list.Close()
	if err != nil {
		list.Destroy()
		return -1, err
	}

	index := len(p.lists)
	p.lists = append(p.lists, list)
	p.isFree = append(p.isFree, false)
	p.indices.Put(list, index)
	p.stats.ListsCreated++
	return index, nil
}

func (p *Pool) pushAvailable(index int) {
	p.available = append(p.available, index)
	p.isFree[index] = true
}

func (p *Pool) popAvailable() (int, bool) {
	if len(p.available) == 0 {
		return -1, false
	}

	index := p.available[0]
	p.available = p.available[1:]
	p.isFree[index] = false
	return index, true
}

// BeginFrame makes the current frame slot's allocator safe to record into. If the GPU has not yet
// retired the work last recorded with it, BeginFrame blocks on waiter first. The allocator is never
// reset when that wait fails.
func (p *Pool) BeginFrame(waiter FenceWaiter) error {
	if p.device == nil {
		return frameutils.Newf(frameutils.ErrNotInitialized, "BeginFrame on an uninitialized command pool")
	}

	slot := &p.slots[p.current]
	if waiter.CompletedValue() < slot.fenceValue {
		logging.Trace(p.logger, "Waiting for frame slot to retire", slog.Int("slot", p.current), slog.Uint64("value", slot.fenceValue))
		p.stats.FenceWaits++

		err := waiter.Wait(slot.fenceValue)
		if err != nil {
			return frameutils.Wrap(err, frameutils.ErrPool, "failed waiting for frame slot %d to retire at fence value %d", p.current, slot.fenceValue)
		}
	}

	res, err := slot.allocator.Reset()
	if err != nil {
		p.logger.Error("Failed to reset command allocator", slog.Int("slot", p.current), slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrPool, "failed to reset command allocator for frame slot %d", p.current)
	}

	return nil
}

// Acquire returns a list that is recording into the current frame slot's allocator, creating a new
// list if none are available. When the list cannot be reset it stays in the pool and an ErrPool error
// is returned; the caller should skip the frame.
func (p *Pool) Acquire(initial gpu.PipelineState) (gpu.CommandList, error) {
	if p.device == nil {
		return nil, frameutils.Newf(frameutils.ErrNotInitialized, "Acquire on an uninitialized command pool")
	}

	index, ok := p.popAvailable()
	if !ok {
		var err error
		index, err = p.createList()
		if err != nil {
			return nil, frameutils.Wrap(err, frameutils.ErrPool, "failed to grow command pool past %d lists", len(p.lists))
		}
		p.logger.Debug("Command pool grew", slog.Int("lists", len(p.lists)))
	}

	list := p.lists[index]
	res, err := list.Reset(p.slots[p.current].allocator, initial)
	if err != nil {
		p.stats.ResetFailures++
		p.pushAvailable(index)
		p.logger.Error("Failed to reset command list", slog.Int("index", index), slog.String("result", res.String()))
		return nil, frameutils.Wrap(err, frameutils.ErrPool, "failed to reset command list %d", index)
	}

	p.stats.Acquisitions++
	return list, nil
}

// Release returns list to the pool. Lists the pool does not own, or that are already available, are
// ignored with a warning. A list released while still recording is closed first.
func (p *Pool) Release(list gpu.CommandList) {
	if p.device == nil || list == nil {
		p.logger.Warn("Release of a command list the pool does not own")
		return
	}

	index, ok := p.indices.Get(list)
	if !ok {
		p.logger.Warn("Release of a command list the pool does not own")
		return
	}
	if p.isFree[index] {
		p.logger.Warn("Command list released twice", slog.Int("index", index))
		return
	}
	if list.Recording() {
		p.logger.Warn("Command list released while still recording", slog.Int("index", index))
		res, err := list.Close()
		if err != nil {
			p.logger.Error("Failed to close released command list", slog.Int("index", index), slog.String("result", res.String()))
		}
	}

	p.pushAvailable(index)
	p.stats.Releases++
}

// EndFrame records the fence value that retires the current frame slot and advances to the next slot
func (p *Pool) EndFrame(fenceValue uint64) {
	if p.device == nil {
		p.logger.Error("EndFrame on an uninitialized command pool")
		return
	}

	p.slots[p.current].fenceValue = fenceValue
	p.current = (p.current + 1) % MaxFramesInFlight
}

func (p *Pool) CurrentFrameIndex() int {
	return p.current
}

func (p *Pool) CurrentAllocator() gpu.CommandAllocator {
	return p.slots[p.current].allocator
}

// SlotFenceValue returns the fence value that retires frame slot index
func (p *Pool) SlotFenceValue(index int) uint64 {
	if index < 0 || index >= MaxFramesInFlight {
		return 0
	}
	return p.slots[index].fenceValue
}

// Size returns the total number of lists the pool owns
func (p *Pool) Size() int {
	return len(p.lists)
}

// AvailableCount returns the number of lists ready to be acquired
func (p *Pool) AvailableCount() int {
	return len(p.available)
}

func (p *Pool) Statistics() Statistics {
	stats := p.stats
	stats.ListCount = len(p.lists)
	stats.Available = len(p.available)
	return stats
}

func (p *Pool) BuildStatsString(writer *jwriter.Writer) {
	stats := p.Statistics()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Kind").String(p.kind.String())
	obj.Name("CurrentFrame").Int(p.current)
	obj.Name("Lists").Int(stats.ListCount)
	obj.Name("Available").Int(stats.Available)
	obj.Name("Acquisitions").Int(stats.Acquisitions)
	obj.Name("Releases").Int(stats.Releases)
	obj.Name("ResetFailures").Int(stats.ResetFailures)
	obj.Name("FenceWaits").Int(stats.FenceWaits)

	slots := obj.Name("Slots").Array()
	for i := range p.slots {
		slot := slots.Object()
		slot.Name("FenceValue").Int(int(p.slots[i].fenceValue))
		slot.End()
	}
	slots.End()
}

// Destroy releases every list and allocator. The GPU must be idle.
func (p *Pool) Destroy() {
	p.logger.Debug("Pool::Destroy")

	if p.device == nil {
		return
	}

	outstanding := len(p.lists) - len(p.available)
	if outstanding > 0 {
		p.logger.Warn("Command pool destroyed with lists still acquired", slog.Int("outstanding", outstanding))
	}

	for _, list := range p.lists {
		list.Destroy()
	}
	for i := range p.slots {
		if p.slots[i].allocator != nil {
			p.slots[i].allocator.Destroy()
		}
		p.slots[i] = frameSlot{}
	}

	p.lists = nil
	p.available = nil
	p.isFree = nil
	p.indices = nil
	p.device = nil
	p.current = 0
}
