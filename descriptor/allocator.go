// Package descriptor hands out slots in fixed-capacity descriptor tables, one table per descriptor kind.
package descriptor

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

// InvalidIndex is the index of InvalidSlot
const InvalidIndex uint32 = math.MaxUint32

// Slot is one descriptor in a table, addressed both by index and by handle
type Slot struct {
	Index uint32
	CPU   gpu.CPUHandle
	// GPU is zero for tables that are not shader visible
	GPU gpu.GPUHandle
}

// InvalidSlot is returned when an allocation cannot be satisfied
var InvalidSlot = Slot{Index: InvalidIndex}

// Valid reports whether the slot was produced by a successful allocation
func (s Slot) Valid() bool {
	return s.Index != InvalidIndex
}

// Allocator manages the slots of a single descriptor table. Freed slots are reused in the order they
// were freed. The table never grows. Allocator is used from the render goroutine only.
type Allocator struct {
	logger *slog.Logger

	kind          gpu.DescriptorKind
	table         gpu.DescriptorTable
	capacity      int
	increment     uint64
	shaderVisible bool
	cpuStart      gpu.CPUHandle
	gpuStart      gpu.GPUHandle

	free      []uint32
	allocated []bool

	peakAllocations int
	failedRequests  int
}

var _ frameutils.Validatable = &Allocator{}

// NewAllocator creates an uninitialized Allocator
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{
		logger: logging.For(logger, logging.CategoryResource),
	}
}

// Initialize creates a table of capacity descriptors of kind. Render target and depth stencil tables
// cannot be shader visible: requesting it logs a warning and creates a CPU-only table.
func (a *Allocator) Initialize(device gpu.Device, kind gpu.DescriptorKind, capacity int, shaderVisible bool) error {
	a.logger.Debug("Allocator::Initialize")

	if a.table != nil {
		a.logger.Warn("Descriptor allocator is already initialized", slog.String("kind", kind.String()))
		return nil
	}
	if device == nil {
		return frameutils.Newf(frameutils.ErrInit, "cannot initialize %s descriptor allocator without a device", kind)
	}
	if capacity <= 0 || uint64(capacity) >= uint64(InvalidIndex) {
		return frameutils.Newf(frameutils.ErrInit, "invalid %s descriptor capacity %d", kind, capacity)
	}

	if shaderVisible && !kind.ShaderVisibleAllowed() {
		a.logger.Warn("Descriptor tables of this kind cannot be shader visible, creating a CPU-only table", slog.String("kind", kind.String()))
		shaderVisible = false
	}

	table, res, err := device.CreateDescriptorTable(kind, capacity, shaderVisible)
	if err != nil {
		a.logger.Error("Failed to create descriptor table", slog.String("kind", kind.String()), slog.String("result", res.String()))
		return frameutils.Wrap(err, frameutils.ErrInit, "failed to create %s descriptor table with capacity %d", kind, capacity)
	}

	a.kind = kind
	a.table = table
	a.capacity = capacity
	a.increment = device.DescriptorIncrement(kind)
	a.shaderVisible = shaderVisible
	a.cpuStart = table.CPUStart()
	a.gpuStart = table.GPUStart()
	a.peakAllocations = 0
	a.failedRequests = 0

	a.free = make([]uint32, capacity)
	a.allocated = make([]bool, capacity)
	for i := range a.free {
		a.free[i] = uint32(i)
	}

	a.logger.Info("Descriptor allocator initialized",
		slog.String("kind", kind.String()),
		slog.Int("capacity", capacity),
		slog.Bool("shaderVisible", shaderVisible))
	return nil
}

// TryAllocate takes the oldest free slot. An exhausted table returns InvalidSlot with an ErrCapacity
// error.
func (a *Allocator) TryAllocate() (Slot, error) {
	if a.table == nil {
		return InvalidSlot, frameutils.Newf(frameutils.ErrNotInitialized, "allocate from an uninitialized descriptor allocator")
	}
	if len(a.free) == 0 {
		a.failedRequests++
		return InvalidSlot, frameutils.Newf(frameutils.ErrCapacity, "%s descriptor table is full (capacity %d)", a.kind, a.capacity)
	}

	index := a.free[0]
	a.free = a.free[1:]
	a.allocated[index] = true

	if count := a.AllocatedCount(); count > a.peakAllocations {
		a.peakAllocations = count
	}

	frameutils.DebugValidate(a)
	return a.slot(index), nil
}

// Allocate takes the oldest free slot. An exhausted table logs an error and returns InvalidSlot.
func (a *Allocator) Allocate() Slot {
	slot, err := a.TryAllocate()
	if err != nil {
		a.logger.Error("Descriptor allocation failed", slog.String("kind", a.kind.String()), slog.Any("error", err))
	}
	return slot
}

// Free returns slot to the table. Invalid, out of range or already free slots are ignored with a warning.
func (a *Allocator) Free(slot Slot) {
	if a.table == nil {
		a.logger.Warn("Free on an uninitialized descriptor allocator")
		return
	}
	if !slot.Valid() {
		a.logger.Warn("Free of the invalid descriptor slot", slog.String("kind", a.kind.String()))
		return
	}
	if int(slot.Index) >= a.capacity {
		a.logger.Warn("Free of an out of range descriptor slot",
			slog.String("kind", a.kind.String()),
			slog.Int("index", int(slot.Index)),
			slog.Int("capacity", a.capacity))
		return
	}
	if !a.allocated[slot.Index] {
		a.logger.Warn("Descriptor slot freed twice", slog.String("kind", a.kind.String()), slog.Int("index", int(slot.Index)))
		return
	}

	a.allocated[slot.Index] = false
	a.free = append(a.free, slot.Index)

	frameutils.DebugValidate(a)
}

func (a *Allocator) slot(index uint32) Slot {
	return Slot{
		Index: index,
		CPU:   a.CPUHandle(index),
		GPU:   a.GPUHandle(index),
	}
}

// CPUHandle returns the handle of slot index: the table's start plus index times the kind's increment
func (a *Allocator) CPUHandle(index uint32) gpu.CPUHandle {
	return a.cpuStart + gpu.CPUHandle(uint64(index)*a.increment)
}

// GPUHandle returns the shader-visible handle of slot index, or zero for CPU-only tables
func (a *Allocator) GPUHandle(index uint32) gpu.GPUHandle {
	if !a.shaderVisible {
		return 0
	}
	return a.gpuStart + gpu.GPUHandle(uint64(index)*a.increment)
}

func (a *Allocator) Kind() gpu.DescriptorKind {
	return a.kind
}

func (a *Allocator) Capacity() int {
	return a.capacity
}

func (a *Allocator) ShaderVisible() bool {
	return a.shaderVisible
}

func (a *Allocator) Increment() uint64 {
	return a.increment
}

func (a *Allocator) AllocatedCount() int {
	return a.capacity - len(a.free)
}

func (a *Allocator) FreeCount() int {
	return len(a.free)
}

// IsAllocated reports whether slot index is currently handed out
func (a *Allocator) IsAllocated(index uint32) bool {
	if int(index) >= len(a.allocated) {
		return false
	}
	return a.allocated[index]
}

// Validate checks that the free list and the allocated set are disjoint and together cover every slot
func (a *Allocator) Validate() error {
	if len(a.allocated) != a.capacity {
		return frameutils.Newf(frameutils.ErrValidation, "allocator tracks %d slots but has capacity %d", len(a.allocated), a.capacity)
	}

	seen := make([]bool, a.capacity)
	for _, index := range a.free {
		if int(index) >= a.capacity {
			return frameutils.Newf(frameutils.ErrValidation, "free list holds out of range index %d", index)
		}
		if seen[index] {
			return frameutils.Newf(frameutils.ErrValidation, "free list holds index %d twice", index)
		}
		if a.allocated[index] {
			return frameutils.Newf(frameutils.ErrValidation, "index %d is both free and allocated", index)
		}
		seen[index] = true
	}

	for index, allocated := range a.allocated {
		if !allocated && !seen[index] {
			return frameutils.Newf(frameutils.ErrValidation, "index %d is neither free nor allocated", index)
		}
	}

	return nil
}

func (a *Allocator) Statistics() frameutils.Statistics {
	return frameutils.Statistics{
		Capacity:        a.capacity,
		AllocationCount: a.AllocatedCount(),
		FreeCount:       a.FreeCount(),
		PeakAllocations: a.peakAllocations,
		FailedRequests:  a.failedRequests,
	}
}

func (a *Allocator) BuildStatsString(writer *jwriter.Writer) {
	stats := a.Statistics()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Kind").String(a.kind.String())
	obj.Name("ShaderVisible").Bool(a.shaderVisible)
	obj.Name("Capacity").Int(stats.Capacity)
	obj.Name("Allocated").Int(stats.AllocationCount)
	obj.Name("Free").Int(stats.FreeCount)
	obj.Name("Peak").Int(stats.PeakAllocations)
	obj.Name("Failed").Int(stats.FailedRequests)
}

// Destroy releases the table. Slots still allocated are reported as leaks.
func (a *Allocator) Destroy() {
	a.logger.Debug("Allocator::Destroy")

	if a.table == nil {
		return
	}

	if leaked := a.AllocatedCount(); leaked > 0 {
		a.logger.Warn("Descriptor allocator destroyed with slots still allocated",
			slog.String("kind", a.kind.String()),
			slog.Int("leaked", leaked))
	}

	a.table.Destroy()
	a.table = nil
	a.free = nil
	a.allocated = nil
	a.capacity = 0
}
