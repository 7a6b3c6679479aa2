package descriptor

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

// Capacities sets the size and visibility of each table in a Registry
type Capacities struct {
	RenderTarget   int
	DepthStencil   int
	ShaderResource int
	Sampler        int

	// ShaderResourceVisible and SamplerVisible make those tables shader visible
	ShaderResourceVisible bool
	SamplerVisible        bool
}

// DefaultCapacities returns the standard table sizes, with the shader resource and sampler tables
// shader visible
func DefaultCapacities() Capacities {
	return Capacities{
		RenderTarget:          256,
		DepthStencil:          256,
		ShaderResource:        4096,
		Sampler:               2048,
		ShaderResourceVisible: true,
		SamplerVisible:        true,
	}
}

func (c Capacities) capacity(kind gpu.DescriptorKind) (int, bool) {
	switch kind {
	case gpu.DescriptorRenderTarget:
		return c.RenderTarget, false
	case gpu.DescriptorDepthStencil:
		return c.DepthStencil, false
	case gpu.DescriptorShaderResource:
		return c.ShaderResource, c.ShaderResourceVisible
	default:
		return c.Sampler, c.SamplerVisible
	}
}

// Registry owns one Allocator per descriptor kind
type Registry struct {
	logger *slog.Logger

	allocators  [gpu.DescriptorKindCount]*Allocator
	initialized bool
}

// NewRegistry creates an uninitialized Registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logging.For(logger, logging.CategoryResource),
	}
}

// Initialize creates every table. If any table cannot be created, those already created are destroyed.
func (r *Registry) Initialize(device gpu.Device, capacities Capacities) error {
	r.logger.Debug("Registry::Initialize")

	if r.initialized {
		r.logger.Warn("Descriptor registry is already initialized")
		return nil
	}

	for kind := gpu.DescriptorKind(0); kind < gpu.DescriptorKindCount; kind++ {
		capacity, shaderVisible := capacities.capacity(kind)

		allocator := NewAllocator(r.logger)
		err := allocator.Initialize(device, kind, capacity, shaderVisible)
		if err != nil {
			r.destroyAllocators()
			return err
		}
		r.allocators[kind] = allocator
	}

	r.initialized = true
	r.logger.Info("Descriptor registry initialized")
	return nil
}

// Allocator returns the allocator for kind, or nil before Initialize
func (r *Registry) Allocator(kind gpu.DescriptorKind) *Allocator {
	if kind < 0 || kind >= gpu.DescriptorKindCount {
		return nil
	}
	return r.allocators[kind]
}

// Allocate takes a slot from the table of kind, returning InvalidSlot on failure
func (r *Registry) Allocate(kind gpu.DescriptorKind) Slot {
	allocator := r.Allocator(kind)
	if allocator == nil {
		r.logger.Error("Allocate from an uninitialized descriptor registry", slog.String("kind", kind.String()))
		return InvalidSlot
	}
	return allocator.Allocate()
}

// TryAllocate takes a slot from the table of kind
func (r *Registry) TryAllocate(kind gpu.DescriptorKind) (Slot, error) {
	allocator := r.Allocator(kind)
	if allocator == nil {
		return InvalidSlot, frameutils.Newf(frameutils.ErrNotInitialized, "allocate %s from an uninitialized descriptor registry", kind)
	}
	return allocator.TryAllocate()
}

// Free returns slot to the table of kind
func (r *Registry) Free(kind gpu.DescriptorKind, slot Slot) {
	allocator := r.Allocator(kind)
	if allocator == nil {
		r.logger.Warn("Free on an uninitialized descriptor registry", slog.String("kind", kind.String()))
		return
	}
	allocator.Free(slot)
}

func (r *Registry) AllocateRenderTarget() Slot {
	return r.Allocate(gpu.DescriptorRenderTarget)
}

func (r *Registry) AllocateDepthStencil() Slot {
	return r.Allocate(gpu.DescriptorDepthStencil)
}

func (r *Registry) AllocateShaderResource() Slot {
	return r.Allocate(gpu.DescriptorShaderResource)
}

func (r *Registry) AllocateSampler() Slot {
	return r.Allocate(gpu.DescriptorSampler)
}

func (r *Registry) FreeRenderTarget(slot Slot) {
	r.Free(gpu.DescriptorRenderTarget, slot)
}

func (r *Registry) FreeDepthStencil(slot Slot) {
	r.Free(gpu.DescriptorDepthStencil, slot)
}

func (r *Registry) FreeShaderResource(slot Slot) {
	r.Free(gpu.DescriptorShaderResource, slot)
}

func (r *Registry) FreeSampler(slot Slot) {
	r.Free(gpu.DescriptorSampler, slot)
}

// Statistics sums the statistics of every table
func (r *Registry) Statistics() frameutils.Statistics {
	var stats frameutils.Statistics
	for _, allocator := range r.allocators {
		if allocator == nil {
			continue
		}
		allocatorStats := allocator.Statistics()
		stats.AddStatistics(&allocatorStats)
	}
	return stats
}

func (r *Registry) BuildStatsString(writer *jwriter.Writer) {
	tables := writer.Object()
	defer tables.End()

	for _, allocator := range r.allocators {
		if allocator == nil {
			continue
		}
		allocator.BuildStatsString(tables.Name(allocator.Kind().String()))
	}
}

// Destroy releases every table, reporting leaked slots per table
func (r *Registry) Destroy() {
	r.logger.Debug("Registry::Destroy")

	if !r.initialized {
		return
	}
	r.destroyAllocators()
	r.initialized = false
}

func (r *Registry) destroyAllocators() {
	for kind := len(r.allocators) - 1; kind >= 0; kind-- {
		if r.allocators[kind] != nil {
			r.allocators[kind].Destroy()
			r.allocators[kind] = nil
		}
	}
}
