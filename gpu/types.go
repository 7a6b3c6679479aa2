package gpu

import (
	"fmt"
)

// QueueKind is the class of work a queue, allocator or command list accepts
type QueueKind int

const (
	QueueDirect QueueKind = iota
	QueueCompute
	QueueCopy
)

var queueKindNames = map[QueueKind]string{
	QueueDirect:  "Direct",
	QueueCompute: "Compute",
	QueueCopy:    "Copy",
}

func (k QueueKind) String() string {
	name, ok := queueKindNames[k]
	if !ok {
		return fmt.Sprintf("QueueKind(%d)", int(k))
	}
	return name
}

// DescriptorKind is the type of descriptor a descriptor table holds
type DescriptorKind int

const (
	DescriptorRenderTarget DescriptorKind = iota
	DescriptorDepthStencil
	DescriptorShaderResource
	DescriptorSampler

	// DescriptorKindCount is the number of descriptor kinds
	DescriptorKindCount = 4
)

var descriptorKindNames = map[DescriptorKind]string{
	DescriptorRenderTarget:   "RTV",
	DescriptorDepthStencil:   "DSV",
	DescriptorShaderResource: "CBV_SRV_UAV",
	DescriptorSampler:        "Sampler",
}

func (k DescriptorKind) String() string {
	name, ok := descriptorKindNames[k]
	if !ok {
		return fmt.Sprintf("DescriptorKind(%d)", int(k))
	}
	return name
}

// ShaderVisibleAllowed returns false for the kinds that can only live in CPU-visible tables
func (k DescriptorKind) ShaderVisibleAllowed() bool {
	return k == DescriptorShaderResource || k == DescriptorSampler
}

// Format is a pixel format
type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16Float
	FormatD32Float
)

var formatNames = map[Format]string{
	FormatUnknown:           "Unknown",
	FormatR8G8B8A8Unorm:     "R8G8B8A8_UNORM",
	FormatR16G16B16A16Float: "R16G16B16A16_FLOAT",
	FormatD32Float:          "D32_FLOAT",
}

func (f Format) String() string {
	name, ok := formatNames[f]
	if !ok {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return name
}

// ResourceState is the usage state an image must be transitioned into before it is used that way
type ResourceState int

const (
	StatePresent ResourceState = iota
	StateRenderTarget
)

var resourceStateNames = map[ResourceState]string{
	StatePresent:      "Present",
	StateRenderTarget: "RenderTarget",
}

func (s ResourceState) String() string {
	name, ok := resourceStateNames[s]
	if !ok {
		return fmt.Sprintf("ResourceState(%d)", int(s))
	}
	return name
}

// CPUHandle addresses a descriptor for CPU-side writes
type CPUHandle uint64

// GPUHandle addresses a descriptor for shader access. It is zero for tables that are not shader visible.
type GPUHandle uint64

// SurfaceTarget is the opaque platform handle of the window a swapchain presents to
type SurfaceTarget uintptr

// Color is an RGBA color with components in the 0..1 range
type Color [4]float32

// Viewport is the rasterization viewport
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect is a pixel rectangle, right and bottom exclusive
type Rect struct {
	Left, Top     int
	Right, Bottom int
}

// FullViewport returns the viewport covering an entire width x height target
func FullViewport(width, height int) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
}

// FullRect returns the scissor rectangle covering an entire width x height target
func FullRect(width, height int) Rect {
	return Rect{Right: width, Bottom: height}
}

// SwapchainDesc describes the buffers of a Swapchain
type SwapchainDesc struct {
	Width       int
	Height      int
	Format      Format
	BufferCount int
	Flags       SwapchainFlags
}
