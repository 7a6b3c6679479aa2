// Package gpu defines the device capability contract the frame synchronization and resource pooling
// components are written against. Every platform call returns the platform's result code alongside an
// error, in the same manner as the vkngwrapper core.
package gpu

import (
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// Opener creates a Device. When debugValidation is set, the device enables its validation layer.
type Opener func(logger *slog.Logger, debugValidation bool) (Device, common.VkResult, error)

// Device creates every other object in this package
type Device interface {
	Description() string

	CreateQueue(kind QueueKind) (Queue, common.VkResult, error)
	CreateFence(initialValue uint64) (Fence, common.VkResult, error)
	CreateCommandAllocator(kind QueueKind) (CommandAllocator, common.VkResult, error)
	// CreateCommandList creates a list in the recording state, recording into allocator
	CreateCommandList(kind QueueKind, allocator CommandAllocator, initial PipelineState) (CommandList, common.VkResult, error)
	CreateDescriptorTable(kind DescriptorKind, capacity int, shaderVisible bool) (DescriptorTable, common.VkResult, error)
	// DescriptorIncrement is the stride between consecutive descriptors of kind
	DescriptorIncrement(kind DescriptorKind) uint64
	// CreateRenderTargetView writes a view of image into the render target descriptor at handle
	CreateRenderTargetView(image Image, handle CPUHandle) (common.VkResult, error)

	CreateSwapchain(queue Queue, target SurfaceTarget, desc SwapchainDesc) (Swapchain, common.VkResult, error)
	TearingSupported() bool
	// DisableFullscreenToggle suppresses the platform's built-in fullscreen key gesture for target
	DisableFullscreenToggle(target SurfaceTarget) (common.VkResult, error)

	Destroy()
}

// Queue executes command lists in submission order and signals fences on its timeline
type Queue interface {
	Kind() QueueKind
	Submit(lists ...CommandList)
	// Signal enqueues a fence signal that completes once all previously submitted work has executed
	Signal(fence Fence, value uint64) (common.VkResult, error)
	Destroy()
}

// Fence is a monotonically increasing 64-bit counter advanced by a queue
type Fence interface {
	CompletedValue() uint64
	// Notify returns a channel that is closed once CompletedValue reaches value
	Notify(value uint64) <-chan struct{}
	Destroy()
}

// CommandAllocator owns the memory command lists record into
type CommandAllocator interface {
	Kind() QueueKind
	// Reset reclaims the allocator's memory. It fails if any list recorded into it is still executing.
	Reset() (common.VkResult, error)
	Destroy()
}

// PipelineState is an opaque compiled pipeline a list starts recording with. It may be nil.
type PipelineState interface {
	PipelineName() string
}

// CommandList records work for a Queue
type CommandList interface {
	Kind() QueueKind
	Reset(allocator CommandAllocator, initial PipelineState) (common.VkResult, error)
	Close() (common.VkResult, error)
	// Recording reports whether the list is open, between a Reset and the following Close
	Recording() bool

	ResourceBarrier(image Image, before, after ResourceState)
	SetViewport(viewport Viewport)
	SetScissor(rect Rect)
	SetRenderTarget(handle CPUHandle)
	ClearRenderTarget(handle CPUHandle, color Color)

	Destroy()
}

// DescriptorTable is a fixed-capacity, contiguous table of descriptors of a single kind
type DescriptorTable interface {
	Kind() DescriptorKind
	CPUStart() CPUHandle
	// GPUStart is zero when the table is not shader visible
	GPUStart() GPUHandle
	Capacity() int
	ShaderVisible() bool
	Destroy()
}

// Swapchain is the ring of presentable images bound to a window
type Swapchain interface {
	Desc() SwapchainDesc
	// Image returns a new reference to buffer index. The reference must be released before ResizeBuffers.
	Image(index int) (Image, common.VkResult, error)
	CurrentImageIndex() int
	Present(syncInterval int, flags PresentFlags) (common.VkResult, error)
	ResizeBuffers(count, width, height int, format Format, flags SwapchainFlags) (common.VkResult, error)
	Destroy()
}

// Image is a reference to a presentable image
type Image interface {
	ID() uint64
	Width() int
	Height() int
	Format() Format
	Release()
}
