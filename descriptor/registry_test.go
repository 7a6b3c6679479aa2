package descriptor_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/frameline/descriptor"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/gpu/soft"
)

func TestRegistryDefaults(t *testing.T) {
	device := newDevice(t)
	registry := descriptor.NewRegistry(nil)
	require.NoError(t, registry.Initialize(device, descriptor.DefaultCapacities()))
	defer registry.Destroy()

	require.Equal(t, 256, registry.Allocator(gpu.DescriptorRenderTarget).Capacity())
	require.Equal(t, 256, registry.Allocator(gpu.DescriptorDepthStencil).Capacity())
	require.Equal(t, 4096, registry.Allocator(gpu.DescriptorShaderResource).Capacity())
	require.Equal(t, 2048, registry.Allocator(gpu.DescriptorSampler).Capacity())

	require.False(t, registry.Allocator(gpu.DescriptorRenderTarget).ShaderVisible())
	require.True(t, registry.Allocator(gpu.DescriptorShaderResource).ShaderVisible())
	require.Nil(t, registry.Allocator(gpu.DescriptorKindCount))
}

func TestRegistryTypedHelpers(t *testing.T) {
	device := newDevice(t)
	registry := descriptor.NewRegistry(nil)
	require.NoError(t, registry.Initialize(device, descriptor.Capacities{
		RenderTarget: 2, DepthStencil: 2, ShaderResource: 2, Sampler: 2,
	}))
	defer registry.Destroy()

	rtv := registry.AllocateRenderTarget()
	dsv := registry.AllocateDepthStencil()
	srv := registry.AllocateShaderResource()
	sampler := registry.AllocateSampler()

	for _, slot := range []descriptor.Slot{rtv, dsv, srv, sampler} {
		require.True(t, slot.Valid())
		require.Equal(t, uint32(0), slot.Index)
	}
	require.NotEqual(t, rtv.CPU, dsv.CPU)
	require.Equal(t, 4, registry.Statistics().AllocationCount)

	registry.FreeRenderTarget(rtv)
	registry.FreeDepthStencil(dsv)
	registry.FreeShaderResource(srv)
	registry.FreeSampler(sampler)
	require.Zero(t, registry.Statistics().AllocationCount)
	require.Equal(t, 8, registry.Statistics().Capacity)

	_, err := registry.TryAllocate(gpu.DescriptorSampler)
	require.NoError(t, err)
	_, err = registry.TryAllocate(gpu.DescriptorSampler)
	require.NoError(t, err)
	_, err = registry.TryAllocate(gpu.DescriptorSampler)
	require.True(t, errors.Is(err, frameutils.ErrCapacity))
}

func TestRegistryPartialFailure(t *testing.T) {
	device := newDevice(t)

	// RTV and DSV tables are created before the empty shader resource table is rejected
	failing := descriptor.NewRegistry(nil)
	err := failing.Initialize(device, descriptor.Capacities{RenderTarget: 1, DepthStencil: 1, ShaderResource: 0, Sampler: 1})
	require.True(t, errors.Is(err, frameutils.ErrInit))
	require.Zero(t, device.LiveObjects(soft.ObjectDescriptorTable))
	require.Equal(t, descriptor.InvalidSlot, failing.AllocateSampler())

	device.FailNextCreate(soft.ObjectDescriptorTable, core1_0.VKErrorOutOfDeviceMemory)
	err = failing.Initialize(device, descriptor.DefaultCapacities())
	require.True(t, errors.Is(err, frameutils.ErrInit))
	require.Zero(t, device.LiveObjects(soft.ObjectDescriptorTable))
}

func TestRegistryStatsString(t *testing.T) {
	device := newDevice(t)
	registry := descriptor.NewRegistry(nil)
	require.NoError(t, registry.Initialize(device, descriptor.Capacities{
		RenderTarget: 1, DepthStencil: 1, ShaderResource: 1, Sampler: 1,
	}))
	defer registry.Destroy()

	writer := jwriter.NewWriter()
	registry.BuildStatsString(&writer)
	stats := string(writer.Bytes())

	require.Contains(t, stats, `"RTV":{"Kind":"RTV"`)
	require.Contains(t, stats, `"Sampler":{"Kind":"Sampler","ShaderVisible":false`)
}
