package soft

import "github.com/vkngwrapper/frameline/gpu"

// DescriptorTable is a software gpu.DescriptorTable. Handles are unique across the device.
type DescriptorTable struct {
	device        *Device
	kind          gpu.DescriptorKind
	capacity      int
	shaderVisible bool
	increment     uint64
	cpuStart      gpu.CPUHandle
	gpuStart      gpu.GPUHandle
	destroyed     bool
}

var _ gpu.DescriptorTable = &DescriptorTable{}

func (t *DescriptorTable) Kind() gpu.DescriptorKind {
	return t.kind
}

func (t *DescriptorTable) CPUStart() gpu.CPUHandle {
	return t.cpuStart
}

func (t *DescriptorTable) GPUStart() gpu.GPUHandle {
	return t.gpuStart
}

func (t *DescriptorTable) Capacity() int {
	return t.capacity
}

func (t *DescriptorTable) ShaderVisible() bool {
	return t.shaderVisible
}

func (t *DescriptorTable) Destroy() {
	t.device.mutex.Lock()
	defer t.device.mutex.Unlock()

	if t.destroyed {
		return
	}
	t.destroyed = true
	t.device.live[ObjectDescriptorTable]--

	start := uint64(t.cpuStart)
	end := start + uint64(t.capacity)*t.increment
	for handle := start; handle < end; handle += t.increment {
		t.device.views.Delete(gpu.CPUHandle(handle))
	}
}
