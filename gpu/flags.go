package gpu

import "github.com/vkngwrapper/core/v2/common"

// SwapchainFlags control creation-time behaviors of a Swapchain. They are kept across ResizeBuffers.
type SwapchainFlags int32

var swapchainFlagsMapping = common.NewFlagStringMapping[SwapchainFlags]()

func (f SwapchainFlags) Register(str string) {
	swapchainFlagsMapping.Register(f, str)
}
func (f SwapchainFlags) String() string {
	return swapchainFlagsMapping.FlagsToString(f)
}

const (
	// SwapchainAllowTearing permits presentation without waiting for vertical blank on displays that
	// support variable refresh
	SwapchainAllowTearing SwapchainFlags = 1 << iota
)

// PresentFlags control the behavior of a single Swapchain.Present call
type PresentFlags int32

var presentFlagsMapping = common.NewFlagStringMapping[PresentFlags]()

func (f PresentFlags) Register(str string) {
	presentFlagsMapping.Register(f, str)
}
func (f PresentFlags) String() string {
	return presentFlagsMapping.FlagsToString(f)
}

const (
	// PresentAllowTearing requests a tearing present. It is only legal with a sync interval of 0 on a
	// swapchain created with SwapchainAllowTearing.
	PresentAllowTearing PresentFlags = 1 << iota
)

func init() {
	SwapchainAllowTearing.Register("SwapchainAllowTearing")
	PresentAllowTearing.Register("PresentAllowTearing")
}
