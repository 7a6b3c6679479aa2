package gpu

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

// IsDeviceLost reports whether res means the device can no longer be used
func IsDeviceLost(res common.VkResult) bool {
	return res == core1_0.VKErrorDeviceLost
}

// IsOutOfDate reports whether res means the swapchain no longer matches its surface and needs a resize
func IsOutOfDate(res common.VkResult) bool {
	return res == khr_swapchain.VKErrorOutOfDate
}
