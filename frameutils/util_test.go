package frameutils_test

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/frameline/frameutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, frameutils.CheckPow2(1, "samples"))
	require.NoError(t, frameutils.CheckPow2(4, "samples"))
	require.NoError(t, frameutils.CheckPow2(uint32(8), "samples"))

	err := frameutils.CheckPow2(3, "samples")
	require.Error(t, err)
	require.True(t, errors.Is(err, frameutils.PowerOfTwoError))
	require.Contains(t, err.Error(), "samples is 3")

	require.Error(t, frameutils.CheckPow2(0, "samples"))
}

func TestWrapMarksKind(t *testing.T) {
	base := errors.New("platform said no")
	err := frameutils.Wrap(base, frameutils.ErrInit, "failed to create %s", "fence")
	require.True(t, errors.Is(err, frameutils.ErrInit))
	require.False(t, errors.Is(err, frameutils.ErrPool))
	require.Contains(t, err.Error(), "failed to create fence")

	require.NoError(t, frameutils.Wrap(nil, frameutils.ErrInit, "unused"))

	err = frameutils.Newf(frameutils.ErrCapacity, "table %s is full", "RTV")
	require.True(t, errors.Is(err, frameutils.ErrCapacity))
}

func TestKindsVisibleToStandardLibrary(t *testing.T) {
	err := frameutils.Newf(frameutils.ErrCapacity, "table %s is full", "RTV")
	require.True(t, stderrors.Is(err, frameutils.ErrCapacity))
	require.False(t, stderrors.Is(err, frameutils.ErrInit))
	require.ErrorIs(t, err, frameutils.ErrCapacity)

	err = frameutils.Wrap(errors.New("platform said no"), frameutils.ErrInit, "failed to create %s", "queue")
	require.True(t, stderrors.Is(err, frameutils.ErrInit))
	require.ErrorIs(t, err, frameutils.ErrInit)

	// Kinds stay reachable through further wrapping and through a second kind
	outer := frameutils.Wrap(err, frameutils.ErrDeviceLost, "frame %d", 3)
	require.True(t, stderrors.Is(outer, frameutils.ErrInit))
	require.True(t, stderrors.Is(outer, frameutils.ErrDeviceLost))
	require.True(t, errors.Is(outer, frameutils.ErrInit))
	require.True(t, stderrors.Is(errors.Wrap(outer, "context"), frameutils.ErrDeviceLost))
	require.Equal(t, "frame 3: failed to create queue: platform said no", outer.Error())
}

func TestFrameStatistics(t *testing.T) {
	var stats frameutils.FrameStatistics
	stats.Clear()
	require.Equal(t, int64(math.MaxInt64), stats.MinNanos)
	require.Zero(t, stats.AverageNanos())
	require.Zero(t, stats.FramesPerSecond())

	stats.AddFrame(10_000_000)
	stats.AddFrame(30_000_000)

	require.Equal(t, 2, stats.FrameCount)
	require.Equal(t, int64(10_000_000), stats.MinNanos)
	require.Equal(t, int64(30_000_000), stats.MaxNanos)
	require.Equal(t, int64(20_000_000), stats.AverageNanos())
	require.InDelta(t, 50.0, stats.FramesPerSecond(), 0.0001)
}

func TestStatisticsAdd(t *testing.T) {
	a := frameutils.Statistics{Capacity: 4, AllocationCount: 1, FreeCount: 3, PeakAllocations: 2}
	b := frameutils.Statistics{Capacity: 2, AllocationCount: 2, FailedRequests: 1}
	a.AddStatistics(&b)
	require.Equal(t, frameutils.Statistics{
		Capacity:        6,
		AllocationCount: 3,
		FreeCount:       3,
		PeakAllocations: 2,
		FailedRequests:  1,
	}, a)

	a.Clear()
	require.Equal(t, frameutils.Statistics{}, a)
}
