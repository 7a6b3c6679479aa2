package frameutils

import "math"

// Statistics is a snapshot of how many entries of a fixed or growable table are in use
type Statistics struct {
	Capacity        int
	AllocationCount int
	FreeCount       int
	PeakAllocations int
	FailedRequests  int
}

func (s *Statistics) Clear() {
	s.Capacity = 0
	s.AllocationCount = 0
	s.FreeCount = 0
	s.PeakAllocations = 0
	s.FailedRequests = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.Capacity += other.Capacity
	s.AllocationCount += other.AllocationCount
	s.FreeCount += other.FreeCount
	s.PeakAllocations += other.PeakAllocations
	s.FailedRequests += other.FailedRequests
}

// FrameStatistics summarizes CPU frame times in nanoseconds
type FrameStatistics struct {
	FrameCount int
	TotalNanos int64
	MinNanos   int64
	MaxNanos   int64
}

func (s *FrameStatistics) Clear() {
	s.FrameCount = 0
	s.TotalNanos = 0
	s.MinNanos = math.MaxInt64
	s.MaxNanos = 0
}

func (s *FrameStatistics) AddFrame(nanos int64) {
	s.FrameCount++
	s.TotalNanos += nanos

	if nanos < s.MinNanos {
		s.MinNanos = nanos
	}

	if nanos > s.MaxNanos {
		s.MaxNanos = nanos
	}
}

// AverageNanos returns the mean frame time, or 0 if no frames were recorded
func (s *FrameStatistics) AverageNanos() int64 {
	if s.FrameCount == 0 {
		return 0
	}
	return s.TotalNanos / int64(s.FrameCount)
}

// FramesPerSecond returns the frame rate implied by the mean frame time
func (s *FrameStatistics) FramesPerSecond() float64 {
	avg := s.AverageNanos()
	if avg == 0 {
		return 0
	}
	return 1e9 / float64(avg)
}
