package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/frameline/logging"
)

func TestSelect(t *testing.T) {
	selected, err := Select(true, "frame")
	require.NoError(t, err)
	require.Len(t, selected, len(Benchmarks))

	selected, err = Select(false, CategoryDescriptor)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	for _, benchmark := range selected {
		require.Equal(t, CategoryDescriptor, benchmark.Category)
	}

	_, err = Select(false, "shaders")
	require.Error(t, err)
}

func TestBenchmarksRun(t *testing.T) {
	for _, benchmark := range Benchmarks {
		t.Run(benchmark.Category+"/"+benchmark.Name, func(t *testing.T) {
			result, err := benchmark.Run(logging.Discard(), 5)
			require.NoError(t, err)
			require.Equal(t, 5, result.Iterations)
			require.Equal(t, benchmark.Name, result.Name)
			require.LessOrEqual(t, result.MinNanos, result.AverageNanos())
			require.LessOrEqual(t, result.AverageNanos(), result.MaxNanos)
		})
	}
}

func sampleResults() []Result {
	return []Result{
		{Category: CategoryFrame, Name: "vsync", Iterations: 4, TotalNanos: 4000, MinNanos: 500, MaxNanos: 2000},
		{Category: CategoryDescriptor, Name: "alloc-free", Iterations: 0},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults()))

	var report struct {
		Benchmarks []struct {
			Category     string
			Name         string
			Iterations   int
			AverageNanos int64
			PerSecond    float64
		}
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	require.Len(t, report.Benchmarks, 2)
	require.Equal(t, "vsync", report.Benchmarks[0].Name)
	require.Equal(t, int64(1000), report.Benchmarks[0].AverageNanos)
	require.InDelta(t, 1e6, report.Benchmarks[0].PerSecond, 0.001)
	require.Zero(t, report.Benchmarks[1].PerSecond)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, []string{"frame", "vsync", "4", "1000", "500", "2000", "1000000.00"}, records[1])
}
