package main

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/frameline/config"
	"github.com/vkngwrapper/frameline/descriptor"
	"github.com/vkngwrapper/frameline/engine"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/gpu/soft"
	"github.com/vkngwrapper/frameline/window/headless"
	"golang.org/x/exp/slog"
)

const (
	CategoryFrame      = "frame"
	CategoryDescriptor = "descriptor"
)

// Result is the outcome of one benchmark. Timings are in nanoseconds per iteration.
type Result struct {
	Category   string
	Name       string
	Iterations int
	TotalNanos int64
	MinNanos   int64
	MaxNanos   int64
}

func (r Result) AverageNanos() int64 {
	if r.Iterations == 0 {
		return 0
	}
	return r.TotalNanos / int64(r.Iterations)
}

// PerSecond is the iteration rate implied by the mean time: frames per second for frame benchmarks,
// operations per second for descriptor benchmarks
func (r Result) PerSecond() float64 {
	avg := r.AverageNanos()
	if avg == 0 {
		return 0
	}
	return 1e9 / float64(avg)
}

type recorder struct {
	result Result
}

func newRecorder(category, name string) *recorder {
	return &recorder{result: Result{Category: category, Name: name, MinNanos: math.MaxInt64}}
}

func (r *recorder) add(elapsed time.Duration) {
	nanos := elapsed.Nanoseconds()
	r.result.Iterations++
	r.result.TotalNanos += nanos
	if nanos < r.result.MinNanos {
		r.result.MinNanos = nanos
	}
	if nanos > r.result.MaxNanos {
		r.result.MaxNanos = nanos
	}
}

func (r *recorder) done() Result {
	if r.result.Iterations == 0 {
		r.result.MinNanos = 0
	}
	return r.result
}

// Benchmark is a single named measurement
type Benchmark struct {
	Category string
	Name     string
	Run      func(logger *slog.Logger, iterations int) (Result, error)
}

// Benchmarks lists every benchmark in the order they run
var Benchmarks = []Benchmark{
	{Category: CategoryFrame, Name: "vsync", Run: frameBenchmark("vsync", true)},
	{Category: CategoryFrame, Name: "uncapped", Run: frameBenchmark("uncapped", false)},
	{Category: CategoryDescriptor, Name: "alloc-free", Run: allocFreeBenchmark},
	{Category: CategoryDescriptor, Name: "fill-drain", Run: fillDrainBenchmark},
}

// Select returns the benchmarks of category, or every benchmark when all is set
func Select(all bool, category string) ([]Benchmark, error) {
	if all || category == "" {
		return Benchmarks, nil
	}

	var selected []Benchmark
	for _, benchmark := range Benchmarks {
		if benchmark.Category == category {
			selected = append(selected, benchmark)
		}
	}

	if len(selected) == 0 {
		return nil, errors.Newf("unknown benchmark category %q", category)
	}
	return selected, nil
}

func frameBenchmark(name string, vsync bool) func(*slog.Logger, int) (Result, error) {
	return func(logger *slog.Logger, iterations int) (Result, error) {
		settings := config.ForProfile(config.ProfileProfile)
		settings.Renderer.VSync = vsync

		device := soft.NewDevice(soft.Options{Logger: logger, TearingSupported: true})
		win := headless.New(logger, settings.Window.Title, settings.Window.Width, settings.Window.Height)

		e := engine.New(logger, device.Opener())
		err := e.Initialize(win, settings)
		if err != nil {
			win.Close()
			return Result{}, err
		}
		defer e.Shutdown()

		r := e.Renderer()
		rec := newRecorder(CategoryFrame, name)
		for i := 0; i < iterations; i++ {
			start := hrtime.Now()
			if err := r.BeginFrame(); err != nil {
				return rec.done(), err
			}
			if err := r.RenderFrame(); err != nil {
				return rec.done(), err
			}
			if err := r.EndFrame(); err != nil {
				return rec.done(), err
			}
			rec.add(hrtime.Since(start))
		}

		return rec.done(), nil
	}
}

func newBenchAllocator(logger *slog.Logger, capacity int) (*descriptor.Allocator, *soft.Device, error) {
	device := soft.NewDevice(soft.Options{Logger: logger})
	allocator := descriptor.NewAllocator(logger)

	err := allocator.Initialize(device, gpu.DescriptorShaderResource, capacity, true)
	if err != nil {
		device.Destroy()
		return nil, nil, err
	}
	return allocator, device, nil
}

func allocFreeBenchmark(logger *slog.Logger, iterations int) (Result, error) {
	allocator, device, err := newBenchAllocator(logger, config.DefaultDescriptors().ShaderResource)
	if err != nil {
		return Result{}, err
	}
	defer device.Destroy()
	defer allocator.Destroy()

	rec := newRecorder(CategoryDescriptor, "alloc-free")
	for i := 0; i < iterations; i++ {
		start := hrtime.Now()
		slot, err := allocator.TryAllocate()
		if err != nil {
			return rec.done(), err
		}
		allocator.Free(slot)
		rec.add(hrtime.Since(start))
	}

	return rec.done(), nil
}

// fillDrainBenchmark times one iteration as allocating every slot and then freeing them all
func fillDrainBenchmark(logger *slog.Logger, iterations int) (Result, error) {
	capacity := config.DefaultDescriptors().ShaderResource
	allocator, device, err := newBenchAllocator(logger, capacity)
	if err != nil {
		return Result{}, err
	}
	defer device.Destroy()
	defer allocator.Destroy()

	slots := make([]descriptor.Slot, capacity)
	rec := newRecorder(CategoryDescriptor, "fill-drain")
	for i := 0; i < iterations; i++ {
		start := hrtime.Now()
		for j := range slots {
			slots[j], err = allocator.TryAllocate()
			if err != nil {
				return rec.done(), err
			}
		}
		for _, slot := range slots {
			allocator.Free(slot)
		}
		rec.add(hrtime.Since(start))
	}

	return rec.done(), nil
}

// WriteJSON writes results as a JSON object with a Benchmarks array
func WriteJSON(w io.Writer, results []Result) error {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	arr := obj.Name("Benchmarks").Array()
	for _, result := range results {
		entry := arr.Object()
		entry.Name("Category").String(result.Category)
		entry.Name("Name").String(result.Name)
		entry.Name("Iterations").Int(result.Iterations)
		entry.Name("AverageNanos").Int(int(result.AverageNanos()))
		entry.Name("MinNanos").Int(int(result.MinNanos))
		entry.Name("MaxNanos").Int(int(result.MaxNanos))
		entry.Name("PerSecond").Float64(result.PerSecond())
		entry.End()
	}
	arr.End()
	obj.End()

	if err := writer.Error(); err != nil {
		return err
	}

	_, err := w.Write(append(writer.Bytes(), '\n'))
	return err
}

var csvHeader = []string{"category", "name", "iterations", "avg_ns", "min_ns", "max_ns", "per_second"}

// WriteCSV writes results as CSV with a header row
func WriteCSV(w io.Writer, results []Result) error {
	writer := csv.NewWriter(w)

	err := writer.Write(csvHeader)
	if err != nil {
		return err
	}

	for _, result := range results {
		err = writer.Write([]string{
			result.Category,
			result.Name,
			strconv.Itoa(result.Iterations),
			strconv.FormatInt(result.AverageNanos(), 10),
			strconv.FormatInt(result.MinNanos, 10),
			strconv.FormatInt(result.MaxNanos, 10),
			strconv.FormatFloat(result.PerSecond(), 'f', 2, 64),
		})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
