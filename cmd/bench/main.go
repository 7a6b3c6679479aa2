// Command bench measures frame time and throughput of the frame loop on the software device, and the
// allocation throughput of the descriptor allocator.
//
// Usage:
//
//	bench [options]
//
// Examples:
//
//	bench -all                           # Every benchmark, JSON report
//	bench -category descriptor -output csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

var (
	all        = flag.Bool("all", false, "run every benchmark category")
	category   = flag.String("category", "", "run only this category: frame or descriptor")
	output     = flag.String("output", "json", "report format: json or csv")
	iterations = flag.Int("iterations", 1000, "iterations per benchmark")
	verbose    = flag.Bool("v", false, "log benchmark progress to stderr")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *output != "json" && *output != "csv" {
		fmt.Fprintf(os.Stderr, "Error: unknown output format %q\n", *output)
		usage()
		os.Exit(1)
	}
	if *iterations <= 0 {
		fmt.Fprintln(os.Stderr, "Error: iterations must be positive")
		os.Exit(1)
	}

	benchmarks, err := Select(*all, *category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(1)
	}

	level := logging.LevelError
	if *verbose {
		level = logging.LevelInfo
	}
	sink, err := logging.Open(logging.Options{MinLevel: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	logger := sink.Logger()

	var results []Result
	for _, benchmark := range benchmarks {
		logger.Info("Running benchmark",
			slog.String("group", benchmark.Category),
			slog.String("name", benchmark.Name),
			slog.Int("iterations", *iterations))

		result, err := benchmark.Run(logging.Discard(), *iterations)
		if err != nil {
			logger.Error("Benchmark failed", slog.String("name", benchmark.Name), slog.Any("error", err))
			sink.Close()
			os.Exit(1)
		}
		results = append(results, result)
	}

	if *output == "csv" {
		err = WriteCSV(os.Stdout, results)
	} else {
		err = WriteJSON(os.Stdout, results)
	}
	sink.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: bench [options]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}
