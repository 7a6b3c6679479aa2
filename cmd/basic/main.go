// Command basic brings up the engine against the software device and a headless window and renders a
// cleared frame per iteration until the frame cap or a scripted ESC press ends it.
//
// Usage:
//
//	basic [options]
//
// Examples:
//
//	basic                         # Build profile defaults, 300 frames
//	basic -profile Debug          # Debug profile: validation and trace logging
//	basic -width 1920 -height 1080 -resize-at 60
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/frameline/config"
	"github.com/vkngwrapper/frameline/engine"
	"github.com/vkngwrapper/frameline/gpu/soft"
	"github.com/vkngwrapper/frameline/logging"
	"github.com/vkngwrapper/frameline/window/headless"
	"golang.org/x/exp/slog"
)

var (
	profileName = flag.String("profile", config.BuildProfile.String(), "settings profile: Debug, Release or Profile")
	width       = flag.Int("width", 0, "window width (default: profile setting)")
	height      = flag.Int("height", 0, "window height (default: profile setting)")
	vsync       = flag.String("vsync", "", "override vsync: on or off")
	frames      = flag.Uint64("frames", 300, "number of frames to render, 0 renders until ESC")
	escapeAt    = flag.Uint64("escape-at", 0, "press ESC on this message pump")
	resizeAt    = flag.Uint64("resize-at", 0, "resize the window on this message pump")
	latency     = flag.Duration("latency", 0, "simulated GPU execution latency per submission")
	logFile     = flag.String("log-file", "", "also append log output to this file")
	stats       = flag.Bool("stats", false, "print renderer statistics as JSON on exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	os.Exit(run())
}

func run() int {
	settings, err := buildSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		return engine.ExitNotInitialized
	}

	sink, err := logging.Open(logging.Options{
		MinLevel:  settings.LogLevel(),
		LogToFile: *logFile != "",
		FilePath:  *logFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		return engine.ExitNotInitialized
	}
	defer sink.Close()

	logger := sink.Logger()
	sampleLogger := logging.For(logger, logging.CategoryEngine)
	sampleLogger.Info("Starting sample", slog.String("profile", settings.Profile.String()))

	device := soft.NewDevice(soft.Options{
		Logger:           logger,
		Description:      "Software Adapter",
		TearingSupported: true,
		ExecutionLatency: *latency,
	})

	win := headless.New(logger, settings.Window.Title, settings.Window.Width, settings.Window.Height)
	if *escapeAt > 0 {
		win.ScheduleKey(*escapeAt, engine.KeyEscape, true)
	}
	if *resizeAt > 0 {
		win.ScheduleResize(*resizeAt, settings.Window.Width*3/2, settings.Window.Height*3/2)
	}

	e := engine.New(logger, device.Opener())
	e.MaxFrames = *frames

	err = e.Initialize(win, settings)
	if err != nil {
		sampleLogger.Error("Failed to initialize engine", slog.Any("error", err))
		win.Close()
		return engine.ExitNotInitialized
	}

	start := time.Now()
	code := e.Run()
	elapsed := time.Since(start)

	if *stats {
		printStats(e)
	}

	r := e.Renderer()
	sampleLogger.Info("Sample finished",
		slog.Int("exitCode", code),
		slog.Uint64("frames", r.FrameCount()),
		slog.Int("dropped", r.DroppedFrames()),
		slog.Duration("elapsed", elapsed))

	e.Shutdown()
	return code
}

func buildSettings() (config.Settings, error) {
	profile, err := config.ParseProfile(*profileName)
	if err != nil {
		return config.Settings{}, err
	}

	settings := config.ForProfile(profile)
	if *width > 0 {
		settings.Window.Width = *width
	}
	if *height > 0 {
		settings.Window.Height = *height
	}

	switch *vsync {
	case "":
	case "on":
		settings.Renderer.VSync = true
	case "off":
		settings.Renderer.VSync = false
	default:
		return config.Settings{}, errors.Newf("invalid -vsync value %q", *vsync)
	}

	return settings, settings.Validate()
}

func printStats(e *engine.Engine) {
	writer := jwriter.NewWriter()
	e.Renderer().BuildStatsString(&writer)
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing statistics: %v\n", err)
		return
	}
	fmt.Println(string(writer.Bytes()))
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: basic [options]\n\n")
	fmt.Fprintf(os.Stderr, "Runs the frame loop against the software device and a headless window.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}
