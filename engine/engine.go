// Package engine runs the frame loop: it pumps the window's messages, routes input and resize events
// and drives the renderer once per iteration.
package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/frameline/config"
	"github.com/vkngwrapper/frameline/frameutils"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/logging"
	"github.com/vkngwrapper/frameline/renderer"
	"golang.org/x/exp/slog"
)

const (
	// ExitSuccess is returned by Run when the loop ended because a quit was requested
	ExitSuccess = 0
	// ExitNotInitialized is returned by Run when Initialize has not succeeded
	ExitNotInitialized = -1
	// ExitDeviceLost is returned by Run when the renderer lost its device
	ExitDeviceLost = -2
)

// Engine owns the renderer and drives it from a Window's message loop
type Engine struct {
	logger      *slog.Logger
	inputLogger *slog.Logger

	window   Window
	renderer *renderer.Renderer
	settings config.Settings

	initialized   bool
	exitRequested bool
	frames        uint64

	// MaxFrames stops Run after this many loop iterations. Zero runs until a quit is requested.
	MaxFrames uint64
}

// New creates an uninitialized Engine whose renderer opens its device with opener
func New(logger *slog.Logger, opener gpu.Opener) *Engine {
	return &Engine{
		logger:      logging.For(logger, logging.CategoryEngine),
		inputLogger: logging.For(logger, logging.CategoryInput),
		renderer:    renderer.New(logger, opener),
	}
}

// Initialize validates settings, hooks win's events and initializes the renderer against it
func (e *Engine) Initialize(win Window, settings config.Settings) error {
	e.logger.Debug("Engine::Initialize")

	if e.initialized {
		e.logger.Warn("Engine is already initialized")
		return nil
	}
	if win == nil {
		return frameutils.Newf(frameutils.ErrInit, "engine requires a window")
	}

	err := settings.Validate()
	if err != nil {
		return frameutils.Wrap(err, frameutils.ErrInit, "invalid settings")
	}

	e.logger.Info("Initializing engine",
		slog.String("profile", settings.Profile.String()),
		slog.String("title", settings.Window.Title),
		slog.Int("width", settings.Window.Width),
		slog.Int("height", settings.Window.Height))

	e.window = win
	e.settings = settings
	e.exitRequested = false
	e.frames = 0

	win.SetKeyboardHandler(e.onKeyboard)
	win.SetResizeHandler(e.onResize)

	err = e.renderer.Initialize(win.SurfaceTarget(), settings.Window.Width, settings.Window.Height, settings.Renderer)
	if err != nil {
		win.SetKeyboardHandler(nil)
		win.SetResizeHandler(nil)
		e.window = nil
		return err
	}

	e.initialized = true
	e.logger.Info("Engine initialized")
	return nil
}

func (e *Engine) onKeyboard(event KeyboardEvent) {
	logging.Trace(e.inputLogger, "Key event",
		slog.String("key", event.Code.String()),
		slog.Bool("pressed", event.Pressed),
		slog.Bool("repeat", event.Repeat))

	if event.Code == KeyEscape && event.Pressed {
		e.logger.Info("Escape pressed, exiting")
		e.RequestExit()
	}
}

func (e *Engine) onResize(event ResizeEvent) {
	e.logger.Debug("Window resized", slog.Int("width", event.Width), slog.Int("height", event.Height))

	err := e.renderer.OnResize(event.Width, event.Height)
	if err != nil {
		e.logger.Error("Resize failed", slog.Any("error", err))
	}
}

// RequestExit ends Run after the current iteration
func (e *Engine) RequestExit() {
	e.exitRequested = true
}

// Run pumps messages and renders one frame per iteration until a quit is requested, MaxFrames is
// reached or the device is lost. It returns ExitSuccess, ExitNotInitialized or ExitDeviceLost.
func (e *Engine) Run() int {
	if !e.initialized {
		e.logger.Error("Run called on an uninitialized engine")
		return ExitNotInitialized
	}

	e.logger.Info("Entering main loop")

	for !e.exitRequested {
		if !e.window.ProcessMessages() {
			e.logger.Info("Quit requested by the window")
			break
		}
		if e.exitRequested {
			break
		}

		err := e.frame()
		if err != nil {
			if errors.Is(err, frameutils.ErrDeviceLost) {
				logging.Fatal(e.logger, "Device lost, leaving main loop", slog.Uint64("frames", e.frames))
				return ExitDeviceLost
			}
			e.logger.Warn("Frame failed", slog.Uint64("frame", e.frames), slog.Any("error", err))
		}

		e.frames++
		if e.MaxFrames > 0 && e.frames >= e.MaxFrames {
			break
		}
	}

	e.logger.Info("Main loop exited", slog.Uint64("frames", e.frames))
	return ExitSuccess
}

func (e *Engine) frame() error {
	beginErr := e.renderer.BeginFrame()
	if beginErr != nil && !e.renderer.FrameOpen() {
		return beginErr
	}

	// A dropped frame stays open until EndFrame
	err := e.renderer.RenderFrame()
	if err != nil {
		return err
	}

	err = e.renderer.EndFrame()
	if err != nil {
		return err
	}

	return beginErr
}

// Shutdown destroys the renderer and closes the window
func (e *Engine) Shutdown() {
	e.logger.Debug("Engine::Shutdown")

	if !e.initialized {
		return
	}

	e.renderer.Shutdown()
	e.window.SetKeyboardHandler(nil)
	e.window.SetResizeHandler(nil)
	e.window.Close()
	e.window = nil
	e.initialized = false

	e.logger.Info("Engine shut down")
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Settings() config.Settings {
	return e.settings
}

// Frames is the number of loop iterations Run has completed
func (e *Engine) Frames() uint64 {
	return e.frames
}

func (e *Engine) Initialized() bool {
	return e.initialized
}
