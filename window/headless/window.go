// Package headless provides an engine.Window with no native surface behind it. Events are queued by the
// caller and delivered on the next ProcessMessages call, which makes it suitable for tests, benchmarks
// and CI runs of the sample launchers.
package headless

import (
	"sync/atomic"

	"github.com/vkngwrapper/frameline/engine"
	"github.com/vkngwrapper/frameline/gpu"
	"github.com/vkngwrapper/frameline/internal/utils"
	"github.com/vkngwrapper/frameline/logging"
	"golang.org/x/exp/slog"
)

var nextTarget atomic.Uintptr

type message struct {
	keyboard *engine.KeyboardEvent
	resize   *engine.ResizeEvent
	quit     bool
}

// Window is a scripted engine.Window. Posting is safe from any goroutine.
type Window struct {
	logger *slog.Logger
	target gpu.SurfaceTarget

	mutex    utils.OptionalMutex
	pending  []message
	schedule map[uint64][]message

	width, height int
	pumps         uint64
	quit          bool
	closed        bool

	keyboard func(engine.KeyboardEvent)
	resize   func(engine.ResizeEvent)
}

var _ engine.Window = &Window{}

// New creates a window with a unique surface target and the given client size
func New(logger *slog.Logger, title string, width, height int) *Window {
	w := &Window{
		logger:   logging.For(logger, logging.CategoryWindow),
		target:   gpu.SurfaceTarget(nextTarget.Add(1)),
		mutex:    utils.OptionalMutex{UseMutex: true},
		schedule: make(map[uint64][]message),
		width:    width,
		height:   height,
	}

	w.logger.Info("Window created",
		slog.String("title", title),
		slog.Int("width", width),
		slog.Int("height", height))
	return w
}

func (w *Window) SurfaceTarget() gpu.SurfaceTarget {
	return w.target
}

func (w *Window) SetKeyboardHandler(handler func(engine.KeyboardEvent)) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.keyboard = handler
}

func (w *Window) SetResizeHandler(handler func(engine.ResizeEvent)) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.resize = handler
}

func (w *Window) post(msg message) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.pending = append(w.pending, msg)
}

// PostKey queues a key press or release
func (w *Window) PostKey(key engine.Key, pressed bool) {
	w.post(message{keyboard: &engine.KeyboardEvent{Code: key, Pressed: pressed}})
}

// PostResize queues a client area resize
func (w *Window) PostResize(width, height int) {
	w.post(message{resize: &engine.ResizeEvent{Width: width, Height: height}})
}

// PostQuit queues a quit request, after which ProcessMessages returns false
func (w *Window) PostQuit() {
	w.post(message{quit: true})
}

// ScheduleKey queues a key event for delivery on the given ProcessMessages call, counted from 1
func (w *Window) ScheduleKey(pump uint64, key engine.Key, pressed bool) {
	w.scheduleMessage(pump, message{keyboard: &engine.KeyboardEvent{Code: key, Pressed: pressed}})
}

// ScheduleResize queues a resize for delivery on the given ProcessMessages call, counted from 1
func (w *Window) ScheduleResize(pump uint64, width, height int) {
	w.scheduleMessage(pump, message{resize: &engine.ResizeEvent{Width: width, Height: height}})
}

// ScheduleQuit queues a quit request for delivery on the given ProcessMessages call, counted from 1
func (w *Window) ScheduleQuit(pump uint64) {
	w.scheduleMessage(pump, message{quit: true})
}

func (w *Window) scheduleMessage(pump uint64, msg message) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.schedule[pump] = append(w.schedule[pump], msg)
}

// ProcessMessages delivers every queued event to the registered handlers, in posting order, and
// returns false once a quit has been delivered or the window is closed
func (w *Window) ProcessMessages() bool {
	w.mutex.Lock()
	if w.closed || w.quit {
		w.mutex.Unlock()
		return false
	}

	w.pumps++
	messages := append(w.schedule[w.pumps], w.pending...)
	delete(w.schedule, w.pumps)
	w.pending = nil
	keyboard, resize := w.keyboard, w.resize
	w.mutex.Unlock()

	for _, msg := range messages {
		switch {
		case msg.quit:
			w.logger.Debug("Quit message received")
			w.mutex.Lock()
			w.quit = true
			w.mutex.Unlock()
			return false
		case msg.keyboard != nil:
			if keyboard != nil {
				keyboard(*msg.keyboard)
			}
		case msg.resize != nil:
			w.mutex.Lock()
			w.width, w.height = msg.resize.Width, msg.resize.Height
			w.mutex.Unlock()
			if resize != nil {
				resize(*msg.resize)
			}
		}
	}

	return true
}

// Size is the current client area size
func (w *Window) Size() (int, int) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.width, w.height
}

// Pumps is the number of ProcessMessages calls that dispatched
func (w *Window) Pumps() uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.pumps
}

func (w *Window) Closed() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.closed
}

func (w *Window) Close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.pending = nil
	w.logger.Info("Window closed")
}
