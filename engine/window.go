package engine

import (
	"fmt"

	"github.com/vkngwrapper/frameline/gpu"
)

// Key identifies a keyboard key
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeyEnter
	KeySpace
	KeyF11
)

var keyNames = map[Key]string{
	KeyUnknown: "Unknown",
	KeyEscape:  "Escape",
	KeyEnter:   "Enter",
	KeySpace:   "Space",
	KeyF11:     "F11",
}

func (k Key) String() string {
	name, ok := keyNames[k]
	if !ok {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return name
}

// KeyboardEvent is delivered when a key changes state
type KeyboardEvent struct {
	Code    Key
	Pressed bool
	Repeat  bool
}

// ResizeEvent is delivered when the window's client area changes size. A minimized window reports 0x0.
type ResizeEvent struct {
	Width  int
	Height int
}

// Window is the platform window the engine renders into. Handlers are invoked synchronously from
// ProcessMessages, on the goroutine running the frame loop, and never concurrently with a frame.
type Window interface {
	// SurfaceTarget is the native handle the presentation surface binds to. It must stay valid until
	// Close.
	SurfaceTarget() gpu.SurfaceTarget
	// ProcessMessages dispatches every pending message and returns false once a quit was requested
	ProcessMessages() bool
	SetKeyboardHandler(handler func(KeyboardEvent))
	SetResizeHandler(handler func(ResizeEvent))
	Close()
}
