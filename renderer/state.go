package renderer

import "fmt"

// State is the lifecycle state of a Renderer
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateShuttingDown
)

var stateNames = map[State]string{
	StateUninitialized: "Uninitialized",
	StateInitialized:   "Initialized",
	StateRunning:       "Running",
	StateShuttingDown:  "ShuttingDown",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return name
}
