package session

import "fmt"

// State is the connectivity and ranging state of a Manager.
type State int

const (
	Disconnected State = iota
	ConnectedIdle
	ConnectedRanging
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case ConnectedIdle:
		return "ConnectedIdle"
	case ConnectedRanging:
		return "ConnectedRanging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connected reports whether s holds a channel.
func (s State) Connected() bool {
	return s == ConnectedIdle || s == ConnectedRanging
}

// Ranging reports whether s is ranging.
func (s State) Ranging() bool {
	return s == ConnectedRanging
}

type operation int

const (
	opConnect operation = iota
	opDisconnect
	opStartRanging
	opStopRanging
)

func (o operation) String() string {
	switch o {
	case opConnect:
		return "connect"
	case opDisconnect:
		return "disconnect"
	case opStartRanging:
		return "startRanging"
	case opStopRanging:
		return "stopRanging"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// transitions lists the legal operations per state and the state each one
// leads to. Anything missing is not effective in that state.
var transitions = map[State]map[operation]State{
	Disconnected: {
		opConnect: ConnectedIdle,
	},
	ConnectedIdle: {
		opDisconnect:   Disconnected,
		opStartRanging: ConnectedRanging,
		opStopRanging:  ConnectedIdle,
	},
	ConnectedRanging: {
		opDisconnect:  Disconnected,
		opStopRanging: ConnectedIdle,
	},
}

// next returns the state op leads to from s.
func next(s State, op operation) (State, bool) {
	to, ok := transitions[s][op]
	return to, ok
}
