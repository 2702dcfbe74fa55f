package teleop

import "fmt"

// Key is a single input byte read from the operator's terminal.
type Key rune

// NoKey is returned by a KeySource when nothing arrived within the timeout.
const NoKey Key = -1

// ExitKey is Ctrl+C as seen by a terminal in raw mode.
const ExitKey Key = 0x03

func (k Key) String() string {
	switch {
	case k == NoKey:
		return "<none>"
	case k == ExitKey:
		return "ctrl+c"
	case k < 0x20 || k == 0x7f:
		return fmt.Sprintf("0x%02x", int(k))
	default:
		return string(k)
	}
}

// Action is the transition a key triggers.
type Action int

const (
	ActionNone Action = iota
	ActionLinearUp
	ActionLinearDown
	ActionAngularUp
	ActionAngularDown
	ActionStop
	ActionJointsUp
	ActionJointsDown
	ActionExit
)

// Binding pairs a key with its action and a short legend entry.
type Binding struct {
	Key    Key
	Action Action
	Help   string
}

// Bindings is the key mapping table, in legend order.
var Bindings = []Binding{
	{'w', ActionLinearUp, "increase forward speed"},
	{'x', ActionLinearDown, "decrease forward speed"},
	{'a', ActionAngularUp, "increase left turn rate"},
	{'d', ActionAngularDown, "decrease left turn rate"},
	{'s', ActionStop, "stop the base"},
	{'i', ActionJointsUp, "increase joint speed"},
	{'k', ActionJointsDown, "decrease joint speed"},
	{'j', ActionJointsDown, "rotate joints left"},
	{'l', ActionJointsUp, "rotate joints right"},
	{ExitKey, ActionExit, "quit"},
}

var actions = func() map[Key]Action {
	m := make(map[Key]Action, len(Bindings))
	for _, b := range Bindings {
		m[b.Key] = b.Action
	}
	return m
}()

// ActionFor returns the action bound to k, or ActionNone.
func ActionFor(k Key) Action {
	return actions[k]
}
