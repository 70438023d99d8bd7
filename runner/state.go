package runner

import "strconv"

type State int32

const (
	Disconnected State = iota
	Connecting
	Selected
	Idling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Selected:
		return "selected"
	case Idling:
		return "idling"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}
