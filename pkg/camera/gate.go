package camera

import "github.com/wachiwi/motioncam/pkg/control"

// State is the part of the controller the live preview depends on.
type State interface {
	Killed() bool
	Mode() control.Mode
}

// Gate decides whether the live preview may produce another frame.
type Gate struct {
	state State
}

func NewGate(state State) Gate {
	return Gate{state: state}
}

// ShouldContinue is true while no kill was requested and the mode is Stream.
func (g Gate) ShouldContinue() bool {
	return !g.state.Killed() && g.state.Mode() == control.Stream
}
