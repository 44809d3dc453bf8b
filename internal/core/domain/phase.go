package domain

import "fmt"

// Phase is the lifecycle state of the local call session
type Phase int

const (
	// PhaseIdle means no call is in progress
	PhaseIdle Phase = iota
	// PhasePreviewing means the call surface is open and local capture is being acquired or shown
	PhasePreviewing
	// PhaseDialing means StartCall was sent and the caller waits for an answer
	PhaseDialing
	// PhaseRinging means StartCall was received and the callee has not decided yet
	PhaseRinging
	// PhaseNegotiating means the call was answered and the media session is being set up
	PhaseNegotiating
	// PhaseConnected means the remote participant joined the media session
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePreviewing:
		return "Previewing"
	case PhaseDialing:
		return "Dialing"
	case PhaseRinging:
		return "Ringing"
	case PhaseNegotiating:
		return "Negotiating"
	case PhaseConnected:
		return "Connected"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

var validTransitions = map[Phase][]Phase{
	PhaseIdle:        {PhasePreviewing, PhaseDialing, PhaseRinging},
	PhasePreviewing:  {PhaseIdle, PhaseDialing, PhaseRinging},
	PhaseDialing:     {PhaseNegotiating, PhaseIdle},
	PhaseRinging:     {PhaseNegotiating, PhaseIdle},
	PhaseNegotiating: {PhaseConnected, PhaseIdle},
	PhaseConnected:   {PhaseIdle},
}

// CanTransitionTo reports whether the machine may move from p to next.
// Staying in the same phase is always allowed.
func (p Phase) CanTransitionTo(next Phase) bool {
	if p == next {
		return true
	}
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InCall is true for the phases that belong to a call attempt
func (p Phase) InCall() bool {
	switch p {
	case PhaseDialing, PhaseRinging, PhaseNegotiating, PhaseConnected:
		return true
	}
	return false
}

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "none"
	}
}
