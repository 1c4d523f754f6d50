package striker

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateSealed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateSealed:
		return "sealed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSealed || s == StateAborted
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateClosed:
		return to == StateOpen || to == StateAborted
	case StateOpen:
		return to == StateOpen || to == StateSealed || to == StateAborted
	default:
		return false
	}
}
