package models

// NodeState tracks a vertex through consensus.
//
// The only legal transitions are:
//
//	Pending  -> Accepted
//	Pending  -> Rejected
//	Accepted -> Final
//	Accepted -> Rejected
//
// Final and Rejected are terminal.
type NodeState int

const (
	StatePending NodeState = iota
	StateAccepted
	StateFinal
	StateRejected
)

func (s NodeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateFinal:
		return "final"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s NodeState) Terminal() bool {
	return s == StateFinal || s == StateRejected
}

// CanTransition reports whether moving from s to next is legal.
func (s NodeState) CanTransition(next NodeState) bool {
	switch s {
	case StatePending:
		return next == StateAccepted || next == StateRejected
	case StateAccepted:
		return next == StateFinal || next == StateRejected
	default:
		return false
	}
}
