/*
status.go - Review workflow for shifts and sales

PURPOSE:
  Shifts and sales share one review shape: an item waits for a manager,
  who accepts or rejects it. Discrepancy flags are informational only;
  a flagged item may still be accepted ("approve anyway").

STATE MACHINES:
  Shift: active -> pending_approval -> approved | rejected
  Sale:  pending -> verified | rejected

  Terminal states (approved, verified, rejected) accept no further change.
*/
package fuel

type Status string

const (
	StatusActive          Status = "active"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusPending         Status = "pending"
	StatusVerified        Status = "verified"
	StatusRejected        Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusActive:          {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusPending:         {StatusVerified, StatusRejected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns to, or a *TransitionError.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPendingApproval, StatusApproved,
		StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}
