package workflow

import (
	"errors"
	"fmt"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// State is one node of the per-event routing machine.
type State string

const (
	StateStart             State = "Start"
	StateEvaluated         State = "Evaluated"
	StateNoIssue           State = "NoIssue"
	StateIgnore            State = "Ignore"
	StatePending           State = "Pending"
	StateEscalated         State = "Escalated"
	StateFeedbackGenerated State = "FeedbackGenerated"
	StateNotified          State = "Notified"
	StateEnd               State = "End"
)

// ErrInvalidTransition is returned by Next when no edge leaves the state
// for the given status.
var ErrInvalidTransition = errors.New("workflow: invalid transition")

// transitions enumerates every edge of the machine.
var transitions = map[State][]State{
	StateStart:             {StateEvaluated},
	StateEvaluated:         {StateNoIssue, StateIgnore, StatePending, StateEscalated},
	StateNoIssue:           {StateEnd},
	StateIgnore:            {StateEnd},
	StatePending:           {StateEnd},
	StateEscalated:         {StateFeedbackGenerated},
	StateFeedbackGenerated: {StateNotified},
	StateNotified:          {StateEnd},
	StateEnd:               nil,
}

// statusStates maps a classifier status to the state it selects from Evaluated.
var statusStates = map[types.Status]State{
	types.StatusNoIssue:   StateNoIssue,
	types.StatusIgnore:    StateIgnore,
	types.StatusPending:   StatePending,
	types.StatusEscalated: StateEscalated,
}

// Next returns the state that follows from. The status is the only guard
// and is consulted only when leaving Evaluated.
func Next(from State, status types.Status) (State, error) {
	edges, ok := transitions[from]
	if !ok || len(edges) == 0 {
		return "", fmt.Errorf("%w: no edge leaves %q", ErrInvalidTransition, from)
	}
	if from != StateEvaluated {
		return edges[0], nil
	}
	to, ok := statusStates[status]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q at %q", ErrInvalidTransition, status, from)
	}
	return to, nil
}

// Allowed reports whether the machine has an edge from → to.
func Allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Path returns every state visited from Start to End for status.
func Path(status types.Status) ([]State, error) {
	path := []State{StateStart}
	for s := StateStart; s != StateEnd; {
		next, err := Next(s, status)
		if err != nil {
			return path, err
		}
		path = append(path, next)
		s = next
	}
	return path, nil
}

// Terminal reports whether s is End.
func (s State) Terminal() bool { return s == StateEnd }
