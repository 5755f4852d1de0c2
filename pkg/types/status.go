package types

import "fmt"

// Status is the terminal handling status of one event.
type Status string

const (
	StatusNoIssue   Status = "NoIssue"
	StatusIgnore    Status = "Ignore"
	StatusPending   Status = "Pending"
	StatusEscalated Status = "Escalated"
)

// Statuses lists every terminal status in reporting order.
var Statuses = []Status{StatusNoIssue, StatusIgnore, StatusPending, StatusEscalated}

// Valid reports whether s is one of the four terminal statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNoIssue, StatusIgnore, StatusPending, StatusEscalated:
		return true
	}
	return false
}

// ParseStatus parses a stored status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("types: unknown status %q", s)
	}
	return st, nil
}
