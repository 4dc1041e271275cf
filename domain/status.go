package domain

import "fmt"

// Status is the lifecycle state of a gift card.
type Status string

const (
	StatusInactive  Status = "INACTIVE"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusDepleted  Status = "DEPLETED"
)

// ParseStatus accepts the upper-case status names.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusInactive, StatusActive, StatusSuspended, StatusCancelled, StatusExpired, StatusDepleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown gift card status %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusDepleted
}
