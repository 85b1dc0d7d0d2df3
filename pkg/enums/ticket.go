package enums

import "fmt"

// TicketPriority orders support tickets raised for return requests.
type TicketPriority string

const (
	TicketPriorityMedium TicketPriority = "Media"
	TicketPriorityHigh   TicketPriority = "Alta"
)

var validTicketPriorities = []TicketPriority{TicketPriorityMedium, TicketPriorityHigh}

// IsValid reports whether the value is a known TicketPriority.
func (p TicketPriority) IsValid() bool {
	for _, candidate := range validTicketPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// TicketStatus tracks whether a support ticket still needs attention.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "Abierto"
	TicketStatusClosed TicketStatus = "Cerrado"
)

var validTicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusClosed}

// IsValid reports whether the value is a known TicketStatus.
func (s TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input into a TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
