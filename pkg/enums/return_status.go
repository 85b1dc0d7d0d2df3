package enums

import "fmt"

type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "Solicitada"
	ReturnStatusApproved  ReturnStatus = "Aprobada"
	ReturnStatusRejected  ReturnStatus = "Rechazada"
	ReturnStatusCompleted ReturnStatus = "Completada"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusCompleted,
}

func (s ReturnStatus) String() string {
	return string(s)
}

func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ClosesTicket reports whether reaching this status resolves the support ticket.
func (s ReturnStatus) ClosesTicket() bool {
	return s == ReturnStatusRejected || s == ReturnStatusCompleted
}

func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
