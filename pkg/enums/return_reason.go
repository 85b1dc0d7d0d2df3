package enums

import "strings"

// ReturnReasonType classifies a return request. Defective items bypass the
// business-day window.
type ReturnReasonType string

const (
	ReturnReasonGeneral   ReturnReasonType = "General"
	ReturnReasonDefective ReturnReasonType = "Defectuoso"
)

// ParseReturnReasonType never fails: anything other than Defectuoso is General.
func ParseReturnReasonType(value string) ReturnReasonType {
	if strings.TrimSpace(value) == string(ReturnReasonDefective) {
		return ReturnReasonDefective
	}
	return ReturnReasonGeneral
}

func (r ReturnReasonType) IsDefective() bool {
	return r == ReturnReasonDefective
}
