package router

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func int64Ptr(value int) *int64 {
	v := int64(value)
	return &v
}

func boolPtr(value bool) *bool {
	return &value
}

func decimalPtr(value decimal.Decimal) *decimal.Decimal {
	return &value
}
