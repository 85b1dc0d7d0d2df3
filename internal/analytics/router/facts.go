package router

import (
	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// A new order is always Pendiente; Amount is the total the server computed.
func orderCreatedFact(e *payloads.OrderCreatedEvent) types.OrderFactRow {
	return types.OrderFactRow{
		OrderID:       e.OrderID.String(),
		UserID:        uuidPtr(e.UserID),
		Status:        stringPtr(string(enums.OrderStatusPending)),
		PaymentMethod: stringPtr(string(e.PaymentMethod)),
		Amount:        decimalPtr(e.Total),
		LineCount:     int64Ptr(e.LineCount),
		SkippedCount:  int64Ptr(e.SkippedCount),
	}
}

func orderStatusFact(e *payloads.OrderStatusChangedEvent) types.OrderFactRow {
	return types.OrderFactRow{
		OrderID:        e.OrderID.String(),
		Status:         stringPtr(string(e.Status)),
		PreviousStatus: stringPtr(string(e.PreviousStatus)),
		Amount:         decimalPtr(e.Total),
		StockFailures:  int64Ptr(e.StockFailures),
	}
}

func returnRequestedFact(e *payloads.ReturnRequestedEvent) types.OrderFactRow {
	return types.OrderFactRow{
		OrderID:   e.OrderID.String(),
		ReturnID:  uuidPtr(e.ReturnID),
		UserID:    uuidPtr(e.UserID),
		Status:    stringPtr(string(enums.ReturnStatusRequested)),
		Amount:    decimalPtr(e.RefundAmount),
		Defective: boolPtr(e.Defective),
	}
}

func returnStatusFact(e *payloads.ReturnStatusChangedEvent) types.OrderFactRow {
	row := types.OrderFactRow{
		OrderID:        e.OrderID.String(),
		ReturnID:       uuidPtr(e.ReturnID),
		Status:         stringPtr(string(e.Status)),
		PreviousStatus: stringPtr(string(e.PreviousStatus)),
	}
	// Only approved returns move money.
	if e.Status == enums.ReturnStatusApproved {
		row.Amount = decimalPtr(e.RefundAmount)
	}
	return row
}
