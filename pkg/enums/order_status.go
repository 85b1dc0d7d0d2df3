package enums

import "fmt"

// OrderStatus tracks an order from placement to delivery or cancellation.
// Any status may be set from any other; stock side effects depend only on the
// Entregado boundary.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pendiente"
	OrderStatusProcessing OrderStatus = "Procesando"
	OrderStatusShipped    OrderStatus = "Enviado"
	OrderStatusDelivered  OrderStatus = "Entregado"
	OrderStatusCancelled  OrderStatus = "Cancelado"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
