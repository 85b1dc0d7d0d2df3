package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ItemInput is one cart line as submitted. Values stay raw so that a bad
// line can be skipped instead of failing the whole order.
type ItemInput struct {
	ProductID string
	Quantity  string
	UnitPrice string
}

type CreateOrderInput struct {
	UserID        uuid.UUID
	AddressID     uuid.UUID
	Subtotal      *decimal.Decimal
	Taxes         *decimal.Decimal
	Total         *decimal.Decimal
	PaymentMethod string
	Notes         *string
	Items         []ItemInput
}

type LineStatus string

const (
	LineCreated LineStatus = "created"
	LineSkipped LineStatus = "skipped"
)

// LineOutcome reports what happened to one submitted item.
type LineOutcome struct {
	Index     int        `json:"indice"`
	ProductID string     `json:"id_producto"`
	Status    LineStatus `json:"estado"`
	Reason    string     `json:"motivo,omitempty"`
	LineID    *uuid.UUID `json:"id_detalle,omitempty"`
}

type CreateOrderResult struct {
	OrderID uuid.UUID     `json:"id_pedido"`
	Lines   []LineOutcome `json:"lineas"`
}

// Skipped counts the items that did not become order lines.
func (r *CreateOrderResult) Skipped() int {
	n := 0
	for _, line := range r.Lines {
		if line.Status == LineSkipped {
			n++
		}
	}
	return n
}

type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      string
	ActorRole   enums.Role
	ActorUserID uuid.UUID
}

type StockStatus string

const (
	StockAdjusted StockStatus = "adjusted"
	StockFailed   StockStatus = "failed"
)

// StockOutcome is the result of one per-line stock adjustment.
type StockOutcome struct {
	ProductID uuid.UUID   `json:"id_producto"`
	Delta     int         `json:"delta"`
	Status    StockStatus `json:"estado"`
	Error     string      `json:"error,omitempty"`
}

type StatusUpdateResult struct {
	OrderID        uuid.UUID         `json:"id_pedido"`
	PreviousStatus enums.OrderStatus `json:"estado_anterior"`
	Status         enums.OrderStatus `json:"estado"`
	Stock          []StockOutcome    `json:"stock,omitempty"`
}

// Failures returns the adjustments that did not apply.
func (r *StatusUpdateResult) Failures() []StockOutcome {
	var failed []StockOutcome
	for _, outcome := range r.Stock {
		if outcome.Status == StockFailed {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

type OrderSummary struct {
	ID           uuid.UUID         `json:"id_pedido"`
	OrderedAt    time.Time         `json:"fecha_pedido"`
	Status       enums.OrderStatus `json:"estado"`
	Total        decimal.Decimal   `json:"total"`
	ProductName  *string           `json:"producto_nombre"`
	ProductImage *string           `json:"producto_imagen"`
	TotalItems   int               `json:"total_items"`
}

type MyOrderSummary struct {
	OrderSummary
	HasReturn bool `json:"tiene_devolucion"`
}

type OrderList struct {
	Orders     []OrderSummary `json:"pedidos"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type AddressView struct {
	Street     *string `json:"calle"`
	City       *string `json:"ciudad"`
	PostalCode *string `json:"codigo_postal"`
	Country    *string `json:"pais"`
}

type OrderHeader struct {
	ID          uuid.UUID         `json:"id_pedido"`
	UserID      uuid.UUID         `json:"-"`
	OrderedAt   time.Time         `json:"fecha_pedido"`
	DeliveredAt *time.Time        `json:"fecha_entrega,omitempty"`
	Status      enums.OrderStatus `json:"estado"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Taxes       decimal.Decimal   `json:"impuestos"`
	Total       decimal.Decimal   `json:"total"`
	Address     AddressView       `json:"direccion"`
}

type DetailLine struct {
	ID           uuid.UUID       `json:"id_detalle"`
	ProductID    uuid.UUID       `json:"id_producto"`
	ProductName  string          `json:"producto_nombre"`
	ProductImage *string         `json:"producto_imagen"`
	Quantity     int             `json:"cantidad"`
	UnitPrice    decimal.Decimal `json:"precio_unitario"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type OrderDetails struct {
	Order OrderHeader  `json:"order"`
	Items []DetailLine `json:"items"`
}
