package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order, its lines and payment commit.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Taxes         decimal.Decimal     `json:"taxes"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	LineCount     int                 `json:"line_count"`
	SkippedCount  int                 `json:"skipped_count"`
	OrderedAt     time.Time           `json:"ordered_at"`
}

// OrderStatusChangedEvent carries the transition and any stock adjustments
// that could not be applied.
type OrderStatusChangedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	PreviousStatus   enums.OrderStatus `json:"previous_status"`
	Status           enums.OrderStatus `json:"status"`
	Total            decimal.Decimal   `json:"total"`
	StockAdjusted    int               `json:"stock_adjusted"`
	StockFailures    int               `json:"stock_failures"`
	FailedProductIDs []uuid.UUID       `json:"failed_product_ids,omitempty"`
	ChangedAt        time.Time         `json:"changed_at"`
}

type ReturnRequestedEvent struct {
	ReturnID     uuid.UUID            `json:"return_id"`
	OrderID      uuid.UUID            `json:"order_id"`
	UserID       uuid.UUID            `json:"user_id"`
	RefundAmount decimal.Decimal      `json:"refund_amount"`
	Defective    bool                 `json:"defective"`
	Priority     enums.TicketPriority `json:"priority"`
}

type ReturnStatusChangedEvent struct {
	ReturnID       uuid.UUID          `json:"return_id"`
	OrderID        uuid.UUID          `json:"order_id"`
	PreviousStatus enums.ReturnStatus `json:"previous_status"`
	Status         enums.ReturnStatus `json:"status"`
	RefundAmount   decimal.Decimal    `json:"refund_amount"`
}

type PromotionCreatedEvent struct {
	PromotionID   uuid.UUID          `json:"promotion_id"`
	Code          string             `json:"code"`
	DiscountType  enums.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	ProductIDs    []uuid.UUID        `json:"product_ids"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
}

// PromotionExpiredEvent is emitted by the expiry job when it deactivates a promotion.
type PromotionExpiredEvent struct {
	PromotionID uuid.UUID `json:"promotion_id"`
	Code        string    `json:"code"`
	EndDate     time.Time `json:"end_date"`
}

type LotRegisteredEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	NewStock  int       `json:"new_stock"`
	UserID    uuid.UUID `json:"user_id"`
	Reference *string   `json:"reference,omitempty"`
}

// LowStockEvent flags a product whose stock fell under its threshold.
type LowStockEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
}

// Subject returns the id of the aggregate an event describes. The publisher
// checks it against the outbox row before sending.
func (e OrderCreatedEvent) Subject() uuid.UUID        { return e.OrderID }
func (e OrderStatusChangedEvent) Subject() uuid.UUID  { return e.OrderID }
func (e ReturnRequestedEvent) Subject() uuid.UUID     { return e.ReturnID }
func (e ReturnStatusChangedEvent) Subject() uuid.UUID { return e.ReturnID }
func (e PromotionCreatedEvent) Subject() uuid.UUID    { return e.PromotionID }
func (e PromotionExpiredEvent) Subject() uuid.UUID    { return e.PromotionID }
func (e LotRegisteredEvent) Subject() uuid.UUID       { return e.ProductID }
func (e LowStockEvent) Subject() uuid.UUID            { return e.ProductID }
