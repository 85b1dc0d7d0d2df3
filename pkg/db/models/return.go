package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Return is a customer request to send back a delivered order.
type Return struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	Reason       string             `gorm:"column:reason;not null"`
	Status       enums.ReturnStatus `gorm:"column:status;type:return_status;not null"`
	RefundAmount decimal.Decimal    `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	RequestedAt  time.Time          `gorm:"column:requested_at;not null"`
	ResolvedAt   *time.Time         `gorm:"column:resolved_at"`
}

func (Return) TableName() string { return "returns" }

type SupportTicket struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	Subject     string               `gorm:"column:subject;not null"`
	Description string               `gorm:"column:description;not null"`
	Priority    enums.TicketPriority `gorm:"column:priority;type:ticket_priority;not null"`
	Status      enums.TicketStatus   `gorm:"column:status;type:ticket_status;not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (SupportTicket) TableName() string { return "support_tickets" }
