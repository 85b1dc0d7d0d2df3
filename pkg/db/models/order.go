package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order totals are stored exactly as the client submitted them.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	AddressID   uuid.UUID         `gorm:"column:address_id;type:uuid;not null"`
	Subtotal    decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Taxes       decimal.Decimal   `gorm:"column:taxes;type:numeric(12,2);not null"`
	Total       decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	Notes       *string           `gorm:"column:notes"`
	OrderedAt   time.Time         `gorm:"column:ordered_at;not null"`
	DeliveredAt *time.Time        `gorm:"column:delivered_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	Lines       []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// OrderLine is immutable once written. Position preserves submission order.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Position  int             `gorm:"column:position;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
}

func (OrderLine) TableName() string { return "order_lines" }

type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	TransactionID *string             `gorm:"column:transaction_id"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
