package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DefaultMinStock is the alert threshold given to lazily created records.
const DefaultMinStock = 10

// InventoryRecord is the per-product warehouse view. It is created on the first
// lot registration and is separate from Product.Stock.
type InventoryRecord struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	AvailableQty int       `gorm:"column:available_qty;not null"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null"`
	MinStock     int       `gorm:"column:min_stock;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory_records" }

// InventoryMovement is an append-only ledger entry.
type InventoryMovement struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID          `gorm:"column:product_id;type:uuid;not null"`
	MovementType      enums.MovementType `gorm:"column:movement_type;type:movement_type;not null"`
	Quantity          int                `gorm:"column:quantity;not null"`
	UserID            uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	ExternalReference *string            `gorm:"column:external_reference"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryMovement) TableName() string { return "inventory_movements" }
