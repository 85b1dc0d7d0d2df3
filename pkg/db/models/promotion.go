package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type Promotion struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code          string             `gorm:"column:code;not null;uniqueIndex"`
	Description   *string            `gorm:"column:description"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	StartDate     time.Time          `gorm:"column:start_date;type:date;not null"`
	EndDate       time.Time          `gorm:"column:end_date;type:date;not null"`
	MaxUses       *int               `gorm:"column:max_uses"`
	CurrentUses   int                `gorm:"column:current_uses;not null"`
	Active        bool               `gorm:"column:active;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (Promotion) TableName() string { return "promotions" }

type ProductPromotion struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	PromotionID uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
}

func (ProductPromotion) TableName() string { return "product_promotions" }

// PriceHistory is append-only; one row per promotional reprice.
type PriceHistory struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	PreviousPrice decimal.Decimal `gorm:"column:previous_price;type:numeric(12,2);not null"`
	NewPrice      decimal.Decimal `gorm:"column:new_price;type:numeric(12,2);not null"`
	Reason        string          `gorm:"column:reason;not null"`
	UserID        *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	ChangedAt     time.Time       `gorm:"column:changed_at;autoCreateTime"`
}

func (PriceHistory) TableName() string { return "price_history" }
