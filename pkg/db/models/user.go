package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type User struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	FirstName string     `gorm:"column:first_name;not null"`
	LastName  string     `gorm:"column:last_name;not null"`
	Email     string     `gorm:"column:email;not null;uniqueIndex"`
	Role      enums.Role `gorm:"column:role;type:user_role;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string { return "users" }

// Address is a shipping destination referenced by orders.
type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Line1      string    `gorm:"column:line1;not null"`
	City       string    `gorm:"column:city;not null"`
	PostalCode string    `gorm:"column:postal_code"`
	Country    string    `gorm:"column:country;not null"`
}

func (Address) TableName() string { return "addresses" }

// CartItem rows are emptied when an order is placed.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	AddedAt   time.Time `gorm:"column:added_at;autoCreateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
