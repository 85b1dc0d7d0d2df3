// Package dbtest opens throwaway SQLite databases carrying the storefront
// schema, plus fixture helpers for repository and service tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

// Open returns a client over a private in-memory database.
func Open(t *testing.T) *db.Client {
	t.Helper()
	conn, err := db.Open(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.ApplySQLite(context.Background(), conn))
	return db.FromGorm(conn)
}

func SeedUser(t *testing.T, client *db.Client, role enums.Role) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:        id,
		FirstName: "Ana",
		LastName:  "Pérez",
		Email:     id.String() + "@example.com",
		Role:      role,
	}
	require.NoError(t, client.DB().Create(&user).Error)
	return user
}

func SeedAddress(t *testing.T, client *db.Client, userID uuid.UUID) models.Address {
	t.Helper()
	addr := models.Address{ID: uuid.New(), UserID: userID, Line1: "Av. Central 123", City: "Lima", Country: "PE"}
	require.NoError(t, client.DB().Create(&addr).Error)
	return addr
}

func SeedProduct(t *testing.T, client *db.Client, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:    uuid.New(),
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	require.NoError(t, client.DB().Create(&product).Error)
	return product
}

func SeedCartItem(t *testing.T, client *db.Client, userID, productID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, client.DB().Create(&models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
	}).Error)
}

// OrderFixture describes an order to insert directly, bypassing the workflow.
type OrderFixture struct {
	UserID      uuid.UUID
	AddressID   uuid.UUID
	Subtotal    string
	Taxes       string
	Total       string
	Status      enums.OrderStatus
	OrderedAt   time.Time
	DeliveredAt *time.Time
	Lines       []LineFixture
}

type LineFixture struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice string
}

// SeedOrder writes the order, its lines and an approved card payment.
func SeedOrder(t *testing.T, client *db.Client, f OrderFixture) models.Order {
	t.Helper()
	if f.Status == "" {
		f.Status = enums.OrderStatusPending
	}
	if f.OrderedAt.IsZero() {
		f.OrderedAt = time.Now().UTC()
	}
	order := models.Order{
		ID:          uuid.New(),
		UserID:      f.UserID,
		AddressID:   f.AddressID,
		Subtotal:    decimal.RequireFromString(f.Subtotal),
		Taxes:       decimal.RequireFromString(f.Taxes),
		Total:       decimal.RequireFromString(f.Total),
		Status:      f.Status,
		OrderedAt:   f.OrderedAt,
		DeliveredAt: f.DeliveredAt,
	}
	require.NoError(t, client.DB().Omit("Lines").Create(&order).Error)

	for i, l := range f.Lines {
		price := decimal.RequireFromString(l.UnitPrice)
		line := models.OrderLine{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: l.ProductID,
			Position:  i,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
		}
		require.NoError(t, client.DB().Create(&line).Error)
		order.Lines = append(order.Lines, line)
	}

	require.NoError(t, client.DB().Create(&models.Payment{
		ID:      uuid.New(),
		OrderID: order.ID,
		Method:  enums.PaymentMethodCard,
		Amount:  order.Total,
		Status:  enums.PaymentStatusApproved,
	}).Error)
	return order
}

// Stock reads the current product stock.
func Stock(t *testing.T, client *db.Client, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, client.DB().Where("id = ?", productID).First(&product).Error)
	return product.Stock
}

// Count returns the number of rows in table matching the optional condition.
func Count(t *testing.T, client *db.Client, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := client.DB().Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
