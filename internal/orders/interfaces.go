package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for order, line and payment tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLine(ctx context.Context, line *models.OrderLine) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	ClearCart(ctx context.Context, userID uuid.UUID) (int64, error)
	FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	Lines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]MyOrderSummary, error)
	ListAll(ctx context.Context, limit int, cursor *pagination.Cursor) ([]OrderSummary, error)
	FindHeader(ctx context.Context, orderID uuid.UUID) (*OrderHeader, error)
	DetailLines(ctx context.Context, orderID uuid.UUID) ([]DetailLine, error)
}

// StockAdjuster applies a stock delta inside the caller's transaction.
// inventory.Service satisfies it.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error
}

// stockDirection returns the per-unit sign applied to order lines when an
// order moves from prev to next, or 0 when stock is untouched.
func stockDirection(prev, next enums.OrderStatus) int {
	switch {
	case next == enums.OrderStatusDelivered && prev != enums.OrderStatusDelivered:
		return -1
	case next == enums.OrderStatusCancelled && prev == enums.OrderStatusDelivered:
		return 1
	default:
		return 0
	}
}
