package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the provided database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Lines").Create(order).Error
}

func (r *repository) CreateLine(ctx context.Context, line *models.OrderLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) ClearCart(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// FindForUpdate returns gorm.ErrRecordNotFound when the order is absent.
func (r *repository) FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

func (r *repository) Lines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

const summaryColumns = `o.id, o.ordered_at, o.status, o.total,
	(SELECT p.name FROM order_lines l JOIN products p ON p.id = l.product_id
	  WHERE l.order_id = o.id ORDER BY l.position ASC LIMIT 1) AS product_name,
	(SELECT p.image_url FROM order_lines l JOIN products p ON p.id = l.product_id
	  WHERE l.order_id = o.id AND p.image_url IS NOT NULL ORDER BY l.position ASC LIMIT 1) AS product_image,
	(SELECT COALESCE(SUM(l.quantity), 0) FROM order_lines l WHERE l.order_id = o.id) AS total_items`

type myOrderRow struct {
	OrderSummary
	HasReturn bool `gorm:"column:has_return"`
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]MyOrderSummary, error) {
	var rows []myOrderRow
	err := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(summaryColumns+`,
			EXISTS (SELECT 1 FROM returns rt WHERE rt.order_id = o.id) AS has_return`).
		Where("o.user_id = ?", userID).
		Order("o.ordered_at DESC").
		Order("o.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]MyOrderSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, MyOrderSummary{OrderSummary: row.OrderSummary, HasReturn: row.HasReturn})
	}
	return out, nil
}

// ListAll pages through every order newest first; limit should already carry
// the one-row lookahead.
func (r *repository) ListAll(ctx context.Context, limit int, cursor *pagination.Cursor) ([]OrderSummary, error) {
	q := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(summaryColumns)
	if cursor != nil {
		q = q.Where("(o.ordered_at < ?) OR (o.ordered_at = ? AND o.id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []OrderSummary
	err := q.Order("o.ordered_at DESC").
		Order("o.id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

type headerRow struct {
	ID          uuid.UUID         `gorm:"column:id"`
	UserID      uuid.UUID         `gorm:"column:user_id"`
	OrderedAt   time.Time         `gorm:"column:ordered_at"`
	DeliveredAt *time.Time        `gorm:"column:delivered_at"`
	Status      enums.OrderStatus `gorm:"column:status"`
	Subtotal    decimal.Decimal   `gorm:"column:subtotal"`
	Taxes       decimal.Decimal   `gorm:"column:taxes"`
	Total       decimal.Decimal   `gorm:"column:total"`
	Street      *string           `gorm:"column:street"`
	City        *string           `gorm:"column:city"`
	PostalCode  *string           `gorm:"column:postal_code"`
	Country     *string           `gorm:"column:country"`
}

// FindHeader returns gorm.ErrRecordNotFound when the order is absent.
func (r *repository) FindHeader(ctx context.Context, orderID uuid.UUID) (*OrderHeader, error) {
	var rows []headerRow
	err := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(`o.id, o.user_id, o.ordered_at, o.delivered_at, o.status, o.subtotal, o.taxes, o.total,
			a.line1 AS street, a.city, a.postal_code, a.country`).
		Joins("LEFT JOIN addresses a ON a.id = o.address_id").
		Where("o.id = ?", orderID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	row := rows[0]
	return &OrderHeader{
		ID:          row.ID,
		UserID:      row.UserID,
		OrderedAt:   row.OrderedAt,
		DeliveredAt: row.DeliveredAt,
		Status:      row.Status,
		Subtotal:    row.Subtotal,
		Taxes:       row.Taxes,
		Total:       row.Total,
		Address: AddressView{
			Street:     row.Street,
			City:       row.City,
			PostalCode: row.PostalCode,
			Country:    row.Country,
		},
	}, nil
}

func (r *repository) DetailLines(ctx context.Context, orderID uuid.UUID) ([]DetailLine, error) {
	var lines []DetailLine
	err := r.db.WithContext(ctx).
		Table("order_lines AS l").
		Select(`l.id, l.product_id, p.name AS product_name, p.image_url AS product_image,
			l.quantity, l.unit_price, l.subtotal`).
		Joins("JOIN products p ON p.id = l.product_id").
		Where("l.order_id = ?", orderID).
		Order("l.position ASC").
		Scan(&lines).Error
	return lines, err
}
