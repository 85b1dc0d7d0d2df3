package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists returns and the order, payment and ticket rows a
// resolution touches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	HasRequested(ctx context.Context, orderID uuid.UUID) (bool, error)
	LinesTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
	Create(ctx context.Context, ret *models.Return) error
	CreateTicket(ctx context.Context, ticket *models.SupportTicket) error
	LockReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error)
	UpdateReturn(ctx context.Context, returnID uuid.UUID, status enums.ReturnStatus, resolvedAt time.Time) error
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error
	CloseTickets(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
	Latest(ctx context.Context, orderID uuid.UUID) (*models.Return, error)
	ListAll(ctx context.Context) ([]AdminReturnView, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) HasRequested(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReturnStatusRequested).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

func (r *repository) LinesTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Select("SUM(subtotal)").
		Where("order_id = ?", orderID).
		Row().
		Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

func (r *repository) Create(ctx context.Context, ret *models.Return) error {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) CreateTicket(ctx context.Context, ticket *models.SupportTicket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *repository) LockReturn(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	var ret models.Return
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", returnID).Take(&ret).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) UpdateReturn(ctx context.Context, returnID uuid.UUID, status enums.ReturnStatus, resolvedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id = ?", returnID).
		Updates(map[string]any{"status": status, "resolved_at": resolvedAt}).Error
}

func (r *repository) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) CloseTickets(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SupportTicket{}).
		Where("order_id = ? AND status <> ?", orderID, enums.TicketStatusClosed).
		Updates(map[string]any{"status": enums.TicketStatusClosed, "updated_at": at})
	return res.RowsAffected, res.Error
}

// Latest returns nil when the order has no returns.
func (r *repository) Latest(ctx context.Context, orderID uuid.UUID) (*models.Return, error) {
	var rets []models.Return
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("requested_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rets).Error
	if err != nil || len(rets) == 0 {
		return nil, err
	}
	return &rets[0], nil
}

type adminRow struct {
	models.Return
	OrderTotal decimal.Decimal `gorm:"column:order_total"`
}

func (r *repository) ListAll(ctx context.Context) ([]AdminReturnView, error) {
	var rows []adminRow
	err := r.db.WithContext(ctx).
		Table("returns AS r").
		Select("r.*, o.total AS order_total").
		Joins("JOIN orders o ON o.id = r.order_id").
		Order("r.requested_at DESC").
		Order("r.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	views := make([]AdminReturnView, 0, len(rows))
	for i := range rows {
		views = append(views, AdminReturnView{
			ReturnView: toView(&rows[i].Return),
			OrderTotal: rows[i].OrderTotal,
		})
	}
	return views, nil
}
