package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrProductNotFound is returned when a stock change targets a missing product.
var ErrProductNotFound = errors.New("product not found")

// ErrInsufficientStock is returned when a decrement would take stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository persists stock, warehouse records and the movement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	AddStock(ctx context.Context, productID uuid.UUID, delta int) error
	StockOf(ctx context.Context, productID uuid.UUID) (int, error)
	FindRecordForUpdate(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error)
	CreateRecord(ctx context.Context, record *models.InventoryRecord) error
	AddAvailable(ctx context.Context, recordID uuid.UUID, qty int) error
	InsertMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovements(ctx context.Context, limit int) ([]MovementView, error)
	ListLowStock(ctx context.Context) ([]LowStockItem, error)
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

// AddStock applies stock = stock + delta. A decrement only matches rows that
// still hold at least -delta units.
func (r *repository) AddStock(ctx context.Context, productID uuid.UUID, delta int) error {
	q := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID)
	if delta < 0 {
		q = q.Where("stock >= ?", -delta)
	}
	res := q.Updates(map[string]any{
		"stock":      gorm.Expr("stock + ?", delta),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if delta >= 0 {
		return ErrProductNotFound
	}
	if _, err := r.StockOf(ctx, productID); err != nil {
		return err
	}
	return ErrInsufficientStock
}

func (r *repository) StockOf(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select("stock").
		Where("id = ?", productID).
		Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProductNotFound
	}
	return product.Stock, err
}

// FindRecordForUpdate returns nil when the product has no warehouse record yet.
func (r *repository) FindRecordForUpdate(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("product_id = ?", productID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) AddAvailable(ctx context.Context, recordID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(movement).Error
}

type movementRow struct {
	ID                uuid.UUID          `gorm:"column:id"`
	ProductID         uuid.UUID          `gorm:"column:product_id"`
	ProductName       string             `gorm:"column:product_name"`
	MovementType      enums.MovementType `gorm:"column:movement_type"`
	Quantity          int                `gorm:"column:quantity"`
	CreatedAt         time.Time          `gorm:"column:created_at"`
	ExternalReference *string            `gorm:"column:external_reference"`
	UserID            uuid.UUID          `gorm:"column:user_id"`
	UserFirstName     string             `gorm:"column:user_first_name"`
	UserLastName      string             `gorm:"column:user_last_name"`
}

func (r *repository) ListMovements(ctx context.Context, limit int) ([]MovementView, error) {
	var rows []movementRow
	err := r.db.WithContext(ctx).
		Table("inventory_movements AS m").
		Select(`m.id, m.product_id, p.name AS product_name, m.movement_type, m.quantity,
			m.created_at, m.external_reference, u.id AS user_id,
			u.first_name AS user_first_name, u.last_name AS user_last_name`).
		Joins("JOIN products p ON p.id = m.product_id").
		Joins("JOIN users u ON u.id = m.user_id").
		Order("m.created_at DESC").
		Order("m.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]MovementView, 0, len(rows))
	for _, row := range rows {
		views = append(views, MovementView{
			ID:                row.ID,
			ProductID:         row.ProductID,
			ProductName:       row.ProductName,
			MovementType:      row.MovementType,
			Quantity:          row.Quantity,
			CreatedAt:         row.CreatedAt,
			ExternalReference: row.ExternalReference,
			User: MovementUser{
				ID:        row.UserID,
				FirstName: row.UserFirstName,
				LastName:  row.UserLastName,
			},
		})
	}
	return views, nil
}

func (r *repository) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	var items []LowStockItem
	err := r.db.WithContext(ctx).
		Table("inventory_records AS i").
		Select("i.product_id, p.name AS product_name, p.stock, i.min_stock").
		Joins("JOIN products p ON p.id = i.product_id").
		Where("p.stock < i.min_stock").
		Order("p.stock ASC").
		Scan(&items).Error
	return items, err
}
