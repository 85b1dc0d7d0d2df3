package promotions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	ActiveConflicts(ctx context.Context, productIDs []uuid.UUID, today time.Time) ([]Conflict, error)
	Create(ctx context.Context, promo *models.Promotion) error
	LinkProduct(ctx context.Context, promotionID, productID uuid.UUID) error
	SetPrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error
	InsertPriceHistory(ctx context.Context, entry *models.PriceHistory) error
	ProductsOf(ctx context.Context, promotionID uuid.UUID) ([]PromotionProduct, error)
	ExistingProductIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	ScalePrices(ctx context.Context, ids []uuid.UUID, factor decimal.Decimal) (int64, error)
	List(ctx context.Context) ([]models.Promotion, error)
	LockExpired(ctx context.Context, today time.Time) ([]models.Promotion, error)
	Deactivate(ctx context.Context, ids []uuid.UUID) error
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

// LockProducts takes row locks in id order so concurrent promotions over
// overlapping products serialize instead of deadlocking.
func (r *repository) LockProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	return products, err
}

func (r *repository) ActiveConflicts(ctx context.Context, productIDs []uuid.UUID, today time.Time) ([]Conflict, error) {
	var conflicts []Conflict
	err := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.id AS product_id, p.name AS product_name, pr.code, pr.end_date").
		Joins("JOIN product_promotions pp ON pp.product_id = p.id").
		Joins("JOIN promotions pr ON pr.id = pp.promotion_id").
		Where("p.id IN ?", productIDs).
		Where("pr.active = ? AND pr.end_date >= ?", true, today).
		Order("p.name").
		Scan(&conflicts).Error
	return conflicts, err
}

func (r *repository) Create(ctx context.Context, promo *models.Promotion) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *repository) LinkProduct(ctx context.Context, promotionID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProductPromotion{ProductID: productID, PromotionID: promotionID}).Error
}

func (r *repository) SetPrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{"price": price, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) InsertPriceHistory(ctx context.Context, entry *models.PriceHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ProductsOf(ctx context.Context, promotionID uuid.UUID) ([]PromotionProduct, error) {
	var products []PromotionProduct
	err := r.db.WithContext(ctx).
		Table("product_promotions AS pp").
		Select("p.id, p.name, p.price, p.image_url").
		Joins("JOIN products p ON p.id = pp.product_id").
		Where("pp.promotion_id = ?", promotionID).
		Order("p.name").
		Scan(&products).Error
	return products, err
}

func (r *repository) ExistingProductIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var found []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	return found, err
}

// ScalePrices multiplies every selected price by factor in one statement.
func (r *repository) ScalePrices(ctx context.Context, ids []uuid.UUID, factor decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"price":      gorm.Expr("ROUND(price * ?, 2)", factor),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := r.db.WithContext(ctx).
		Order("start_date DESC").
		Order("id DESC").
		Find(&promos).Error
	return promos, err
}

func (r *repository) LockExpired(ctx context.Context, today time.Time) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("active = ? AND end_date < ?", true, today).
		Order("end_date").
		Find(&promos).Error
	return promos, err
}

func (r *repository) Deactivate(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id IN ?", ids).
		Update("active", false).Error
}
