package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// MaxBatchPercent is the exclusive upper bound for batch discounts.
var MaxBatchPercent = decimal.NewFromInt(90)

type CreateInput struct {
	Code          string
	Description   *string
	DiscountType  enums.DiscountType
	DiscountValue decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	MaxUses       *int
	Active        *bool
	ProductIDs    []string
	UserID        uuid.UUID
	ActorRole     enums.Role
}

type BatchDiscountInput struct {
	ProductIDs []string
	Percent    decimal.Decimal
	ActorRole  enums.Role
}

type BatchDiscountResult struct {
	UpdatedCount int64       `json:"updatedCount"`
	ProductIDs   []uuid.UUID `json:"productIds"`
}

// PromotionView is the wire shape of a promotion.
type PromotionView struct {
	ID            uuid.UUID          `json:"id_promocion"`
	Code          string             `json:"codigo"`
	Description   *string            `json:"descripcion"`
	DiscountType  enums.DiscountType `json:"tipo_descuento"`
	DiscountValue decimal.Decimal    `json:"valor_descuento"`
	StartDate     string             `json:"fecha_inicio"`
	EndDate       string             `json:"fecha_fin"`
	MaxUses       *int               `json:"usos_maximos"`
	CurrentUses   int                `json:"usos_actuales"`
	Active        bool               `json:"activa"`
}

type PromotionProduct struct {
	ID       uuid.UUID       `json:"id_producto"`
	Name     string          `json:"nombre"`
	Price    decimal.Decimal `json:"precio"`
	ImageURL *string         `json:"imagen_principal"`
}

type PromotionWithProducts struct {
	PromotionView
	Products []PromotionProduct `json:"productos"`
}

// Conflict names a product already covered by a running promotion.
type Conflict struct {
	ProductID     uuid.UUID `json:"id" gorm:"column:product_id"`
	ProductName   string    `json:"nombre" gorm:"column:product_name"`
	PromotionCode string    `json:"promocion" gorm:"column:code"`
	EndDate       time.Time `json:"fecha_fin" gorm:"column:end_date"`
}

const dateLayout = "2006-01-02"

func toView(p models.Promotion) PromotionView {
	return PromotionView{
		ID:            p.ID,
		Code:          p.Code,
		Description:   p.Description,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		StartDate:     p.StartDate.UTC().Format(dateLayout),
		EndDate:       p.EndDate.UTC().Format(dateLayout),
		MaxUses:       p.MaxUses,
		CurrentUses:   p.CurrentUses,
		Active:        p.Active,
	}
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
