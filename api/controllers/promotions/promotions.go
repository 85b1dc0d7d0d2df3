package promotions

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalpromotions "github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createRequest struct {
	Code          string          `json:"codigo" validate:"required"`
	Description   *string         `json:"descripcion"`
	DiscountType  string          `json:"tipo_descuento" validate:"required"`
	DiscountValue decimal.Decimal `json:"valor_descuento"`
	StartDate     string          `json:"fecha_inicio" validate:"required"`
	EndDate       string          `json:"fecha_fin" validate:"required"`
	MaxUses       *int            `json:"usos_maximos"`
	Active        *bool           `json:"activa"`
	ProductIDs    []string        `json:"productIds" validate:"required,min=1"`
}

type discountRequest struct {
	ProductIDs      []string         `json:"productIds" validate:"required,min=1"`
	DiscountPercent *decimal.Decimal `json:"discountPercent" validate:"required"`
}

// Create registers a promotion and returns it with the covered products.
func Create(svc internalpromotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountType, err := enums.ParseDiscountType(strings.TrimSpace(body.DiscountType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type").
				WithDetails(map[string]any{"field": "tipo_descuento"}))
			return
		}
		start, err := validators.ParseDate("fecha_inicio", body.StartDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseDate("fecha_fin", body.EndDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.CreatePromotion(r.Context(), internalpromotions.CreateInput{
			Code:          body.Code,
			Description:   body.Description,
			DiscountType:  discountType,
			DiscountValue: body.DiscountValue,
			StartDate:     start,
			EndDate:       end,
			MaxUses:       body.MaxUses,
			Active:        body.Active,
			ProductIDs:    body.ProductIDs,
			UserID:        middleware.UserIDFromContext(r.Context()),
			ActorRole:     middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promo)
	}
}

func List(svc internalpromotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		promos, err := svc.ListPromotions(r.Context(), middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promos)
	}
}

// BatchDiscount lowers the price of several products by one percentage.
func BatchDiscount(svc internalpromotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body discountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ApplyBatchDiscount(r.Context(), internalpromotions.BatchDiscountInput{
			ProductIDs: body.ProductIDs,
			Percent:    *body.DiscountPercent,
			ActorRole:  middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
