package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type createItemRequest struct {
	ProductID validators.FlexString `json:"id_producto"`
	Quantity  validators.FlexString `json:"cantidad"`
	UnitPrice validators.FlexString `json:"precio_unitario"`
}

type createOrderRequest struct {
	AddressID     string              `json:"id_direccion" validate:"required"`
	Subtotal      *decimal.Decimal    `json:"subtotal" validate:"required"`
	Taxes         *decimal.Decimal    `json:"impuestos" validate:"required"`
	Total         *decimal.Decimal    `json:"total" validate:"required"`
	PaymentMethod string              `json:"metodo_pago" validate:"required"`
	Notes         *string             `json:"notas"`
	Items         []createItemRequest `json:"items" validate:"required,min=1"`
}

type updateStatusRequest struct {
	Status string `json:"estado" validate:"required"`
}

// Create places an order for the caller from the submitted cart lines.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		addressID, err := uuid.Parse(strings.TrimSpace(body.AddressID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid address id").
				WithDetails(map[string]any{"field": "id_direccion"}))
			return
		}

		items := make([]internalorders.ItemInput, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, internalorders.ItemInput{
				ProductID: item.ProductID.String(),
				Quantity:  item.Quantity.String(),
				UnitPrice: item.UnitPrice.String(),
			})
		}

		result, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			UserID:        middleware.UserIDFromContext(r.Context()),
			AddressID:     addressID,
			Subtotal:      body.Subtotal,
			Taxes:         body.Taxes,
			Total:         body.Total,
			PaymentMethod: body.PaymentMethod,
			Notes:         body.Notes,
			Items:         items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Mine lists the caller's orders, newest first.
func Mine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListMyOrders(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders)
	}
}

// Detail returns an order with its lines to the owner or staff.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		details, err := svc.GetOrderDetails(r.Context(), orderID, internalorders.Viewer{
			UserID: middleware.UserIDFromContext(r.Context()),
			Role:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, details)
	}
}

// UpdateStatus moves an order to a new status and applies the stock effect.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateOrderStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:     orderID,
			Status:      body.Status,
			ActorRole:   middleware.RoleFromContext(r.Context()),
			ActorUserID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminList pages through every order for staff.
func AdminList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListAllOrders(r.Context(), middleware.RoleFromContext(r.Context()), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
