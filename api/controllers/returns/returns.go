package returns

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalreturns "github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createRequest struct {
	Reason     string `json:"motivo"`
	ReasonType string `json:"motivo_tipo"`
}

type updateStatusRequest struct {
	Status string `json:"estado" validate:"required"`
}

// Create opens a return request on one of the caller's delivered orders.
// Reason length is judged by the service.
func Create(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateReturnRequest(r.Context(), internalreturns.CreateInput{
			UserID:     middleware.UserIDFromContext(r.Context()),
			OrderID:    orderID,
			Reason:     body.Reason,
			ReasonType: body.ReasonType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Latest returns the newest return of the caller's order. An order without
// returns answers 404.
func Latest(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetLatestForOrder(r.Context(), middleware.UserIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpdateStatus(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := validators.ParseUUIDParam(r, "returnID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateReturnStatus(r.Context(), internalreturns.UpdateInput{
			ReturnID:    returnID,
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

func AdminList(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ListAll(r.Context(), middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}
