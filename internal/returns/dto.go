package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// MinReasonLength is measured in characters after trimming.
const MinReasonLength = 5

type CreateInput struct {
	UserID     uuid.UUID
	OrderID    uuid.UUID
	Reason     string
	ReasonType string
}

type CreateResult struct {
	ReturnID     uuid.UUID            `json:"id_devolucion"`
	OrderID      uuid.UUID            `json:"id_pedido"`
	RefundAmount decimal.Decimal      `json:"monto_reembolso"`
	Priority     enums.TicketPriority `json:"prioridad"`
}

type UpdateInput struct {
	ReturnID    uuid.UUID
	Status      string
	ActorRole   enums.Role
	ActorUserID uuid.UUID
}

// UpdateResult.Changed is false when the return already had the requested status.
type UpdateResult struct {
	ReturnID uuid.UUID          `json:"id_devolucion"`
	Status   enums.ReturnStatus `json:"estado"`
	Changed  bool               `json:"cambiado"`
}

type ReturnView struct {
	ID           uuid.UUID          `json:"id_devolucion"`
	OrderID      uuid.UUID          `json:"id_pedido"`
	Reason       string             `json:"motivo"`
	Status       enums.ReturnStatus `json:"estado"`
	RefundAmount decimal.Decimal    `json:"monto_reembolso"`
	RequestedAt  time.Time          `json:"fecha_solicitud"`
	ResolvedAt   *time.Time         `json:"fecha_resolucion"`
}

// AdminReturnView adds the order total for staff listings.
type AdminReturnView struct {
	ReturnView
	OrderTotal decimal.Decimal `json:"total_pedido"`
}

func toView(r *models.Return) ReturnView {
	return ReturnView{
		ID:           r.ID,
		OrderID:      r.OrderID,
		Reason:       r.Reason,
		Status:       r.Status,
		RefundAmount: r.RefundAmount,
		RequestedAt:  r.RequestedAt,
		ResolvedAt:   r.ResolvedAt,
	}
}
