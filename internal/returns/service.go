package returns

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/authz"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const openReturnConstraint = "uq_returns_open_per_order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	CreateReturnRequest(ctx context.Context, input CreateInput) (*CreateResult, error)
	UpdateReturnStatus(ctx context.Context, input UpdateInput) (*UpdateResult, error)
	GetLatestForOrder(ctx context.Context, userID, orderID uuid.UUID) (*ReturnView, error)
	ListAll(ctx context.Context, actorRole enums.Role) ([]AdminReturnView, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.WorkflowMetrics
	logg    *logger.Logger
	now     func() time.Time
	loc     *time.Location
}

// NewService builds the return workflow. Business days are counted on
// calendar dates in loc; nil means UTC.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, m *metrics.WorkflowMetrics, loc *time.Location, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
		loc:     loc,
	}, nil
}

func (s *service) CreateReturnRequest(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason := strings.TrimSpace(input.Reason)
	if input.OrderID == uuid.Nil || utf8.RuneCountInString(reason) < MinReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return request").
			WithDetails(map[string]any{"min_reason_length": MinReasonLength})
	}
	reasonType := enums.ParseReturnReasonType(input.ReasonType)
	if reasonType.IsDefective() {
		reason = "[Defectuoso] " + reason
	}

	now := s.now()
	result := &CreateResult{OrderID: input.OrderID}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cannot request a return for this order")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeValidation, "only delivered orders can be returned")
		}

		open, err := repo.HasRequested(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open returns")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeValidation, "a return is already pending for this order")
		}

		linesTotal, err := repo.LinesTotal(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum order lines")
		}
		if !linesTotal.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no product amounts")
		}

		reference := order.OrderedAt
		if order.DeliveredAt != nil {
			reference = *order.DeliveredAt
		}
		days := BusinessDaysBetween(reference.In(s.loc), now.In(s.loc))
		if !reasonType.IsDefective() && days > MaxBusinessDays {
			return pkgerrors.Newf(pkgerrors.CodeValidation,
				"return window expired: at most %d business days after delivery", MaxBusinessDays).
				WithDetails(map[string]any{"business_days": days})
		}

		refund := RefundAmount(order.Subtotal, order.Taxes, order.Total)
		if !refund.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "could not compute a refund for this order")
		}

		ret := &models.Return{
			OrderID:      order.ID,
			Reason:       reason,
			Status:       enums.ReturnStatusRequested,
			RefundAmount: refund,
			RequestedAt:  now,
		}
		if err := repo.Create(ctx, ret); err != nil {
			if db.IsUniqueViolation(err, openReturnConstraint) || db.IsUniqueViolation(err, "returns.order_id") {
				return pkgerrors.New(pkgerrors.CodeValidation, "a return is already pending for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return")
		}

		priority := enums.TicketPriorityMedium
		if refund.GreaterThanOrEqual(PriorityThreshold) {
			priority = enums.TicketPriorityHigh
		}
		if err := repo.CreateTicket(ctx, &models.SupportTicket{
			UserID:      input.UserID,
			OrderID:     order.ID,
			Subject:     fmt.Sprintf("Devolución pedido #%s", order.ID),
			Description: reason,
			Priority:    priority,
			Status:      enums.TicketStatusOpen,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create support ticket")
		}

		result.ReturnID = ret.ID
		result.RefundAmount = refund
		result.Priority = priority

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
			OccurredAt:    now,
			Data: payloads.ReturnRequestedEvent{
				ReturnID:     ret.ID,
				OrderID:      order.ID,
				UserID:       input.UserID,
				RefundAmount: refund,
				Defective:    reasonType.IsDefective(),
				Priority:     priority,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncReturnRequested()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":  input.OrderID.String(),
		"return_id": result.ReturnID.String(),
		"refund":    result.RefundAmount.StringFixed(2),
		"priority":  string(result.Priority),
	}), "return.requested")
	return result, nil
}

// UpdateReturnStatus resolves a return. Approval cancels the order and marks
// the payment refunded; it does not restock.
func (s *service) UpdateReturnStatus(ctx context.Context, input UpdateInput) (*UpdateResult, error) {
	if err := authz.Require(input.ActorRole, enums.RoleAdmin); err != nil {
		return nil, err
	}
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return id")
	}
	next, err := enums.ParseReturnStatus(strings.TrimSpace(input.Status))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}

	result := &UpdateResult{ReturnID: input.ReturnID, Status: next}
	var orderID uuid.UUID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ret, err := repo.LockReturn(ctx, input.ReturnID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return")
		}
		orderID = ret.OrderID
		if ret.Status == next {
			return nil
		}

		now := s.now()
		if err := repo.UpdateReturn(ctx, ret.ID, next, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update return")
		}

		switch next {
		case enums.ReturnStatusApproved:
			if err := repo.SetOrderStatus(ctx, ret.OrderID, enums.OrderStatusCancelled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
			}
			if err := repo.SetPaymentStatus(ctx, ret.OrderID, enums.PaymentStatusRefunded); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund payment")
			}
		case enums.ReturnStatusRejected:
			if err := repo.SetOrderStatus(ctx, ret.OrderID, enums.OrderStatusDelivered); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore order status")
			}
		}
		if next.ClosesTicket() {
			if _, err := repo.CloseTickets(ctx, ret.OrderID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close tickets")
			}
		}

		result.Changed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnStatusChanged,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()},
			OccurredAt:    now,
			Data: payloads.ReturnStatusChangedEvent{
				ReturnID:       ret.ID,
				OrderID:        ret.OrderID,
				PreviousStatus: ret.Status,
				Status:         next,
				RefundAmount:   ret.RefundAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"return_id": input.ReturnID.String(),
		"order_id":  orderID.String(),
		"status":    next.String(),
	})
	if !result.Changed {
		s.logg.Debug(logCtx, "return.status_unchanged")
		return result, nil
	}
	s.logg.Info(logCtx, "return.status_changed")
	return result, nil
}

// GetLatestForOrder returns the most recent return of an order the user owns.
func (s *service) GetLatestForOrder(ctx context.Context, userID, orderID uuid.UUID) (*ReturnView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this return")
	}
	ret, err := s.repo.Latest(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return")
	}
	if ret == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no returns registered for this order")
	}
	view := toView(ret)
	return &view, nil
}

func (s *service) ListAll(ctx context.Context, actorRole enums.Role) ([]AdminReturnView, error) {
	if err := authz.Require(actorRole, authz.Staff...); err != nil {
		return nil, err
	}
	views, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list returns")
	}
	return views, nil
}
