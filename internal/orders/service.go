package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
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
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes the order workflow.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*StatusUpdateResult, error)
	ListMyOrders(ctx context.Context, userID uuid.UUID) ([]MyOrderSummary, error)
	ListAllOrders(ctx context.Context, actorRole enums.Role, params pagination.Params) (*OrderList, error)
	GetOrderDetails(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetails, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	stock   StockAdjuster
	metrics *metrics.WorkflowMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service. A nil metrics collector disables counting.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, stock StockAdjuster, m *metrics.WorkflowMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock adjuster required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		stock:   stock,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateOrder records the order with client-supplied totals. Items that cannot
// be parsed are reported as skipped instead of failing the request.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	method, err := validateCreate(input)
	if err != nil {
		return nil, err
	}

	orderedAt := s.now()
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    input.UserID,
		AddressID: input.AddressID,
		Subtotal:  *input.Subtotal,
		Taxes:     *input.Taxes,
		Total:     *input.Total,
		Status:    enums.OrderStatusPending,
		Notes:     input.Notes,
		OrderedAt: orderedAt,
	}
	result := &CreateOrderResult{OrderID: order.ID}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result.Lines = make([]LineOutcome, 0, len(input.Items))

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		position := 0
		for i, item := range input.Items {
			outcome := LineOutcome{Index: i, ProductID: strings.TrimSpace(item.ProductID)}
			line, reason := parseItem(item)
			if reason != "" {
				outcome.Status = LineSkipped
				outcome.Reason = reason
				result.Lines = append(result.Lines, outcome)
				continue
			}
			line.OrderID = order.ID
			line.Position = position
			if err := repo.CreateLine(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order line").
					WithDetails(map[string]any{"index": i, "product_id": line.ProductID})
			}
			position++
			lineID := line.ID
			outcome.Status = LineCreated
			outcome.LineID = &lineID
			result.Lines = append(result.Lines, outcome)
		}

		if err := repo.CreatePayment(ctx, &models.Payment{
			OrderID: order.ID,
			Method:  method,
			Amount:  order.Total,
			Status:  enums.PaymentStatusApproved,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
		}

		if _, err := repo.ClearCart(ctx, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
			OccurredAt:    orderedAt,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        input.UserID,
				Subtotal:      order.Subtotal,
				Taxes:         order.Taxes,
				Total:         order.Total,
				PaymentMethod: method,
				LineCount:     position,
				SkippedCount:  len(input.Items) - position,
				OrderedAt:     orderedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	skipped := result.Skipped()
	s.metrics.IncOrderCreated()
	s.metrics.AddItemsSkipped(skipped)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"user_id":  input.UserID.String(),
		"lines":    len(result.Lines) - skipped,
		"skipped":  skipped,
	})
	if skipped > 0 {
		s.logg.Warn(logCtx, "order.items_skipped")
	}
	s.logg.Info(logCtx, "order.created")
	return result, nil
}

func validateCreate(input CreateOrderInput) (enums.PaymentMethod, error) {
	if input.AddressID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	amounts := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"subtotal", input.Subtotal},
		{"taxes", input.Taxes},
		{"total", input.Total},
	}
	for _, amount := range amounts {
		if amount.value == nil {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", amount.name)
		}
		if amount.value.IsNegative() {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s must not be negative", amount.name)
		}
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	method, err := enums.ParsePaymentMethod(strings.TrimSpace(input.PaymentMethod))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"allowed": []enums.PaymentMethod{
				enums.PaymentMethodCard, enums.PaymentMethodPayPal, enums.PaymentMethodTransfer,
			}})
	}
	if len(input.Items) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	return method, nil
}

// parseItem returns the line to insert, or a non-empty reason when the item
// has to be skipped.
func parseItem(item ItemInput) (*models.OrderLine, string) {
	productID, err := uuid.Parse(strings.TrimSpace(item.ProductID))
	if err != nil || productID == uuid.Nil {
		return nil, "invalid product id"
	}
	qty, err := strconv.Atoi(strings.TrimSpace(item.Quantity))
	if err != nil {
		return nil, "invalid quantity"
	}
	if qty <= 0 {
		return nil, "quantity must be positive"
	}
	price, err := decimal.NewFromString(strings.TrimSpace(item.UnitPrice))
	if err != nil || price.IsNegative() {
		return nil, "invalid unit price"
	}
	return &models.OrderLine{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: price,
		Subtotal:  LineSubtotal(price, qty),
	}, ""
}

// LineSubtotal is unit price times quantity, rounded half away from zero to cents.
func LineSubtotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// UpdateOrderStatus always persists the new status. Crossing the Entregado
// boundary adjusts stock per line; adjustment failures are reported in the
// result and never roll back the status change.
func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*StatusUpdateResult, error) {
	if err := authz.Require(input.ActorRole, authz.Staff...); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	next, err := enums.ParseOrderStatus(strings.TrimSpace(input.Status))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	result := &StatusUpdateResult{OrderID: input.OrderID, Status: next}
	var stockErrs error

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result.Stock = nil
		stockErrs = nil

		order, err := repo.FindForUpdate(ctx, input.OrderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		result.PreviousStatus = order.Status

		now := s.now()
		updates := map[string]any{"status": next, "updated_at": now}
		if next == enums.OrderStatusDelivered && order.Status != enums.OrderStatusDelivered {
			updates["delivered_at"] = now
		}
		if err := repo.UpdateStatus(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}

		if sign := stockDirection(order.Status, next); sign != 0 {
			lines, err := repo.Lines(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
			}
			stockErrs = s.applyStock(ctx, tx, lines, sign, result)
		}

		event := payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			PreviousStatus: order.Status,
			Status:         next,
			Total:          order.Total,
			ChangedAt:      now,
		}
		for _, outcome := range result.Stock {
			if outcome.Status == StockFailed {
				event.StockFailures++
				event.FailedProductIDs = append(event.FailedProductIDs, outcome.ProductID)
			} else {
				event.StockAdjusted++
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()},
			OccurredAt:    now,
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        input.OrderID.String(),
		"previous_status": result.PreviousStatus.String(),
		"status":          next.String(),
	})
	if stockErrs != nil {
		s.logg.WarnErr(logCtx, "order.stock_adjustment_failed", stockErrs)
	}
	s.logg.Info(logCtx, "order.status_changed")
	return result, nil
}

func (s *service) applyStock(ctx context.Context, tx *gorm.DB, lines []models.OrderLine, sign int, result *StatusUpdateResult) error {
	direction := "decrement"
	if sign > 0 {
		direction = "restore"
	}
	var errs error
	for _, line := range lines {
		delta := sign * line.Quantity
		outcome := StockOutcome{ProductID: line.ProductID, Delta: delta, Status: StockAdjusted}
		if err := s.stock.AdjustStock(ctx, tx, line.ProductID, delta); err != nil {
			outcome.Status = StockFailed
			outcome.Error = err.Error()
			s.metrics.IncStockFailure(direction)
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", line.ProductID, err))
		}
		result.Stock = append(result.Stock, outcome)
	}
	return errs
}

func (s *service) ListMyOrders(ctx context.Context, userID uuid.UUID) ([]MyOrderSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return orders, nil
}

func (s *service) ListAllOrders(ctx context.Context, actorRole enums.Role, params pagination.Params) (*OrderList, error) {
	if err := authz.Require(actorRole, authz.Staff...); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListAll(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(o OrderSummary) pagination.Cursor {
		return pagination.Cursor{At: o.OrderedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

// GetOrderDetails is visible to the order owner and to staff.
func (s *service) GetOrderDetails(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetails, error) {
	if viewer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	header, err := s.repo.FindHeader(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if header.UserID != viewer.UserID && !authz.IsStaff(viewer.Role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
	}
	lines, err := s.repo.DetailLines(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
	}
	if lines == nil {
		lines = []DetailLine{}
	}
	return &OrderDetails{Order: *header, Items: lines}, nil
}
