package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/authz"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
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

// Service is the stock ledger. It is the only writer of products.stock.
type Service interface {
	AdjustStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error
	RegisterLot(ctx context.Context, input RegisterLotInput) (*LotResult, error)
	ListMovements(ctx context.Context, limit int, actorRole enums.Role) ([]MovementView, error)
	ListLowStock(ctx context.Context) ([]LowStockItem, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

// AdjustStock applies delta inside a savepoint of tx, so a failure leaves the
// caller's transaction usable. A decrement larger than the current stock is
// rejected with STATE_CONFLICT and leaves the row untouched.
func (s *service) AdjustStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.repo.WithTx(sp).AddStock(ctx, productID, delta)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProductNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	case errors.Is(err, ErrInsufficientStock):
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID, "requested": -delta})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust stock")
	}
}

func (s *service) RegisterLot(ctx context.Context, input RegisterLotInput) (*LotResult, error) {
	if err := authz.Require(input.ActorRole, enums.RoleAdmin); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id")
	}
	if input.Quantity < MinLotQuantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "minimum lot size is %d units", MinLotQuantity)
	}

	result := &LotResult{ProductID: input.ProductID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.AddStock(ctx, input.ProductID, input.Quantity); err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment stock")
		}
		stock, err := repo.StockOf(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read stock")
		}
		result.NewStock = stock

		record, err := repo.FindRecordForUpdate(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory record")
		}
		if record == nil {
			err = repo.CreateRecord(ctx, &models.InventoryRecord{
				ProductID:    input.ProductID,
				AvailableQty: input.Quantity,
				MinStock:     models.DefaultMinStock,
			})
		} else {
			err = repo.AddAvailable(ctx, record.ID, input.Quantity)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update inventory record")
		}

		if err := repo.InsertMovement(ctx, &models.InventoryMovement{
			ProductID:         input.ProductID,
			MovementType:      enums.MovementInbound,
			Quantity:          input.Quantity,
			UserID:            input.UserID,
			ExternalReference: input.Reference,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record movement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotRegistered,
			AggregateType: enums.AggregateProduct,
			AggregateID:   input.ProductID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: input.ActorRole.String()},
			Data: payloads.LotRegisteredEvent{
				ProductID: input.ProductID,
				Quantity:  input.Quantity,
				NewStock:  stock,
				UserID:    input.UserID,
				Reference: input.Reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": input.ProductID.String(),
		"quantity":   input.Quantity,
		"new_stock":  result.NewStock,
	}), "inventory.lot_registered")
	return result, nil
}

// ListMovements returns the newest movements first. Limits outside
// [1, 200] fall back to 50.
func (s *service) ListMovements(ctx context.Context, limit int, actorRole enums.Role) ([]MovementView, error) {
	if err := authz.Require(actorRole, authz.Staff...); err != nil {
		return nil, err
	}
	views, err := s.repo.ListMovements(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory movements")
	}
	return views, nil
}

func (s *service) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	items, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list low stock")
	}
	return items, nil
}
