package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type lowStockLister interface {
	ListLowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

type pendingEmitter interface {
	EmitIfNotPending(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type LowStockJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Inventory lowStockLister
	Outbox    pendingEmitter
}

// NewLowStockJob emits a low_stock event per product under its threshold.
// A product with an alert still waiting to be published is not re-alerted.
func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &lowStockJob{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		outbox:    params.Outbox,
	}, nil
}

type lowStockJob struct {
	logg      *logger.Logger
	db        txRunner
	inventory lowStockLister
	outbox    pendingEmitter
}

func (j *lowStockJob) Name() string { return "low-stock-alert" }

func (j *lowStockJob) Run(ctx context.Context) error {
	items, err := j.inventory.ListLowStock(ctx)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}

	var (
		errs    error
		emitted int
	)
	for _, item := range items {
		var created bool
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := j.outbox.EmitIfNotPending(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLowStock,
				AggregateType: enums.AggregateProduct,
				AggregateID:   item.ProductID,
				Data: payloads.LowStockEvent{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Stock:       item.Stock,
					MinStock:    item.MinStock,
				},
			})
			created = ok
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", item.ProductID, err))
			continue
		}
		if created {
			emitted++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"low_stock": len(items),
		"emitted":   emitted,
		"failed":    len(multierr.Errors(errs)),
	})
	if errs != nil {
		j.logg.Warn(logCtx, "low stock alerts partially emitted")
		return errs
	}
	j.logg.Info(logCtx, "low stock alerts emitted")
	return nil
}
