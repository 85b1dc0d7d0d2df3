package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type promotionExpirer interface {
	DeactivateExpired(ctx context.Context, today time.Time) (int, error)
}

type PromotionExpiryJobParams struct {
	Logger     *logger.Logger
	Promotions promotionExpirer
	// Location decides which calendar day counts as today. Defaults to UTC.
	Location *time.Location
}

func NewPromotionExpiryJob(params PromotionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotion service required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &promotionExpiryJob{
		logg:       params.Logger,
		promotions: params.Promotions,
		loc:        loc,
		now:        time.Now,
	}, nil
}

type promotionExpiryJob struct {
	logg       *logger.Logger
	promotions promotionExpirer
	loc        *time.Location
	now        func() time.Time
}

func (j *promotionExpiryJob) Name() string { return "promotion-expiry" }

func (j *promotionExpiryJob) Run(ctx context.Context) error {
	today := j.now().In(j.loc)
	n, err := j.promotions.DeactivateExpired(ctx, today)
	if err != nil {
		return fmt.Errorf("promotion expiry: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"today":       today.Format(time.DateOnly),
		"deactivated": n,
	}), "expired promotions deactivated")
	return nil
}
