package promotions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/authz"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const promotionCodeConstraint = "uq_promotions_code"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the promotion engine. It is the only writer of product prices.
type Service interface {
	CreatePromotion(ctx context.Context, input CreateInput) (*PromotionWithProducts, error)
	ApplyBatchDiscount(ctx context.Context, input BatchDiscountInput) (*BatchDiscountResult, error)
	ListPromotions(ctx context.Context, actorRole enums.Role) ([]PromotionView, error)
	DeactivateExpired(ctx context.Context, today time.Time) (int, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	loc    *time.Location
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the promotion engine. loc is the business time zone that
// decides which calendar day counts as today; nil means UTC.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, loc *time.Location, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotions repository required")
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
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		loc:    loc,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreatePromotion(ctx context.Context, input CreateInput) (*PromotionWithProducts, error) {
	if err := authz.Require(input.ActorRole, enums.RoleAdmin); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code, discount type, value and dates are required")
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if !input.DiscountValue.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be greater than 0")
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code, discount type, value and dates are required")
	}
	today := DateOnly(s.now().In(s.loc))
	start, end := DateOnly(input.StartDate), DateOnly(input.EndDate)
	if start.Before(today) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date cannot be before today")
	}
	if !end.After(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}
	productIDs := parseProductIDs(input.ProductIDs)
	if len(productIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select at least one product")
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	promo := models.Promotion{
		ID:            uuid.New(),
		Code:          code,
		Description:   input.Description,
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue,
		StartDate:     start,
		EndDate:       end,
		MaxUses:       input.MaxUses,
		Active:        active,
	}
	var userID *uuid.UUID
	if input.UserID != uuid.Nil {
		userID = &input.UserID
	}

	var result *PromotionWithProducts
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.LockProducts(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock products")
		}
		byID := make(map[uuid.UUID]models.Product, len(locked))
		for _, p := range locked {
			byID[p.ID] = p
		}
		if missing := missingIDs(productIDs, byID); len(missing) > 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "some products do not exist").
				WithDetails(map[string]any{"missing_product_ids": missing})
		}

		conflicts, err := repo.ActiveConflicts(ctx, productIDs, today)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check active promotions")
		}
		if len(conflicts) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "some products already have active promotions").
				WithDetails(map[string]any{"products_with_promotion": conflicts})
		}

		if err := repo.Create(ctx, &promo); err != nil {
			if db.IsUniqueViolation(err, promotionCodeConstraint) || db.IsUniqueViolation(err, "promotions.code") {
				return pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert promotion")
		}

		reason := "Aplicación de promoción: " + code
		for _, id := range productIDs {
			product := byID[id]
			if err := repo.LinkProduct(ctx, promo.ID, id); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link product")
			}
			newPrice := DiscountedPrice(product.Price, promo.DiscountType, promo.DiscountValue)
			if err := repo.SetPrice(ctx, id, newPrice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update price")
			}
			if err := repo.InsertPriceHistory(ctx, &models.PriceHistory{
				ProductID:     id,
				PreviousPrice: product.Price,
				NewPrice:      newPrice,
				Reason:        reason,
				UserID:        userID,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record price history")
			}
		}

		products, err := repo.ProductsOf(ctx, promo.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion products")
		}
		result = &PromotionWithProducts{PromotionView: toView(promo), Products: products}

		var actor *outbox.ActorRef
		if userID != nil {
			actor = &outbox.ActorRef{UserID: *userID, Role: input.ActorRole.String()}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromotionCreated,
			AggregateType: enums.AggregatePromotion,
			AggregateID:   promo.ID,
			Actor:         actor,
			Data: payloads.PromotionCreatedEvent{
				PromotionID:   promo.ID,
				Code:          promo.Code,
				DiscountType:  promo.DiscountType,
				DiscountValue: promo.DiscountValue,
				ProductIDs:    productIDs,
				StartDate:     start,
				EndDate:       end,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"promotion_id":  promo.ID.String(),
		"code":          promo.Code,
		"product_count": len(productIDs),
	}), "promotion.created")
	return result, nil
}

// ApplyBatchDiscount scales the selected prices by (1 - percent/100). It does
// not record price history or check promotion overlap.
func (s *service) ApplyBatchDiscount(ctx context.Context, input BatchDiscountInput) (*BatchDiscountResult, error) {
	if err := authz.Require(input.ActorRole, enums.RoleAdmin); err != nil {
		return nil, err
	}
	if len(input.ProductIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "send at least one product")
	}
	ids := parseProductIDs(input.ProductIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product ids")
	}
	if !input.Percent.IsPositive() || input.Percent.GreaterThanOrEqual(MaxBatchPercent) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount percent must be greater than 0 and less than 90")
	}

	result := &BatchDiscountResult{ProductIDs: []uuid.UUID{}}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.ExistingProductIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
		}
		if len(found) == 0 {
			return nil
		}
		updated, err := repo.ScalePrices(ctx, found, BatchFactor(input.Percent))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply batch discount")
		}
		result.UpdatedCount = updated
		result.ProductIDs = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListPromotions(ctx context.Context, actorRole enums.Role) ([]PromotionView, error) {
	if err := authz.Require(actorRole, authz.Staff...); err != nil {
		return nil, err
	}
	promos, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list promotions")
	}
	views := make([]PromotionView, 0, len(promos))
	for _, p := range promos {
		views = append(views, toView(p))
	}
	return views, nil
}

// DeactivateExpired turns off active promotions whose end date is before
// today. Prices are left as they are.
func (s *service) DeactivateExpired(ctx context.Context, today time.Time) (int, error) {
	today = DateOnly(today)
	var count int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		expired, err := repo.LockExpired(ctx, today)
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(expired))
		for _, p := range expired {
			ids = append(ids, p.ID)
		}
		if err := repo.Deactivate(ctx, ids); err != nil {
			return err
		}
		for _, p := range expired {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPromotionExpired,
				AggregateType: enums.AggregatePromotion,
				AggregateID:   p.ID,
				Data: payloads.PromotionExpiredEvent{
					PromotionID: p.ID,
					Code:        p.Code,
					EndDate:     p.EndDate,
				},
			}); err != nil {
				return err
			}
		}
		count = len(expired)
		return nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate expired promotions")
	}
	return count, nil
}

// parseProductIDs drops unparsable ids and duplicates, keeping first-seen order.
func parseProductIDs(raw []string) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil || id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func missingIDs(requested []uuid.UUID, found map[uuid.UUID]models.Product) []uuid.UUID {
	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

