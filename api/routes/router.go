package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	inventorycontrollers "github.com/angelmondragon/storefront-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	promotioncontrollers "github.com/angelmondragon/storefront-backend/api/controllers/promotions"
	returncontrollers "github.com/angelmondragon/storefront-backend/api/controllers/returns"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/promotions"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Orders     orders.Service
	Returns    returns.Service
	Promotions promotions.Service
	Inventory  inventory.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store Store,
	svc Services,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	readyDeps := map[string]controllers.Pinger{"db": dbP}
	if store != nil {
		readyDeps["redis"] = store
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps, logg))
	})

	var idem pkgredis.IdempotencyStore
	if store != nil {
		idem = store
	}
	orderLimit := middleware.NewRateLimitPolicy("orders", cfg.RateLimit.Window, cfg.RateLimit.OrderLimit)
	returnLimit := middleware.NewRateLimitPolicy("returns", cfg.RateLimit.Window, cfg.RateLimit.ReturnsLimit)
	staff := middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleAgent)
	admin := middleware.RequireRole(logg, enums.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idem, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.UserRateLimit(orderLimit, rateLimiter(store), logg)).
				Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/me", ordercontrollers.Mine(svc.Orders, logg))
			r.Get("/{orderID}", ordercontrollers.Detail(svc.Orders, logg))
			r.With(staff).Patch("/{orderID}/status", ordercontrollers.UpdateStatus(svc.Orders, logg))
			r.With(middleware.UserRateLimit(returnLimit, rateLimiter(store), logg)).
				Post("/{orderID}/returns", returncontrollers.Create(svc.Returns, logg))
			r.Get("/{orderID}/returns/latest", returncontrollers.Latest(svc.Returns, logg))
		})

		r.With(admin).Patch("/returns/{returnID}/status", returncontrollers.UpdateStatus(svc.Returns, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Get("/orders", ordercontrollers.AdminList(svc.Orders, logg))
				r.Get("/returns", returncontrollers.AdminList(svc.Returns, logg))
				r.Get("/promotions", promotioncontrollers.List(svc.Promotions, logg))
				r.Get("/inventory/movements", inventorycontrollers.Movements(svc.Inventory, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Post("/promotions", promotioncontrollers.Create(svc.Promotions, logg))
				r.Post("/products/{productID}/lot", inventorycontrollers.RegisterLot(svc.Inventory, logg))
				r.Patch("/products/discount", promotioncontrollers.BatchDiscount(svc.Promotions, logg))
			})
		})
	})

	return r
}

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func rateLimiter(store Store) rateLimiterStore {
	if store == nil {
		return nil
	}
	return store
}
