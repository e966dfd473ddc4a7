package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rifa-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/rifa-backend/api/controllers/orders"
	rafflecontrollers "github.com/angelmondragon/rifa-backend/api/controllers/raffles"
	"github.com/angelmondragon/rifa-backend/api/middleware"
	"github.com/angelmondragon/rifa-backend/internal/orders"
	"github.com/angelmondragon/rifa-backend/internal/raffles"
	"github.com/angelmondragon/rifa-backend/pkg/config"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/rifa-backend/pkg/redis"
)

// RedisStore is the subset of the redis client used by the HTTP layer.
type RedisStore interface {
	controllers.Pinger
	pkgredis.IdempotencyStore
	middleware.RateLimitStore
}

// Dependencies carries the services mounted by the router. Redis, Gatherer
// and HTTPMetrics may be nil.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       RedisStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Raffles     raffles.Service
	Intake      *orders.Intake
	Capturer    *orders.Capturer
	Query       *orders.Query
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	var (
		redisPinger controllers.Pinger
		idemStore   pkgredis.IdempotencyStore
		rateStore   middleware.RateLimitStore
	)
	if deps.Redis != nil {
		redisPinger, idemStore, rateStore = deps.Redis, deps.Redis, deps.Redis
	}
	idempotency := middleware.Idempotency(idemStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/raffles/{raffleId}", func(r chi.Router) {
		r.Get("/", rafflecontrollers.Snapshot(deps.Raffles, logg))
		r.With(
			middleware.RateLimit(middleware.OrderRateLimitPolicy(cfg.RateLimit), rateStore, logg),
			idempotency,
		).Post("/orders", ordercontrollers.Create(deps.Intake, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Query, logg))
		r.With(idempotency).Post("/orders/{orderId}/capture", ordercontrollers.Capture(deps.Capturer, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.With(
			middleware.RequireRole(logg, enums.StaffRoleAdmin),
			idempotency,
		).Post("/raffles", rafflecontrollers.AdminCreate(deps.Raffles, logg))
		r.With(
			middleware.RequireRole(logg, enums.StaffRoleAdmin, enums.StaffRoleSupport),
		).Get("/raffles/{raffleId}/reconciliation", ordercontrollers.AdminReconciliation(deps.Query, logg))
	})

	return r
}
