package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/millflow-backend/api/controllers"
	materialcontrollers "github.com/angelmondragon/millflow-backend/api/controllers/materials"
	ordercontrollers "github.com/angelmondragon/millflow-backend/api/controllers/orders"
	productioncontrollers "github.com/angelmondragon/millflow-backend/api/controllers/production"
	"github.com/angelmondragon/millflow-backend/api/middleware"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/internal/orders"
	"github.com/angelmondragon/millflow-backend/internal/production"
	"github.com/angelmondragon/millflow-backend/pkg/auth"
	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/metrics"
	"github.com/angelmondragon/millflow-backend/pkg/redis"
)

// Roles allowed to register catalog materials.
var materialAdminRoles = []string{"manager", "admin"}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	Tokens     *auth.Issuer
	DB         controllers.Pinger
	Redis      *redis.Client
	Gatherer   prometheus.Gatherer
	HTTP       *metrics.HTTPMetrics
	Orders     orders.Service
	Ledger     ledger.Service
	Production production.Service
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTP),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	var redisPinger controllers.Pinger
	if p.Redis != nil {
		redisPinger = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": p.DB,
			"redis":    redisPinger,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	confirmPolicy := middleware.NewRateLimitPolicy("confirm", cfg.HTTP.ConfirmRateWindow, cfg.HTTP.ConfirmRateLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Tokens, logg))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, cfg.HTTP.IdempotencyTTL, logg))
		}

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/{orderID}", ordercontrollers.Get(p.Orders, logg))
		})

		r.Route("/order-lines/{lineID}", func(r chi.Router) {
			r.Get("/", ordercontrollers.GetLine(p.Orders, logg))
			r.Get("/tasks", ordercontrollers.LineTasks(p.Orders, logg))
			r.Get("/preview", ordercontrollers.PreviewLine(p.Orders, logg))
			r.With(rateLimit(confirmPolicy, p.Redis, logg)).Post("/confirm", ordercontrollers.Confirm(p.Orders, logg))
			r.Post("/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.Post("/status", ordercontrollers.Transition(p.Orders, logg))
		})

		r.Post("/allocation/preview", ordercontrollers.Preview(p.Orders, logg))

		r.Route("/materials", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, materialAdminRoles...)).Post("/", materialcontrollers.Create(p.Ledger, logg))
			r.Get("/below-minimum", materialcontrollers.BelowMinimum(p.Ledger, logg))
			r.Get("/{materialID}", materialcontrollers.Get(p.Ledger, logg))
			r.Get("/{materialID}/movements", materialcontrollers.Movements(p.Ledger, logg))
		})

		r.Route("/production-tasks/{taskID}", func(r chi.Router) {
			r.Get("/", productioncontrollers.Get(p.Production, logg))
			r.Post("/start", productioncontrollers.Start(p.Production, logg))
			r.Post("/hold", productioncontrollers.Hold(p.Production, logg))
			r.Post("/resume", productioncontrollers.Resume(p.Production, logg))
			r.Post("/output", productioncontrollers.Output(p.Production, logg))
			r.Post("/complete", productioncontrollers.Complete(p.Production, logg))
		})
	})

	return r
}

func rateLimit(policy middleware.RateLimitPolicy, client *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if client == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(policy, client, logg)
}
