package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/reward-rail/reward_rail/internal/config"
	"github.com/reward-rail/reward_rail/internal/gateway"
	"github.com/reward-rail/reward_rail/internal/ledger"
	"github.com/reward-rail/reward_rail/internal/middleware"
	"github.com/reward-rail/reward_rail/internal/notification"
	"github.com/reward-rail/reward_rail/internal/pool"
	"github.com/reward-rail/reward_rail/internal/wallet"
	"github.com/reward-rail/reward_rail/internal/withdrawal"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Tasks  *asynq.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backends: Postgres in deployment, in-memory for dev runs without infra.
	var (
		store          ledger.Store
		poolRepo       pool.Repository
		withdrawalRepo withdrawal.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		poolRepo = pool.NewPostgresRepository(d.DB)
		withdrawalRepo = withdrawal.NewPostgresRepository(d.DB)
	} else {
		mem := ledger.NewInMemory()
		store = mem
		poolRepo = pool.NewMemoryRepository(mem)
		withdrawalRepo = withdrawal.NewMemoryRepository(mem)
	}

	var notifier notification.Notifier
	if d.Tasks != nil {
		notifier = notification.NewAsynqNotifier(d.Tasks, d.Logger)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	walletSvc := wallet.NewService(store)
	poolSvc := pool.NewService(poolRepo, store, notifier)
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, store, notifier, d.Cfg.MinWithdrawal)
	gatewaySvc := gateway.NewService(store, notifier)

	walletHandler := wallet.NewHandler(walletSvc)
	poolHandler := pool.NewHandler(poolSvc)
	withdrawalHandler := withdrawal.NewHandler(withdrawalSvc)
	gatewayHandler := gateway.NewHandler(gatewaySvc)

	// API routes
	api := app.Group("/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterPoolRoutes(api, poolHandler)
	RegisterWithdrawalRoutes(api, withdrawalHandler)
	RegisterGatewayRoutes(api, gatewayHandler, middleware.WebhookRateLimit(d.Cache, d.Cfg.WebhookRatePerMin))

	// Admin surface
	admin := api.Group("/admin", middleware.AdminKey(d.Cfg.AdminKeyHash))
	RegisterAdminRoutes(admin, withdrawalHandler)

	return nil
}
