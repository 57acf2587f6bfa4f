package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/learnhub/learnhub-wallet/internal/config"
	"github.com/learnhub/learnhub-wallet/internal/funding"
	"github.com/learnhub/learnhub-wallet/internal/ledger"
	"github.com/learnhub/learnhub-wallet/internal/middleware"
	"github.com/learnhub/learnhub-wallet/internal/momo"
	"github.com/learnhub/learnhub-wallet/internal/notification"
	"github.com/learnhub/learnhub-wallet/internal/payments"
	"github.com/learnhub/learnhub-wallet/internal/settlement"
	"github.com/learnhub/learnhub-wallet/internal/wallet"
)

const depositsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// reconciler so the caller can tie it to the process lifetime.
func Setup(app *fiber.App, d Deps) (*payments.Reconciler, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Stores: Postgres when configured, in-memory otherwise (development only).
	var (
		wallets  ledger.Store
		orders   settlement.Repository
		attempts payments.AttemptStore
	)
	if d.DB != nil {
		wallets = ledger.NewPostgresStore(d.DB, d.Cfg.Currency)
		orders = settlement.NewPostgresRepository(d.DB)
		attempts = payments.NewPostgresAttemptStore(d.DB)
	} else {
		wallets = ledger.NewInMemory(d.Cfg.Currency)
		orders = settlement.NewMemoryRepository()
		attempts = payments.NewMemoryAttemptStore()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	gateway := momo.NewClient(momo.Config{
		Endpoint:    d.Cfg.MoMo.Endpoint,
		PartnerCode: d.Cfg.MoMo.PartnerCode,
		AccessKey:   d.Cfg.MoMo.AccessKey,
		SecretKey:   d.Cfg.MoMo.SecretKey,
		RedirectURL: d.Cfg.MoMo.RedirectURL,
		IPNURL:      d.Cfg.MoMo.IPNURL,
		RequestType: d.Cfg.MoMo.RequestType,
		Timeout:     d.Cfg.MoMo.Timeout,
	})

	orchestrator := settlement.NewOrchestrator(orders, wallets, notifier, d.Logger)
	paymentSvc := payments.NewService(gateway, gateway.Signer(), attempts, wallets, orchestrator, notifier, d.Logger)
	fundingSvc, err := funding.NewService(wallets, paymentSvc, d.Cfg.TestTopUpEnabled, notifier, d.Logger)
	if err != nil {
		return nil, err
	}
	walletSvc := wallet.NewService(wallets)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Gateway callbacks authenticate by signature, not bearer token.
	paymentHandler := payments.NewHandler(paymentSvc, d.Logger)
	RegisterGatewayRoutes(api, paymentHandler)

	protected := api.Group("", middleware.JWTAuth([]byte(d.Cfg.JWTSecret)))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc), middleware.RateLimit(d.Cache, "deposit", depositsPerMinute))
	RegisterOrderRoutes(protected, settlement.NewHandler(orchestrator), paymentHandler)

	return payments.NewReconciler(paymentSvc, d.Cfg.ReconcileInterval, d.Cfg.ReconcileAfter, d.Logger), nil
}
