package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/otpline/otpline/internal/auth"
	"github.com/otpline/otpline/internal/config"
	"github.com/otpline/otpline/internal/identity"
	"github.com/otpline/otpline/internal/invite"
	"github.com/otpline/otpline/internal/middleware"
	"github.com/otpline/otpline/internal/notification"
	"github.com/otpline/otpline/internal/session"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
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
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.SessionCookie(d.Cfg.SessionTTL))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)

	var sessions session.Store
	if d.Cache != nil {
		sessions = session.NewRedisStore(d.Cache, d.Cfg.SessionTTL)
	} else {
		sessions = session.NewMemoryStore()
	}

	ledger := invite.NewLedger(identitySvc)
	sms := notification.NewLoggerNotifier(d.Logger)
	authSvc := auth.NewService(identitySvc, sessions, sms, d.Logger)
	authHandler := auth.NewHandler(authSvc, identitySvc, ledger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	users := api.Group("/users")
	users.Post("/login", authHandler.Login)
	users.Post("/authenticate", authHandler.Authenticate)
	users.Get("/profile", authHandler.Profile)
	users.Patch("/profile", authHandler.UpdateProfile)
	users.Put("/profile", authHandler.RedeemInvite)
	users.Delete("/profile", authHandler.Logout)

	return nil
}
