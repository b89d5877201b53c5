// Package server exposes the ledger over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"

	"talk/internal/auth"
	"talk/internal/cache"
	"talk/internal/config"
	"talk/internal/database"
	"talk/internal/middleware"
	"talk/internal/observability"
	"talk/internal/repository"
	"talk/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	store          repository.Store
	promMiddleware *fiberprometheus.FiberPrometheus
	ledger         *service.LedgerService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	store, db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, store, db, cache.GetClient()), nil
}

// OpenStore builds the store selected by STORE_BACKEND. The returned db is
// nil for the memory backend.
func OpenStore(cfg *config.Config) (repository.Store, *gorm.DB, error) {
	if cfg.StoreBackend == "memory" {
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return repository.NewGormStore(db), db, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// db and redisClient may be nil; they are only used for readiness checks and shutdown.
func NewServerWithDeps(cfg *config.Config, store repository.Store, db *gorm.DB, redisClient *redis.Client) *Server {
	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		store:          store,
		promMiddleware: middleware.InitMetrics("talk-api"),
		ledger:         service.NewLedgerService(store, auth.RequireCaller),
	}
}

// NewApp builds a fiber app with the ledger's error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "talk",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return respondError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(middleware.StructuredLogger())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api/v1")

	// Reads are public.
	api.Get("/messages/:id", s.GetMessage)
	api.Get("/users/:identity", s.GetUser)
	api.Get("/messages/:id/likes/verify", s.VerifyMessageLikes)
	api.Get("/users/:identity/liked/verify", s.VerifyUserLikes)

	protected := api.Group("", middleware.AuthRequired(s.config.JWTSecret))
	protected.Post("/messages", s.PostMessage)
	protected.Post("/likes", s.ToggleLike)
}

// Shutdown releases the database and cache connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}

	select {
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	default:
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	observability.Logger.InfoContext(ctx, "server resources released")
	return nil
}
