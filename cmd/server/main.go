package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tablekit-backend/internal/admin"
	"tablekit-backend/internal/auth"
	"tablekit-backend/internal/config"
	"tablekit-backend/internal/engine"
	"tablekit-backend/internal/instrument"
	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
	"tablekit-backend/internal/views"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	if err := authHandler.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap auth tables: %v", err)
	}
	viewsRepo := views.NewRepository(db.Pool)
	if err := viewsRepo.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap views table: %v", err)
	}
	if err := instrument.Bootstrap(ctx, db.Pool); err != nil {
		log.Fatalf("Failed to bootstrap events table: %v", err)
	}
	log.Println("System tables ready")

	// Operation events are buffered and flushed in the background.
	var recorder instrument.Recorder = instrument.Noop{}
	if cfg.Events.Enabled {
		buffer := instrument.NewEventBuffer(db.Pool, cfg.Events.BufferSize, cfg.Events.FlushInterval())
		defer buffer.Stop()
		instrument.StartCleanupLoop(ctx, db.Pool, cfg.Events.RetentionDays)
		recorder = buffer
	}

	// 4. Build table definitions
	registry := table.NewRegistry()
	if err := registerTables(registry, db); err != nil {
		log.Fatalf("Failed to build table definitions: %v", err)
	}
	log.Printf("Registered %d table definitions", len(registry.All()))

	// 5. Assemble the engine
	tokens := engine.NewTokenService(cfg.Table.TokenSecret, cfg.Table.TokenMaxAge(), registry)
	source := engine.NewSQLSource(db.Pool)
	assembler := engine.NewAssembler(source, tokens, viewsRepo)
	executor := engine.NewExecutor(source, tokens)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (no auth required)
	auth.RegisterRoutes(app, authHandler)

	// 9. Table routes (auth required)
	authMiddleware := auth.Middleware(cfg.JWTSecret)
	handler := engine.NewHandler(registry, assembler, executor, recorder)
	viewsHandler := engine.NewViewsHandler(registry, viewsRepo)
	engine.RegisterTableRoutes(app, handler, viewsHandler, authMiddleware)

	// 10. Admin introspection (auth + admin role)
	app.Use("/api/_admin", authMiddleware)
	admin.RegisterAdminRoutes(app, admin.NewHandler(registry, instrument.NewEventHandler(db.Pool)))

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: &engine.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
