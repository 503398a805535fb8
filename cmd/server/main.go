package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"planadmin-backend/internal/admin"
	"planadmin-backend/internal/auth"
	"planadmin-backend/internal/config"
	"planadmin-backend/internal/engine"
	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/storage"
	"planadmin-backend/internal/store"
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

	// 3. Bootstrap system tables and the default admin account
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Schema registry (lazy: descriptors load on first use)
	reg := metadata.NewRegistry()

	// 5. Visibility policies from config
	vis := engine.NewVisibility(cfg.Visibility)

	// 6. File storage
	files := storage.NewLocalStorage(cfg.Storage.LocalPath)

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (before middleware — no auth required)
	authHandler := auth.NewAuthHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.Middleware(cfg.JWTSecret)

	// 10. Table surface
	tableHandler := engine.NewHandler(db, reg, vis)
	fileHandler := engine.NewFileHandler(db, files, cfg.Storage.BaseURL, cfg.Storage.MaxFileSize)
	engine.RegisterPublicRoutes(app, tableHandler)
	engine.RegisterTableRoutes(app, tableHandler, fileHandler, authMW)

	// 11. Composite plan surface
	planHandler := engine.NewCompositeHandler(db, reg)
	engine.RegisterPlanRoutes(app, planHandler, authMW)

	// 12. User administration (auth + admin required)
	adminHandler := admin.NewHandler(db)
	admin.RegisterAdminRoutes(app, adminHandler, authMW)

	// 13. Start server
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
