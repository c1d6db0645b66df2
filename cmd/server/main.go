package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/heavenly/backend/internal/config"
	"github.com/heavenly/backend/internal/database"
	"github.com/heavenly/backend/internal/geo"
	"github.com/heavenly/backend/internal/handlers"
	"github.com/heavenly/backend/internal/middleware"
	"github.com/heavenly/backend/internal/services"
	"github.com/heavenly/backend/internal/storage"
	"github.com/heavenly/backend/pkg/logger"
	"github.com/heavenly/backend/pkg/utils"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file loaded: %v", err)
	}

	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	geocoder := geo.NewNominatimClient(nil, cfg.Geocode)

	auditService := services.NewAuditService(db)
	cascadeService := services.NewCascadeService(db, storageClient)
	pendingService := services.NewPendingReviewService(db, cfg.Pending.TTL)
	pendingService.StartSweeper(cfg.Pending.SweepInterval)

	authHandler := handlers.NewAuthHandler(db, pendingService, auditService)
	listingsHandler := handlers.NewListingsHandler(db, storageClient, geocoder, cascadeService, auditService)
	reviewsHandler := handlers.NewReviewsHandler(db, pendingService, cascadeService, auditService)
	adminHandler := handlers.NewAdminHandler(db, cascadeService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	listingRoutes := api.Group("/listings")
	listingRoutes.Get("/", listingsHandler.List)
	listingRoutes.Post("/", authMiddleware.RequireAuth, listingsHandler.Create)
	listingRoutes.Get("/:id", listingsHandler.Get)
	listingRoutes.Put("/:id", authMiddleware.RequireAuth, listingsHandler.Update)
	listingRoutes.Delete("/:id", authMiddleware.RequireAuth, listingsHandler.Delete)

	listingRoutes.Post("/:id/reviews", authMiddleware.OptionalAuth, reviewsHandler.Create)
	listingRoutes.Delete("/:id/reviews/:reviewId", authMiddleware.RequireAuth, reviewsHandler.Delete)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/dashboard", adminHandler.Dashboard)
	adminRoutes.Get("/users", adminHandler.ListUsers)
	adminRoutes.Delete("/users/:userId", adminHandler.DeleteUser)
	adminRoutes.Get("/listings", adminHandler.ListListings)
	adminRoutes.Get("/reviews", adminHandler.ListReviews)
	adminRoutes.Delete("/reviews/:reviewId", adminHandler.DeleteReview)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
