package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/config"
	"github.com/medivoyage/booking-api/internal/database"
	"github.com/medivoyage/booking-api/internal/handler"
	"github.com/medivoyage/booking-api/internal/queue"
	"github.com/medivoyage/booking-api/internal/repository"
	"github.com/medivoyage/booking-api/internal/router"
	queue_publisher "github.com/medivoyage/booking-api/internal/service"
	"github.com/medivoyage/booking-api/internal/settlement"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable: rate limiting and response cache disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	bookings := repository.NewBookingRepo(db)
	messages := repository.NewMessageRepo(db)
	invoices := repository.NewInvoiceRepo(db)

	store := settlement.NewStore(db, bookings, invoices)
	settler := settlement.NewService(store, queue_publisher.PublishNotification)

	// Repair pass: a COMPLETED booking without an invoice is a
	// financial-integrity defect and gets its invoice backfilled before
	// the server takes traffic.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := settler.ReconcileInvoices(ctx)
		cancel()
		if err != nil {
			log.Printf("settlement: reconcile sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("settlement: backfilled %d missing invoices", n)
		}
	}

	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("queue: notification consumer stopped: %v", err)
		}
	}()

	authH := handler.NewAuthHandler(cfg, users, tokens)
	patientH := handler.NewPatientHandler(cfg, bookings, messages, users)
	providerH := handler.NewProviderHandler(bookings, messages)
	checkinH := handler.NewCheckinHandler(settler)
	adminH := handler.NewAdminHandler(invoices)
	directoryH := handler.NewDirectoryHandler(users)

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e, db, directoryH, config.LoadCacheConfig(), rdb)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPatient(e, patientH, cfg.JWTSecret)
	router.RegisterProvider(e, providerH, checkinH, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
