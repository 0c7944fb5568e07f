package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	admin_api "github.com/Refret28/microservice-booking/internal/admin/api"
	"github.com/Refret28/microservice-booking/internal/analytics"
	analytics_api "github.com/Refret28/microservice-booking/internal/analytics/api"
	"github.com/Refret28/microservice-booking/internal/auth"
	"github.com/Refret28/microservice-booking/internal/booking"
	booking_api "github.com/Refret28/microservice-booking/internal/booking/api"
	booking_db "github.com/Refret28/microservice-booking/internal/booking/db"
	"github.com/Refret28/microservice-booking/internal/config"
	"github.com/Refret28/microservice-booking/internal/database/migrations"
	"github.com/Refret28/microservice-booking/internal/kafka"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/payment"
	payment_api "github.com/Refret28/microservice-booking/internal/payment/api"
	payment_db "github.com/Refret28/microservice-booking/internal/payment/db"
	"github.com/Refret28/microservice-booking/internal/sweeper"
	"github.com/Refret28/microservice-booking/internal/users"
	users_api "github.com/Refret28/microservice-booking/internal/users/api"
	users_db "github.com/Refret28/microservice-booking/internal/users/db"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		// Sessions degrade gracefully without Redis; auth works off the
		// token alone.
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s: %v", cfg.Addr, err))
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Parking Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if cfg.Auth.SecretKey == "" {
		log.Fatal("CONFIG", "JWT_SECRET not set")
	}

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	migrationRunner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := migrationRunner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.Info("DATABASE", "Migrations applied")

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.PaymentTopic}); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	issuer := auth.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	sessions := auth.NewSessionCache(redisClient)

	bookingService := booking.NewService(&booking_db.DB{Bun: bunDB}, kafkaProducer, cfg.Kafka.PaymentTopic, log)
	paymentDB := &payment_db.DB{Bun: bunDB}
	paymentService := payment.NewService(paymentDB, log)
	userService := users.NewService(&users_db.DB{Bun: bunDB}, bookingService, issuer, sessions, cfg.Auth.TokenTTL, log)
	analyticsService := analytics.NewService(bunDB)

	bookingHandler := booking_api.NewHandler(bookingService, log)
	userHandler := users_api.NewHandler(userService, log)
	paymentHandler := payment_api.NewHandler(paymentService, bookingService, cfg.Bot.Username, log)
	adminHandler := admin_api.NewHandler(userService, bookingService, paymentService, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Post("/api/auth/register", userHandler.Register)
	r.Post("/api/auth/login", userHandler.Login)

	// The payment agent reports successful charges here.
	r.Post("/api/payments", paymentHandler.Confirm)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer, sessions))

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/logout", userHandler.Logout)
			r.Get("/users/me", userHandler.Profile)

			r.Get("/spots", bookingHandler.ListSpots)
			r.Get("/prices", bookingHandler.LocationPrices)
			r.Get("/occupancy", bookingHandler.OccupiedLocations)

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", bookingHandler.CreateBooking)
				r.Get("/", bookingHandler.MyBookings)
				r.Delete("/{bookingID}", bookingHandler.CancelBooking)
				r.Get("/{bookingID}/payment-link", paymentHandler.PaymentLink)
				r.Get("/{bookingID}/payment-qr", paymentHandler.PaymentQR)
			})

			r.Post("/cars", bookingHandler.AddCar)
			r.Get("/notifications/cancellation", bookingHandler.CancellationNotice)
			r.Get("/payments/{bookingID}/receipt", paymentHandler.Receipt)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))

				r.Get("/users", adminHandler.ListUsers)
				r.Put("/users/{userID}/status", adminHandler.SetUserStatus)
				r.Get("/users/{userID}/bookings", adminHandler.UserBookings)
				r.Get("/locations", adminHandler.ListLocations)
				r.Get("/locations/{locationID}/spots", adminHandler.LocationSpots)
				r.Post("/spots/{spotID}/reserve", adminHandler.ReserveSpot)
				r.Post("/spots/{spotID}/free", adminHandler.FreeSpot)
				r.Put("/spots/{spotID}/price", adminHandler.UpdateSpotPrice)
				r.Post("/payments/{bookingID}/cancel", adminHandler.CancelPayment)

				r.Route("/analytics", func(r chi.Router) {
					r.Get("/locations", analyticsHandler.BookingsPerLocation)
					r.Get("/spots", analyticsHandler.TopSpots)
					r.Get("/revenue", analyticsHandler.Revenue)
				})
			})
		})
	})
	log.Info("ROUTER", "Routes registered")

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	spotSweeper := sweeper.New(bunDB, paymentDB, cfg.Sweeper.Interval, cfg.Sweeper.PaymentGrace, log)
	go spotSweeper.Run(sweepCtx)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Parking Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopSweeper()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	log.Info("APP", "Shutdown complete")
}
