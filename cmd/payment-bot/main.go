package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Refret28/microservice-booking/internal/bot"
	"github.com/Refret28/microservice-booking/internal/config"
	"github.com/Refret28/microservice-booking/internal/kafka"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/payment/correlation"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Payment Bot initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if cfg.Bot.Token == "" {
		log.Fatal("CONFIG", "BOT_TOKEN not set")
	}

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.PaymentTopic}); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	store := correlation.NewStore(correlation.DefaultCapacity)

	agent, err := bot.NewAgent(cfg.Bot, store, log)
	if err != nil {
		log.Fatal("BOT", fmt.Sprintf("Failed to create payment bot: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.Start(ctx, agent.HandlePaymentRequest)
	go agent.Start(ctx)

	adminServer := &http.Server{
		Addr:         cfg.Bot.AdminPort,
		Handler:      bot.NewAdminRouter(store, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP", fmt.Sprintf("Bot control API listening on %s", cfg.Bot.AdminPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP", fmt.Sprintf("Control API failed: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Payment bot started, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Control API shutdown failed: %v", err))
	}
	cancel()
}
