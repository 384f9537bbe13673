package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tasca/payment-gateway/internal/adapter/secondary/cache"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/database"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/eupago"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/messaging"
	"github.com/tasca/payment-gateway/internal/config"
	"github.com/tasca/payment-gateway/internal/constant/model/db"
	"github.com/tasca/payment-gateway/internal/core/monitor"
	"github.com/tasca/payment-gateway/internal/core/service"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize secondary adapter: Database
	dbConn, err := db.NewDB(cfg.Database.URL, db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	store := cache.NewRedisStore(rdb, cfg.Redis.ListTTL)

	// Initialize secondary adapter: Messaging (concrete type for worker)
	msgClient, err := messaging.NewRabbitMQClientConcrete(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer msgClient.Close()

	paymentRepo := database.NewGormPaymentRepository(dbConn.DB)
	gateway := eupago.New(eupago.Config{
		BaseURL:      eupago.ResolveBaseURL(cfg.EuPago.Mode, cfg.EuPago.BaseURL),
		APIKey:       cfg.EuPago.APIKey,
		Timeout:      cfg.EuPago.Timeout,
		ReferenceTTL: cfg.EuPago.ReferenceTTL,
	})
	paymentService := service.NewPaymentService(service.Dependencies{
		Repository:  paymentRepo,
		Gateway:     gateway,
		Messaging:   msgClient,
		Idempotency: store,
		ListCache:   store,
	}, service.Options{IdempotencyTTL: cfg.Monitor.IdempotencyTTL})

	// Initialize core service: Payment processor
	paymentProcessor := service.NewPaymentProcessor(ctx, paymentService, paymentRepo, monitor.Options{
		PollInterval: cfg.Monitor.PollInterval,
		Tick:         cfg.Monitor.Tick,
	})

	// Sessions left pending by a previous run are picked up before new messages
	resumed, err := paymentProcessor.ResumePending(ctx)
	if err != nil {
		log.Fatalf("Failed to resume pending payments: %v", err)
	}
	log.Printf("[Worker] resumed %d pending payments", resumed)

	// Start consuming messages
	err = msgClient.ConsumePaymentCreated(func(msg messaging.PaymentCreatedMessage) error {
		log.Printf("[Worker] monitoring payment %s", msg.Reference)
		return paymentProcessor.ProcessPayment(ctx, msg.Reference)
	})
	if err != nil {
		log.Fatalf("Failed to start consuming messages: %v", err)
	}

	log.Println("Payment worker started. Press CTRL+C to exit.")
	<-ctx.Done()

	log.Println("Shutting down worker...")
	paymentProcessor.Wait()
	log.Println("[Worker] all monitors stopped")
}
