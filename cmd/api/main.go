package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/tasca/payment-gateway/internal/adapter/primary/http"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/cache"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/database"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/eupago"
	"github.com/tasca/payment-gateway/internal/adapter/secondary/messaging"
	"github.com/tasca/payment-gateway/internal/config"
	"github.com/tasca/payment-gateway/internal/constant/model/db"
	"github.com/tasca/payment-gateway/internal/core/service"
)

func main() {
	cfg := config.Load()

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

	// Initialize secondary adapter: Redis (idempotency keys + listing cache)
	rdb, err := cache.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	store := cache.NewRedisStore(rdb, cfg.Redis.ListTTL)

	// Initialize secondary adapters: Repository, Messaging and Gateway (implement output ports)
	paymentRepo := database.NewGormPaymentRepository(dbConn.DB)
	msgClient, err := messaging.NewRabbitMQClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer msgClient.Close()
	gateway := eupago.New(eupago.Config{
		BaseURL:      eupago.ResolveBaseURL(cfg.EuPago.Mode, cfg.EuPago.BaseURL),
		APIKey:       cfg.EuPago.APIKey,
		Timeout:      cfg.EuPago.Timeout,
		ReferenceTTL: cfg.EuPago.ReferenceTTL,
	})

	// Initialize core service (implements input port)
	paymentService := service.NewPaymentService(service.Dependencies{
		Repository:  paymentRepo,
		Gateway:     gateway,
		Messaging:   msgClient,
		Idempotency: store,
		ListCache:   store,
	}, service.Options{IdempotencyTTL: cfg.Monitor.IdempotencyTTL})

	// Initialize primary adapter: HTTP handler (uses input port)
	e := httpadapter.NewRouter(httpadapter.NewPaymentHandler(paymentService), cfg.Auth.JWTSecret)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down API server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
