package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"soko/auth"
	"soko/config"
	"soko/db"
	"soko/dispute"
	"soko/httpapi"
	"soko/logger"
	"soko/order"
	"soko/outbox"
	"soko/payment"
	"soko/shipment"
	"soko/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	events := outbox.NewWriter()

	verificationRepo := verification.NewRepository(pool)
	orderRepo := order.NewRepository(pool)

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	verificationSvc := verification.NewService(verificationRepo)
	orderSvc := order.NewService(pool, orderRepo, verificationSvc)
	providerClient := payment.NewClient(payment.ClientConfig{
		BaseURL:     cfg.ProviderBaseURL,
		Shortcode:   cfg.ProviderShortcode,
		Passkey:     cfg.ProviderPasskey,
		CallbackURL: cfg.ProviderCallback,
	})
	paymentSvc := payment.NewService(pool, payment.NewRepository(pool), providerClient, orderRepo).
		WithEventWriter(events)
	shipmentSvc := shipment.NewService(pool, shipment.NewRepository(pool))
	disputeSvc := dispute.NewService(pool, dispute.NewRepository(pool), verificationRepo).
		WithEventWriter(events)

	server := httpapi.NewServer(authSvc, verificationSvc, orderSvc, paymentSvc, shipmentSvc, disputeSvc, zlog)

	if len(cfg.KafkaBrokers) > 0 {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, zlog)
		defer producer.Close()
		dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPoll, zlog)
		go dispatcher.Run(ctx)
	} else {
		zlog.Warn("KAFKA_BROKERS not set, outbox dispatcher disabled")
	}

	go expireStaleAttempts(ctx, paymentSvc, cfg.AttemptExpiry, zlog)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		zlog.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
}

// expireStaleAttempts sweeps payment attempts the provider never resolved.
func expireStaleAttempts(ctx context.Context, svc *payment.Service, window time.Duration, zlog *zap.Logger) {
	ticker := time.NewTicker(window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireStale(ctx, window)
			if err != nil {
				zlog.Error("expire stale attempts", zap.Error(err))
				continue
			}
			if n > 0 {
				zlog.Info("expired stale payment attempts", zap.Int64("count", n))
			}
		}
	}
}
