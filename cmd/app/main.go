package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/busticketing/config"
	"github.com/Domenick1991/busticketing/internal/bootstrap"
	"github.com/Domenick1991/busticketing/internal/cache"
	"github.com/Domenick1991/busticketing/internal/gateway"
	"github.com/Domenick1991/busticketing/internal/kafka"
	"github.com/Domenick1991/busticketing/internal/repository"
	"github.com/Domenick1991/busticketing/internal/service/payment"
	"github.com/Domenick1991/busticketing/internal/service/reservation"
	"github.com/Domenick1991/busticketing/internal/service/trips"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Reservation.TripsCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	gatewayClient := gateway.NewHTTPClient(cfg.Gateway)

	tripRepo := repository.NewTripRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	ttl := time.Duration(cfg.Reservation.TTLHours) * time.Hour

	tripService := trips.NewTripService(tripRepo, redisCache)
	reservationService := reservation.NewReservationService(
		reservationRepo,
		paymentRepo,
		tripRepo,
		producer,
		cfg.Kafka.EventsTopic,
		ttl,
		reservation.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)
	paymentService := payment.NewPaymentService(
		paymentRepo,
		reservationRepo,
		gatewayClient,
		producer,
		cfg.Kafka.EventsTopic,
		ttl,
		payment.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	if err := bootstrap.Run(ctx, cfg, tripService, reservationService, paymentService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
