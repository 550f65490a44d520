package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/busticketing/config"
	"github.com/Domenick1991/busticketing/internal/email"
	"github.com/Domenick1991/busticketing/internal/kafka"
	kafkaGo "github.com/segmentio/kafka-go"
)

// The worker drains the notifications topic: rider emails for payment and
// reservation events, operator alerts for partial failures. There is no
// expiration sweep; reservation expiry is computed at read time, never stored.
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

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg.Value, &head); err != nil {
			log.Printf("decode event error: %v", err)
			return nil
		}

		switch head.Type {
		case "payment_initiated", "payment_completed", "payment_failed", "payment_partial_failure":
			var event kafka.PaymentEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode payment event error: %v", err)
				return nil
			}
			return emailSender.SendPayment(ctx, event)
		case "reservation_created", "reservation_cancelled", "reservation_status_override":
			var event kafka.ReservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode reservation event error: %v", err)
				return nil
			}
			return emailSender.SendReservation(ctx, event)
		default:
			log.Printf("skipping unknown event type %q", head.Type)
			return nil
		}
	}); err != nil && ctx.Err() == nil {
		log.Printf("consumer stopped: %v", err)
	}
}
