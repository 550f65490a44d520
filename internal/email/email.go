package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/busticketing/internal/kafka"
)

type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) SendPayment(ctx context.Context, event kafka.PaymentEvent) error {
	switch event.Type {
	case "payment_partial_failure":
		// Operator alert, not a rider email: money captured, no reservation.
		fmt.Printf("ALERT operators: partial failure on transaction %s: %s\n", event.TransactionID, event.Reason)
	case "payment_completed":
		fmt.Printf("send email to owner %s: payment %s completed, reservation %s is paid\n", event.OwnerID, event.TransactionID, event.ReservationID)
	case "payment_failed":
		fmt.Printf("send email to owner %s: payment %s failed (%s)\n", event.OwnerID, event.TransactionID, event.Reason)
	}
	return nil
}

func (s *Sender) SendReservation(ctx context.Context, event kafka.ReservationEvent) error {
	fmt.Printf("send email to owner %s about %s for reservation %s\n", event.OwnerID, event.Type, event.ReservationID)
	return nil
}
