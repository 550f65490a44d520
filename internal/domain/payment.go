package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is one attempt at the external gateway. TransactionID is issued by
// the gateway and is the idempotency key for the whole payment subsystem: at
// most one row per transaction id, ever.
type Payment struct {
	ID            string
	TransactionID string
	AmountMinor   int64
	Status        PaymentStatus
	ReservationID string // empty until linked
	// PendingPayload holds a serialized PendingReservation for the
	// pay-first-reserve-later flow. The server, not the client, owns it.
	PendingPayload []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingReservation is the reservation payload stashed on a Payment when no
// reservation row exists at initiation time.
type PendingReservation struct {
	TripID          int64     `json:"trip_id,omitempty"`
	FromStop        string    `json:"from"`
	ToStop          string    `json:"to"`
	Departure       time.Time `json:"departure"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceMinor      int64     `json:"price_minor"`
	Passengers      []string  `json:"passengers"`
	OwnerID         string    `json:"owner_id"`
}
