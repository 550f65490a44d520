package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusPaid      ReservationStatus = "PAID"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusPaid, ReservationStatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never transition again.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusPaid || s == ReservationStatusCancelled
}

// CanTransition reports whether from -> to is a legal status change.
// The machine is monotone: PENDING -> PAID, PENDING -> CANCELLED, nothing else.
func CanTransition(from, to ReservationStatus) bool {
	switch from {
	case ReservationStatusPending:
		return to == ReservationStatusPaid || to == ReservationStatusCancelled
	default:
		return false
	}
}

type Reservation struct {
	ID              string
	TripID          int64
	FromStop        string
	ToStop          string
	Departure       time.Time
	DurationMinutes int
	PriceMinor      int64
	Passengers      []string
	Status          ReservationStatus
	OwnerID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExpiresAt is derived, never stored.
func (r *Reservation) ExpiresAt(ttl time.Duration) time.Time {
	return r.CreatedAt.Add(ttl)
}

// Expired is the view-level expiry predicate. It gates new actions only;
// reconciliation of an already-initiated payment ignores it.
func (r *Reservation) Expired(now time.Time, ttl time.Duration) bool {
	return now.After(r.ExpiresAt(ttl))
}
