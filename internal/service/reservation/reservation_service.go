package reservation

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/Domenick1991/busticketing/internal/kafka"
	"github.com/Domenick1991/busticketing/internal/repository"
	"github.com/google/uuid"
)

type ReservationUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, id string) (*domain.Reservation, error)
	// OverrideStatus is the manual operator path. It runs through the same
	// transition guard as everything else but is logged and published
	// separately so records can tell it apart from engine transitions.
	OverrideStatus(ctx context.Context, id string, status domain.ReservationStatus, operator string) (*domain.Reservation, error)
	TTL() time.Duration
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ReservationService struct {
	reservations       repository.ReservationRepository
	payments           repository.PaymentRepository
	trips              repository.TripRepository
	producer           Producer
	eventsTopic        string
	notificationsTopic string
	ttl                time.Duration
}

type CreateReservationInput struct {
	TripID          int64     `json:"trip_id"`
	FromStop        string    `json:"from"`
	ToStop          string    `json:"to"`
	Departure       time.Time `json:"departure"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceMinor      int64     `json:"price_minor"`
	Passengers      []string  `json:"passengers"`
	OwnerID         string    `json:"-"`
}

type ReservationServiceOption func(*ReservationService)

func WithNotificationsTopic(topic string) ReservationServiceOption {
	return func(s *ReservationService) {
		s.notificationsTopic = topic
	}
}

func NewReservationService(
	reservations repository.ReservationRepository,
	payments repository.PaymentRepository,
	trips repository.TripRepository,
	producer Producer,
	eventsTopic string,
	ttl time.Duration,
	opts ...ReservationServiceOption,
) *ReservationService {
	service := &ReservationService{
		reservations: reservations,
		payments:     payments,
		trips:        trips,
		producer:     producer,
		eventsTopic:  eventsTopic,
		ttl:          ttl,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *ReservationService) TTL() time.Duration {
	return s.ttl
}

func validatePassengers(passengers []string) error {
	if len(passengers) == 0 {
		return domain.NewValidationError("passengers", "at least one passenger name is required")
	}
	for _, name := range passengers {
		if strings.TrimSpace(name) == "" {
			return domain.NewValidationError("passengers", "passenger names must not be empty")
		}
	}
	return nil
}

func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error) {
	if input.OwnerID == "" {
		return nil, domain.NewValidationError("owner_id", "caller identity is required")
	}
	if err := validatePassengers(input.Passengers); err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		ID:              uuid.NewString(),
		TripID:          input.TripID,
		FromStop:        input.FromStop,
		ToStop:          input.ToStop,
		Departure:       input.Departure,
		DurationMinutes: input.DurationMinutes,
		PriceMinor:      input.PriceMinor,
		Passengers:      input.Passengers,
		Status:          domain.ReservationStatusPending,
		OwnerID:         input.OwnerID,
	}

	if input.TripID != 0 {
		trip, err := s.trips.GetByID(ctx, input.TripID)
		if err != nil {
			return nil, err
		}
		if res.FromStop == "" {
			res.FromStop = trip.FromStop
		}
		if res.ToStop == "" {
			res.ToStop = trip.ToStop
		}
		if res.Departure.IsZero() {
			res.Departure = trip.Departure
		}
		if res.DurationMinutes == 0 {
			res.DurationMinutes = trip.DurationMinutes
		}
		if res.PriceMinor == 0 {
			res.PriceMinor = trip.PriceMinor * int64(len(res.Passengers))
		}
	}

	if res.FromStop == "" || res.ToStop == "" {
		return nil, domain.NewValidationError("route", "both origin and destination stops are required")
	}
	if res.PriceMinor <= 0 {
		return nil, domain.NewValidationError("price_minor", "price must be positive")
	}

	if err := s.reservations.CreatePending(ctx, res); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, "reservation_created", res, ""); err != nil {
		log.Printf("WARNING: failed to publish reservation_created event for %s: %v", res.ID, err)
	}
	return res, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	current, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.ReservationStatusCancelled {
		return current, nil
	}
	if current.Status == domain.ReservationStatusPaid {
		return nil, domain.ErrConflict
	}

	// A completed payment pins the reservation even if the engine has not
	// flipped the status yet.
	paid, err := s.payments.CompletedExistsForReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, domain.ErrConflict
	}

	updated, err := s.reservations.UpdateStatus(ctx, id, domain.ReservationStatusCancelled)
	if err != nil {
		return nil, err
	}
	if updated.TripID != 0 {
		if err := s.trips.ReleaseSeats(ctx, updated.TripID, len(updated.Passengers)); err != nil {
			log.Printf("WARNING: failed to release seats for trip %d: %v", updated.TripID, err)
		}
	}
	if err := s.publish(ctx, "reservation_cancelled", updated, ""); err != nil {
		log.Printf("WARNING: failed to publish reservation_cancelled event for %s: %v", updated.ID, err)
	}
	return updated, nil
}

func (s *ReservationService) OverrideStatus(ctx context.Context, id string, status domain.ReservationStatus, operator string) (*domain.Reservation, error) {
	if !status.Valid() || status == domain.ReservationStatusPending {
		return nil, domain.NewValidationError("status", "override target must be PAID or CANCELLED")
	}
	if operator == "" {
		return nil, domain.NewValidationError("operator", "operator identity is required")
	}

	current, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	updated, err := s.reservations.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	log.Printf("MANUAL OVERRIDE: reservation %s set to %s by operator %s", id, status, operator)
	if updated.TripID != 0 && status == domain.ReservationStatusCancelled {
		if err := s.trips.ReleaseSeats(ctx, updated.TripID, len(updated.Passengers)); err != nil {
			log.Printf("WARNING: failed to release seats for trip %d: %v", updated.TripID, err)
		}
	}
	if err := s.publish(ctx, "reservation_status_override", updated, operator); err != nil {
		log.Printf("WARNING: failed to publish reservation_status_override event for %s: %v", updated.ID, err)
	}
	return updated, nil
}

func (s *ReservationService) publish(ctx context.Context, eventType string, res *domain.Reservation, operator string) error {
	if s.producer == nil || s.eventsTopic == "" {
		return nil
	}
	event := kafka.ReservationEvent{
		Type:          eventType,
		ReservationID: res.ID,
		OwnerID:       res.OwnerID,
		TripID:        res.TripID,
		Status:        string(res.Status),
		Operator:      operator,
		ExpiresAt:     res.ExpiresAt(s.ttl),
		OccurredAt:    time.Now(),
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, res.ID, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, res.ID, event)
	}
	return nil
}

var _ ReservationUseCase = (*ReservationService)(nil)
