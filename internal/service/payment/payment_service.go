package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/Domenick1991/busticketing/internal/gateway"
	"github.com/Domenick1991/busticketing/internal/kafka"
	"github.com/Domenick1991/busticketing/internal/repository"
	"github.com/google/uuid"
)

type PaymentUseCase interface {
	InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*InitiatePaymentResult, error)
	// Reconcile re-queries the gateway for the authoritative status of a
	// transaction and converges reservation and payment state to match it.
	// Safe to call any number of times; the verify poll and the gateway
	// redirect both land here.
	Reconcile(ctx context.Context, transactionID string) (*ReconcileResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

type InitiatePaymentInput struct {
	AmountMinor   int64
	ReservationID string
	Pending       *domain.PendingReservation
	ReturnURL     string
}

type InitiatePaymentResult struct {
	PaymentURL    string
	TransactionID string
}

type ReconcileResult struct {
	Success       bool
	ReservationID string
	GatewayStatus gateway.Status
	Reason        string
}

type PaymentService struct {
	payments           repository.PaymentRepository
	reservations       repository.ReservationRepository
	gateway            gateway.Client
	producer           Producer
	eventsTopic        string
	notificationsTopic string
	ttl                time.Duration
}

type PaymentServiceOption func(*PaymentService)

func WithNotificationsTopic(topic string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.notificationsTopic = topic
	}
}

func NewPaymentService(
	payments repository.PaymentRepository,
	reservations repository.ReservationRepository,
	gatewayClient gateway.Client,
	producer Producer,
	eventsTopic string,
	ttl time.Duration,
	opts ...PaymentServiceOption,
) *PaymentService {
	service := &PaymentService{
		payments:     payments,
		reservations: reservations,
		gateway:      gatewayClient,
		producer:     producer,
		eventsTopic:  eventsTopic,
		ttl:          ttl,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *PaymentService) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*InitiatePaymentResult, error) {
	if (input.ReservationID == "") == (input.Pending == nil) {
		return nil, domain.NewValidationError("payment", "exactly one of reservation_id or pending details must be supplied")
	}
	if input.AmountMinor <= 0 {
		return nil, domain.NewValidationError("amount_minor", "amount must be positive")
	}
	if input.ReturnURL == "" {
		return nil, domain.NewValidationError("return_url", "return url is required")
	}

	var payload []byte
	if input.ReservationID != "" {
		res, err := s.reservations.GetByID(ctx, input.ReservationID)
		if err != nil {
			return nil, err
		}
		if res.Status != domain.ReservationStatusPending {
			return nil, domain.ErrConflict
		}
		// Expiry gates new payments only. A payment initiated before the
		// window lapsed is still honored by Reconcile.
		if res.Expired(time.Now(), s.ttl) {
			return nil, domain.ErrReservationExpired
		}
	} else {
		pending := *input.Pending
		if err := validatePending(&pending); err != nil {
			return nil, err
		}
		if pending.PriceMinor == 0 {
			pending.PriceMinor = input.AmountMinor
		}
		data, err := json.Marshal(pending)
		if err != nil {
			return nil, domain.NewValidationError("pending", "pending details are not serializable")
		}
		payload = data
	}

	orderRef := uuid.NewString()
	initiated, err := s.gateway.Initiate(ctx, input.AmountMinor, input.ReturnURL, orderRef, payload)
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ID:             uuid.NewString(),
		TransactionID:  initiated.TransactionID,
		AmountMinor:    input.AmountMinor,
		Status:         domain.PaymentStatusInitiated,
		ReservationID:  input.ReservationID,
		PendingPayload: payload,
	}
	if _, err := s.payments.InsertIfAbsent(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment initiation: %w", err)
	}

	event := kafka.PaymentEvent{
		Type:          "payment_initiated",
		TransactionID: initiated.TransactionID,
		ReservationID: input.ReservationID,
		AmountMinor:   input.AmountMinor,
		Status:        string(domain.PaymentStatusInitiated),
		OccurredAt:    time.Now(),
	}
	if err := s.publish(ctx, event); err != nil {
		log.Printf("WARNING: failed to publish payment_initiated event for %s: %v", initiated.TransactionID, err)
	}

	return &InitiatePaymentResult{PaymentURL: initiated.PaymentURL, TransactionID: initiated.TransactionID}, nil
}

func (s *PaymentService) Reconcile(ctx context.Context, transactionID string) (*ReconcileResult, error) {
	if transactionID == "" {
		return nil, domain.NewValidationError("transaction_id", "transaction id is required")
	}

	// Always ask the gateway. A caller claiming success is not evidence.
	verified, err := s.gateway.Verify(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	candidate := &domain.Payment{
		ID:             uuid.NewString(),
		TransactionID:  transactionID,
		AmountMinor:    verified.AmountMinor,
		Status:         paymentStatusFrom(verified.Status),
		PendingPayload: verified.Metadata,
	}
	p, err := s.payments.InsertIfAbsent(ctx, candidate)
	if err != nil {
		if verified.Status == gateway.StatusCompleted {
			return nil, s.partialFailure(ctx, transactionID, fmt.Errorf("record payment: %w", err))
		}
		return nil, err
	}

	if verified.Status != gateway.StatusCompleted {
		mirrored := paymentStatusFrom(verified.Status)
		if err := s.payments.UpdateStatusIfNotCompleted(ctx, transactionID, mirrored, verified.AmountMinor); err != nil {
			return nil, err
		}
		if mirrored == domain.PaymentStatusFailed {
			event := kafka.PaymentEvent{
				Type:          "payment_failed",
				TransactionID: transactionID,
				ReservationID: p.ReservationID,
				AmountMinor:   verified.AmountMinor,
				Status:        string(mirrored),
				Reason:        fmt.Sprintf("gateway reported %s", verified.Status),
				OccurredAt:    time.Now(),
			}
			if err := s.publish(ctx, event); err != nil {
				log.Printf("WARNING: failed to publish payment_failed event for %s: %v", transactionID, err)
			}
		}
		return &ReconcileResult{
			Success:       false,
			ReservationID: p.ReservationID,
			GatewayStatus: verified.Status,
			Reason:        fmt.Sprintf("gateway reported %s", verified.Status),
		}, nil
	}

	reservationID, err := s.converge(ctx, transactionID, verified, p)
	if err != nil {
		return nil, err
	}

	event := kafka.PaymentEvent{
		Type:          "payment_completed",
		TransactionID: transactionID,
		ReservationID: reservationID,
		OwnerID:       ownerFromPayload(p.PendingPayload),
		AmountMinor:   verified.AmountMinor,
		Status:        string(domain.PaymentStatusCompleted),
		OccurredAt:    time.Now(),
	}
	if err := s.publish(ctx, event); err != nil {
		log.Printf("WARNING: failed to publish payment_completed event for %s: %v", transactionID, err)
	}

	return &ReconcileResult{
		Success:       true,
		ReservationID: reservationID,
		GatewayStatus: gateway.StatusCompleted,
		Reason:        "payment completed",
	}, nil
}

// converge applies the COMPLETED branch: mark the linked reservation PAID, or
// build one from the stashed payload when the payment was taken first.
func (s *PaymentService) converge(ctx context.Context, transactionID string, verified *gateway.VerifyResponse, p *domain.Payment) (string, error) {
	if p.ReservationID != "" {
		res, err := s.reservations.UpdateStatus(ctx, p.ReservationID, domain.ReservationStatusPaid)
		if err != nil {
			// The money is captured; whatever kept the reservation from
			// reaching PAID is a partial failure, not a plain error. The
			// ledger still records the capture so refunds have a row to work
			// from.
			if _, linkErr := s.payments.CompleteAndLink(ctx, transactionID, p.ReservationID, verified.AmountMinor); linkErr != nil {
				log.Printf("WARNING: failed to record captured payment %s: %v", transactionID, linkErr)
			}
			return "", s.partialFailure(ctx, transactionID, fmt.Errorf("mark reservation %s paid: %w", p.ReservationID, err))
		}
		if _, err := s.payments.CompleteAndLink(ctx, transactionID, res.ID, verified.AmountMinor); err != nil {
			return "", s.partialFailure(ctx, transactionID, fmt.Errorf("complete payment row: %w", err))
		}
		return res.ID, nil
	}

	payload := p.PendingPayload
	if len(payload) == 0 {
		payload = verified.Metadata
	}
	pending, err := decodePending(payload)
	if err != nil {
		return "", s.partialFailure(ctx, transactionID, err)
	}
	if pending.PriceMinor == 0 {
		pending.PriceMinor = verified.AmountMinor
	}

	res := &domain.Reservation{
		ID:              uuid.NewString(),
		TripID:          pending.TripID,
		FromStop:        pending.FromStop,
		ToStop:          pending.ToStop,
		Departure:       pending.Departure,
		DurationMinutes: pending.DurationMinutes,
		PriceMinor:      pending.PriceMinor,
		Passengers:      pending.Passengers,
		OwnerID:         pending.OwnerID,
	}
	reservationID, err := s.payments.CompleteWithReservation(ctx, transactionID, verified.AmountMinor, res)
	if err != nil {
		return "", s.partialFailure(ctx, transactionID, fmt.Errorf("create paid reservation: %w", err))
	}
	return reservationID, nil
}

// partialFailure alerts operators and wraps the cause. Retrying Reconcile with
// the same transaction id is the only recovery path; re-initiating payment
// would charge the rider twice.
func (s *PaymentService) partialFailure(ctx context.Context, transactionID string, cause error) error {
	log.Printf("PARTIAL FAILURE: transaction %s captured but not converged: %v", transactionID, cause)
	if s.producer != nil && s.notificationsTopic != "" {
		event := kafka.PaymentEvent{
			Type:          "payment_partial_failure",
			TransactionID: transactionID,
			Status:        string(domain.PaymentStatusCompleted),
			Reason:        cause.Error(),
			OccurredAt:    time.Now(),
		}
		if err := s.producer.PublishWithRetry(ctx, s.notificationsTopic, transactionID, event, 3); err != nil {
			log.Printf("WARNING: failed to publish partial failure alert for %s: %v", transactionID, err)
		}
	}
	return &domain.PartialFailureError{TransactionID: transactionID, Err: cause}
}

func (s *PaymentService) publish(ctx context.Context, event kafka.PaymentEvent) error {
	if s.producer == nil || s.eventsTopic == "" {
		return nil
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, event.TransactionID, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, event.TransactionID, event)
	}
	return nil
}

// paymentStatusFrom folds the gateway's status into the ledger enum. Anything
// the gateway still considers in flight stays INITIATED.
func paymentStatusFrom(status gateway.Status) domain.PaymentStatus {
	switch status {
	case gateway.StatusCompleted:
		return domain.PaymentStatusCompleted
	case gateway.StatusPending:
		return domain.PaymentStatusInitiated
	default:
		return domain.PaymentStatusFailed
	}
}

func validatePending(pending *domain.PendingReservation) error {
	if pending.FromStop == "" || pending.ToStop == "" {
		return domain.NewValidationError("pending", "both origin and destination stops are required")
	}
	if len(pending.Passengers) == 0 {
		return domain.NewValidationError("pending", "at least one passenger name is required")
	}
	for _, name := range pending.Passengers {
		if strings.TrimSpace(name) == "" {
			return domain.NewValidationError("pending", "passenger names must not be empty")
		}
	}
	return nil
}

func decodePending(payload []byte) (*domain.PendingReservation, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("pending reservation payload is missing")
	}
	var pending domain.PendingReservation
	if err := json.Unmarshal(payload, &pending); err != nil {
		return nil, fmt.Errorf("pending reservation payload is malformed: %w", err)
	}
	if err := validatePending(&pending); err != nil {
		return nil, fmt.Errorf("pending reservation payload is incomplete: %w", err)
	}
	return &pending, nil
}

func ownerFromPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var pending domain.PendingReservation
	if err := json.Unmarshal(payload, &pending); err != nil {
		return ""
	}
	return pending.OwnerID
}

var _ PaymentUseCase = (*PaymentService)(nil)
