package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/Domenick1991/busticketing/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) InsertIfAbsent(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatusIfNotCompleted(ctx context.Context, transactionID string, status domain.PaymentStatus, amountMinor int64) error {
	args := m.Called(ctx, transactionID, status, amountMinor)
	return args.Error(0)
}

func (m *MockPaymentRepository) CompleteAndLink(ctx context.Context, transactionID, reservationID string, amountMinor int64) (bool, error) {
	args := m.Called(ctx, transactionID, reservationID, amountMinor)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) CompleteWithReservation(ctx context.Context, transactionID string, amountMinor int64, res *domain.Reservation) (string, error) {
	args := m.Called(ctx, transactionID, amountMinor, res)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentRepository) CompletedExistsForReservation(ctx context.Context, reservationID string) (bool, error) {
	args := m.Called(ctx, reservationID)
	return args.Bool(0), args.Error(1)
}

type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) CreatePending(ctx context.Context, res *domain.Reservation) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) (*domain.Reservation, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Initiate(ctx context.Context, amountMinor int64, returnURL, orderRef string, metadata []byte) (*gateway.InitiateResponse, error) {
	args := m.Called(ctx, amountMinor, returnURL, orderRef, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResponse), args.Error(1)
}

func (m *MockGatewayClient) Verify(ctx context.Context, transactionID string) (*gateway.VerifyResponse, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.VerifyResponse), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func (m *MockProducer) PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error {
	args := m.Called(ctx, topic, key, value, maxRetries)
	return args.Error(0)
}

const testTTL = 2 * time.Hour

func newTestService(payments *MockPaymentRepository, reservations *MockReservationRepository, gw *MockGatewayClient) *PaymentService {
	return NewPaymentService(payments, reservations, gw, nil, "", testTTL)
}

func pendingReservation(id string, createdAt time.Time) *domain.Reservation {
	return &domain.Reservation{
		ID:         id,
		FromStop:   "Riverside",
		ToStop:     "Central Station",
		PriceMinor: 50000,
		Passengers: []string{"Anna Lee"},
		Status:     domain.ReservationStatusPending,
		OwnerID:    "owner-1",
		CreatedAt:  createdAt,
	}
}

func TestInitiatePayment_RequiresExactlyOneTarget(t *testing.T) {
	service := newTestService(&MockPaymentRepository{}, &MockReservationRepository{}, &MockGatewayClient{})
	ctx := context.Background()

	var ve *domain.ValidationError

	_, err := service.InitiatePayment(ctx, InitiatePaymentInput{AmountMinor: 500, ReturnURL: "https://app/return"})
	assert.ErrorAs(t, err, &ve)

	_, err = service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor:   500,
		ReservationID: "r1",
		Pending:       &domain.PendingReservation{FromStop: "A", ToStop: "B", Passengers: []string{"X"}},
		ReturnURL:     "https://app/return",
	})
	assert.ErrorAs(t, err, &ve)
}

func TestInitiatePayment_RejectsBadAmountAndReturnURL(t *testing.T) {
	service := newTestService(&MockPaymentRepository{}, &MockReservationRepository{}, &MockGatewayClient{})
	ctx := context.Background()

	var ve *domain.ValidationError

	_, err := service.InitiatePayment(ctx, InitiatePaymentInput{AmountMinor: 0, ReservationID: "r1", ReturnURL: "https://app/return"})
	assert.ErrorAs(t, err, &ve)

	_, err = service.InitiatePayment(ctx, InitiatePaymentInput{AmountMinor: 500, ReservationID: "r1"})
	assert.ErrorAs(t, err, &ve)
}

func TestInitiatePayment_ForReservation(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()
	res := pendingReservation("r1", time.Now())

	mockReservations.On("GetByID", ctx, "r1").Return(res, nil).Once()
	mockGateway.On("Initiate", ctx, int64(500), "https://app/return", mock.AnythingOfType("string"), []byte(nil)).
		Return(&gateway.InitiateResponse{PaymentURL: "https://pay/tx1", TransactionID: "tx1"}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.TransactionID == "tx1" && p.ReservationID == "r1" && p.Status == domain.PaymentStatusInitiated && p.AmountMinor == 500
	})).Return(&domain.Payment{TransactionID: "tx1"}, nil).Once()

	result, err := service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor:   500,
		ReservationID: "r1",
		ReturnURL:     "https://app/return",
	})

	assert.NoError(t, err)
	assert.Equal(t, "tx1", result.TransactionID)
	assert.Equal(t, "https://pay/tx1", result.PaymentURL)

	mockGateway.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
}

func TestInitiatePayment_ExpiredReservation(t *testing.T) {
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(&MockPaymentRepository{}, mockReservations, mockGateway)

	ctx := context.Background()
	res := pendingReservation("r1", time.Now().Add(-3*time.Hour))

	mockReservations.On("GetByID", ctx, "r1").Return(res, nil).Once()

	_, err := service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor:   500,
		ReservationID: "r1",
		ReturnURL:     "https://app/return",
	})

	assert.ErrorIs(t, err, domain.ErrReservationExpired)
	mockGateway.AssertNotCalled(t, "Initiate")
}

func TestInitiatePayment_NonPendingReservation(t *testing.T) {
	mockReservations := &MockReservationRepository{}
	service := newTestService(&MockPaymentRepository{}, mockReservations, &MockGatewayClient{})

	ctx := context.Background()
	res := pendingReservation("r1", time.Now())
	res.Status = domain.ReservationStatusPaid

	mockReservations.On("GetByID", ctx, "r1").Return(res, nil).Once()

	_, err := service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor:   500,
		ReservationID: "r1",
		ReturnURL:     "https://app/return",
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInitiatePayment_PendingDetailsStashedServerSide(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, &MockReservationRepository{}, mockGateway)

	ctx := context.Background()
	pending := &domain.PendingReservation{
		FromStop:   "A",
		ToStop:     "B",
		Passengers: []string{"X"},
		OwnerID:    "owner-2",
	}

	hasPayload := func(data []byte) bool {
		var got domain.PendingReservation
		if err := json.Unmarshal(data, &got); err != nil {
			return false
		}
		return got.FromStop == "A" && got.ToStop == "B" && len(got.Passengers) == 1 && got.Passengers[0] == "X" && got.PriceMinor == 300
	}

	mockGateway.On("Initiate", ctx, int64(300), "https://app/return", mock.AnythingOfType("string"), mock.MatchedBy(hasPayload)).
		Return(&gateway.InitiateResponse{PaymentURL: "https://pay/tx2", TransactionID: "tx2"}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.TransactionID == "tx2" && p.ReservationID == "" && hasPayload(p.PendingPayload)
	})).Return(&domain.Payment{TransactionID: "tx2"}, nil).Once()

	result, err := service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor: 300,
		Pending:     pending,
		ReturnURL:   "https://app/return",
	})

	assert.NoError(t, err)
	assert.Equal(t, "tx2", result.TransactionID)

	mockGateway.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
}

func TestInitiatePayment_GatewayFailure(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()
	mockReservations.On("GetByID", ctx, "r1").Return(pendingReservation("r1", time.Now()), nil).Once()
	mockGateway.On("Initiate", ctx, int64(500), "https://app/return", mock.AnythingOfType("string"), []byte(nil)).
		Return(nil, &domain.GatewayError{Op: "initiate", Err: errors.New("connection refused")}).Once()

	_, err := service.InitiatePayment(ctx, InitiatePaymentInput{
		AmountMinor:   500,
		ReservationID: "r1",
		ReturnURL:     "https://app/return",
	})

	var ge *domain.GatewayError
	assert.ErrorAs(t, err, &ge)
	mockPayments.AssertNotCalled(t, "InsertIfAbsent")
}

// Scenario A: a payment initiated against an existing reservation completes;
// the gateway's amount, not the locally recorded one, is persisted.
func TestReconcile_CompletedLinkedReservation(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx1").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 50000}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx1", AmountMinor: 500, Status: domain.PaymentStatusInitiated, ReservationID: "r1"}, nil).Once()

	paid := pendingReservation("r1", time.Now())
	paid.Status = domain.ReservationStatusPaid
	mockReservations.On("UpdateStatus", ctx, "r1", domain.ReservationStatusPaid).Return(paid, nil).Once()
	mockPayments.On("CompleteAndLink", ctx, "tx1", "r1", int64(50000)).Return(true, nil).Once()

	result, err := service.Reconcile(ctx, "tx1")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "r1", result.ReservationID)
	assert.Equal(t, gateway.StatusCompleted, result.GatewayStatus)

	mockGateway.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
	mockReservations.AssertExpectations(t)
}

// Reconciling the same completed transaction N times converges on the same
// reservation and the same completed payment, never an error.
func TestReconcile_Idempotent(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx1").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 50000}, nil).Times(3)
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx1", Status: domain.PaymentStatusCompleted, ReservationID: "r1"}, nil).Times(3)

	paid := pendingReservation("r1", time.Now())
	paid.Status = domain.ReservationStatusPaid
	// Repeating an already applied transition is a no-op returning the row.
	mockReservations.On("UpdateStatus", ctx, "r1", domain.ReservationStatusPaid).Return(paid, nil).Times(3)
	// The CAS reports false once another run already completed the payment.
	mockPayments.On("CompleteAndLink", ctx, "tx1", "r1", int64(50000)).Return(false, nil).Times(3)

	for i := 0; i < 3; i++ {
		result, err := service.Reconcile(ctx, "tx1")
		assert.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "r1", result.ReservationID)
	}

	mockGateway.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
	mockReservations.AssertExpectations(t)
}

// Scenario B: pay first, reserve later. The reservation is built PAID from the
// server-side payload and linked to the payment in one repository transaction.
func TestReconcile_PayFirstCreatesPaidReservation(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()
	payload, _ := json.Marshal(domain.PendingReservation{
		FromStop:   "A",
		ToStop:     "B",
		PriceMinor: 300,
		Passengers: []string{"X"},
		OwnerID:    "owner-2",
	})

	mockGateway.On("Verify", ctx, "tx2").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 300}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx2", Status: domain.PaymentStatusInitiated, PendingPayload: payload}, nil).Once()
	mockPayments.On("CompleteWithReservation", ctx, "tx2", int64(300), mock.MatchedBy(func(res *domain.Reservation) bool {
		return res.FromStop == "A" && res.ToStop == "B" && len(res.Passengers) == 1 && res.Passengers[0] == "X" && res.OwnerID == "owner-2"
	})).Return("res-b", nil).Once()

	result, err := service.Reconcile(ctx, "tx2")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "res-b", result.ReservationID)

	mockReservations.AssertNotCalled(t, "UpdateStatus")
	mockPayments.AssertExpectations(t)
}

// A redirect can arrive for a transaction this instance never saw initiated.
// The payload attached at the gateway is the fallback source of truth.
func TestReconcile_UnknownTransactionUsesGatewayMetadata(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, &MockReservationRepository{}, mockGateway)

	ctx := context.Background()
	metadata, _ := json.Marshal(domain.PendingReservation{
		FromStop:   "Harbor",
		ToStop:     "Airport",
		PriceMinor: 1200,
		Passengers: []string{"Pat Doe"},
	})

	mockGateway.On("Verify", ctx, "tx9").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 1200, Metadata: metadata}, nil).Once()
	// First local sighting: the candidate row carries the gateway metadata.
	mockPayments.On("InsertIfAbsent", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.TransactionID == "tx9" && p.Status == domain.PaymentStatusCompleted && len(p.PendingPayload) > 0
	})).Return(&domain.Payment{TransactionID: "tx9", Status: domain.PaymentStatusCompleted, PendingPayload: metadata}, nil).Once()
	mockPayments.On("CompleteWithReservation", ctx, "tx9", int64(1200), mock.AnythingOfType("*domain.Reservation")).
		Return("res-9", nil).Once()

	result, err := service.Reconcile(ctx, "tx9")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "res-9", result.ReservationID)

	mockPayments.AssertExpectations(t)
}

// Money captured but no usable payload: the engine must not drop the signal.
func TestReconcile_MalformedPayloadIsPartialFailure(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockGateway := &MockGatewayClient{}
	mockProducer := &MockProducer{}
	service := NewPaymentService(mockPayments, &MockReservationRepository{}, mockGateway, mockProducer, "events", testTTL,
		WithNotificationsTopic("notifications"))

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx3").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 700}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx3", Status: domain.PaymentStatusInitiated, PendingPayload: []byte("{broken")}, nil).Once()
	mockProducer.On("PublishWithRetry", ctx, "notifications", "tx3", mock.Anything, 3).Return(nil).Once()

	result, err := service.Reconcile(ctx, "tx3")

	assert.Nil(t, result)
	var pf *domain.PartialFailureError
	assert.ErrorAs(t, err, &pf)
	assert.Equal(t, "tx3", pf.TransactionID)

	mockPayments.AssertNotCalled(t, "CompleteWithReservation")
	mockProducer.AssertExpectations(t)
}

// Scenario C: a non-COMPLETED gateway status is mirrored onto the ledger and
// no reservation is touched.
func TestReconcile_PendingGatewayStatus(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx4").
		Return(&gateway.VerifyResponse{Status: gateway.StatusPending, AmountMinor: 500}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx4", Status: domain.PaymentStatusInitiated, ReservationID: "r1"}, nil).Once()
	mockPayments.On("UpdateStatusIfNotCompleted", ctx, "tx4", domain.PaymentStatusInitiated, int64(500)).Return(nil).Once()

	result, err := service.Reconcile(ctx, "tx4")

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, gateway.StatusPending, result.GatewayStatus)
	assert.Contains(t, result.Reason, "PENDING")

	mockReservations.AssertNotCalled(t, "UpdateStatus")
	mockPayments.AssertExpectations(t)
}

func TestReconcile_FailedGatewayStatus(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx5").
		Return(&gateway.VerifyResponse{Status: gateway.StatusFailed, AmountMinor: 500}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx5", Status: domain.PaymentStatusInitiated}, nil).Once()
	mockPayments.On("UpdateStatusIfNotCompleted", ctx, "tx5", domain.PaymentStatusFailed, int64(500)).Return(nil).Once()

	result, err := service.Reconcile(ctx, "tx5")

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, gateway.StatusFailed, result.GatewayStatus)

	mockReservations.AssertNotCalled(t, "UpdateStatus")
}

func TestReconcile_GatewayVerifyFailure(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, &MockReservationRepository{}, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx6").
		Return(nil, &domain.GatewayError{Op: "verify", Err: errors.New("timeout")}).Once()

	result, err := service.Reconcile(ctx, "tx6")

	assert.Nil(t, result)
	var ge *domain.GatewayError
	assert.ErrorAs(t, err, &ge)

	// Nothing persisted without a fresh gateway answer.
	mockPayments.AssertNotCalled(t, "InsertIfAbsent")
}

// A completed payment against an explicitly cancelled reservation cannot flip
// the terminal status; the captured money surfaces as a partial failure.
func TestReconcile_CancelledReservationIsPartialFailure(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	mockProducer := &MockProducer{}
	service := NewPaymentService(mockPayments, mockReservations, mockGateway, mockProducer, "events", testTTL,
		WithNotificationsTopic("notifications"))

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx7").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 500}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx7", ReservationID: "r1", Status: domain.PaymentStatusInitiated}, nil).Once()
	mockReservations.On("UpdateStatus", ctx, "r1", domain.ReservationStatusPaid).
		Return(nil, domain.ErrConflict).Once()
	// The capture is still recorded on the ledger for the refund workflow.
	mockPayments.On("CompleteAndLink", ctx, "tx7", "r1", int64(500)).Return(true, nil).Once()
	mockProducer.On("PublishWithRetry", ctx, "notifications", "tx7", mock.Anything, 3).Return(nil).Once()

	_, err := service.Reconcile(ctx, "tx7")

	var pf *domain.PartialFailureError
	assert.ErrorAs(t, err, &pf)
	assert.ErrorIs(t, err, domain.ErrConflict)

	mockPayments.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

// Scenario D: the payment window lapsed between initiation and completion.
// The engine still honors the payment; a late ticket beats taken money with
// no ticket.
func TestReconcile_LateCompletionStillHonored(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockReservations := &MockReservationRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, mockReservations, mockGateway)

	ctx := context.Background()

	mockGateway.On("Verify", ctx, "tx8").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 50000}, nil).Once()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx8", ReservationID: "r2", Status: domain.PaymentStatusInitiated}, nil).Once()

	// Created three hours ago with a two hour TTL: expired as a view, but
	// reconciliation does not consult expiry at all.
	paid := pendingReservation("r2", time.Now().Add(-3*time.Hour))
	paid.Status = domain.ReservationStatusPaid
	mockReservations.On("UpdateStatus", ctx, "r2", domain.ReservationStatusPaid).Return(paid, nil).Once()
	mockPayments.On("CompleteAndLink", ctx, "tx8", "r2", int64(50000)).Return(true, nil).Once()

	result, err := service.Reconcile(ctx, "tx8")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "r2", result.ReservationID)

	mockReservations.AssertExpectations(t)
}

// Two racing reconciliations on the pay-first path converge on one
// reservation: the repository transaction hands the loser the winner's id.
func TestReconcile_RacingRunsConvergeOnOneReservation(t *testing.T) {
	mockPayments := &MockPaymentRepository{}
	mockGateway := &MockGatewayClient{}
	service := newTestService(mockPayments, &MockReservationRepository{}, mockGateway)

	ctx := context.Background()
	payload, _ := json.Marshal(domain.PendingReservation{
		FromStop:   "A",
		ToStop:     "B",
		PriceMinor: 300,
		Passengers: []string{"X"},
	})

	mockGateway.On("Verify", ctx, "tx2").
		Return(&gateway.VerifyResponse{Status: gateway.StatusCompleted, AmountMinor: 300}, nil).Twice()
	mockPayments.On("InsertIfAbsent", ctx, mock.AnythingOfType("*domain.Payment")).
		Return(&domain.Payment{TransactionID: "tx2", Status: domain.PaymentStatusInitiated, PendingPayload: payload}, nil).Twice()
	mockPayments.On("CompleteWithReservation", ctx, "tx2", int64(300), mock.AnythingOfType("*domain.Reservation")).
		Return("winner", nil).Twice()

	first, err := service.Reconcile(ctx, "tx2")
	assert.NoError(t, err)
	second, err := service.Reconcile(ctx, "tx2")
	assert.NoError(t, err)

	assert.Equal(t, "winner", first.ReservationID)
	assert.Equal(t, first.ReservationID, second.ReservationID)
}

func TestReconcile_EmptyTransactionID(t *testing.T) {
	service := newTestService(&MockPaymentRepository{}, &MockReservationRepository{}, &MockGatewayClient{})

	_, err := service.Reconcile(context.Background(), "")

	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
