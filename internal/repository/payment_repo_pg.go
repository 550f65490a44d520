package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository interface {
	// InsertIfAbsent inserts the candidate row unless one already exists for
	// the same transaction id, and returns the canonical row either way. The
	// unique constraint on transaction_id makes this race-safe.
	InsertIfAbsent(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	// UpdateStatusIfNotCompleted mirrors a non-final gateway status onto the
	// row. COMPLETED rows are never downgraded.
	UpdateStatusIfNotCompleted(ctx context.Context, transactionID string, status domain.PaymentStatus, amountMinor int64) error
	// CompleteAndLink is the compare-and-swap completion: set COMPLETED and
	// the reservation linkage only if the row is not already COMPLETED.
	// Returns false when another reconciliation got there first.
	CompleteAndLink(ctx context.Context, transactionID, reservationID string, amountMinor int64) (bool, error)
	// CompleteWithReservation serves the pay-first-reserve-later path: inside
	// one database transaction it locks the payment row, inserts the PAID
	// reservation if no reconciliation has completed the payment yet, and
	// marks the payment COMPLETED with the linkage. Racing calls converge on
	// a single reservation id.
	CompleteWithReservation(ctx context.Context, transactionID string, amountMinor int64, res *domain.Reservation) (string, error)
	CompletedExistsForReservation(ctx context.Context, reservationID string) (bool, error)
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, transaction_id, amount_minor, status, reservation_id, pending_payload, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var reservationID *string
	if err := row.Scan(&p.ID, &p.TransactionID, &p.AmountMinor, &p.Status, &reservationID, &p.PendingPayload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if reservationID != nil {
		p.ReservationID = *reservationID
	}
	return &p, nil
}

func (r *PGPaymentRepository) InsertIfAbsent(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	var reservationID *string
	if p.ReservationID != "" {
		reservationID = &p.ReservationID
	}
	_, err := r.db.Exec(ctx, `INSERT INTO payments (id, transaction_id, amount_minor, status, reservation_id, pending_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING`,
		p.ID, p.TransactionID, p.AmountMinor, p.Status, reservationID, p.PendingPayload)
	if err != nil {
		return nil, err
	}
	return r.GetByTransactionID(ctx, p.TransactionID)
}

func (r *PGPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, transactionID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PGPaymentRepository) UpdateStatusIfNotCompleted(ctx context.Context, transactionID string, status domain.PaymentStatus, amountMinor int64) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET status=$1, amount_minor=$2, updated_at=now() WHERE transaction_id=$3 AND status <> $4`,
		status, amountMinor, transactionID, domain.PaymentStatusCompleted)
	return err
}

func (r *PGPaymentRepository) CompleteAndLink(ctx context.Context, transactionID, reservationID string, amountMinor int64) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status=$1, reservation_id=$2, amount_minor=$3, updated_at=now() WHERE transaction_id=$4 AND status <> $1`,
		domain.PaymentStatusCompleted, reservationID, amountMinor, transactionID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGPaymentRepository) CompleteWithReservation(ctx context.Context, transactionID string, amountMinor int64, res *domain.Reservation) (string, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var status domain.PaymentStatus
	var linked *string
	err = tx.QueryRow(ctx, `SELECT status, reservation_id FROM payments WHERE transaction_id=$1 FOR UPDATE`, transactionID).
		Scan(&status, &linked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}

	if status == domain.PaymentStatusCompleted && linked != nil {
		// A concurrent reconciliation already created and linked the
		// reservation; converge on it.
		return *linked, tx.Commit(ctx)
	}

	var tripID *int64
	if res.TripID != 0 {
		tripID = &res.TripID
	}
	res.Status = domain.ReservationStatusPaid
	if err := tx.QueryRow(ctx, `INSERT INTO reservations (id, trip_id, from_stop, to_stop, departure, duration_minutes, price_minor, passengers, status, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		res.ID, tripID, res.FromStop, res.ToStop, res.Departure, res.DurationMinutes, res.PriceMinor, res.Passengers, res.Status, res.OwnerID).
		Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx, `UPDATE payments SET status=$1, reservation_id=$2, amount_minor=$3, updated_at=now() WHERE transaction_id=$4`,
		domain.PaymentStatusCompleted, res.ID, amountMinor, transactionID); err != nil {
		return "", err
	}

	return res.ID, tx.Commit(ctx)
}

func (r *PGPaymentRepository) CompletedExistsForReservation(ctx context.Context, reservationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE reservation_id=$1 AND status=$2)`,
		reservationID, domain.PaymentStatusCompleted).Scan(&exists)
	return exists, err
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
