package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepository interface {
	CreatePending(ctx context.Context, res *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	// UpdateStatus applies a guarded status transition. Repeating an already
	// applied transition returns the current row, an illegal one returns
	// domain.ErrConflict without touching anything.
	UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) (*domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

const reservationColumns = `id, trip_id, from_stop, to_stop, departure, duration_minutes, price_minor, passengers, status, owner_id, created_at, updated_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	var tripID *int64
	if err := row.Scan(&res.ID, &tripID, &res.FromStop, &res.ToStop, &res.Departure, &res.DurationMinutes, &res.PriceMinor, &res.Passengers, &res.Status, &res.OwnerID, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if tripID != nil {
		res.TripID = *tripID
	}
	return &res, nil
}

func (r *PGReservationRepository) CreatePending(ctx context.Context, res *domain.Reservation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if res.TripID != 0 {
		cmd, err := tx.Exec(ctx, `UPDATE trips SET available_seats = available_seats - $2, updated_at = now() WHERE id=$1 AND available_seats >= $2`, res.TripID, len(res.Passengers))
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return errors.New("not enough available seats")
		}
	}

	var tripID *int64
	if res.TripID != 0 {
		tripID = &res.TripID
	}
	res.Status = domain.ReservationStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO reservations (id, trip_id, from_stop, to_stop, departure, duration_minutes, price_minor, passengers, status, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		res.ID, tripID, res.FromStop, res.ToStop, res.Departure, res.DurationMinutes, res.PriceMinor, res.Passengers, res.Status, res.OwnerID).
		Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *PGReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) (*domain.Reservation, error) {
	// Legal transitions only ever leave PENDING, so the guard is a single
	// conditional update. Zero rows means not found, already applied, or an
	// illegal transition; a follow-up read tells them apart.
	row := r.db.QueryRow(ctx, `UPDATE reservations SET status=$1, updated_at=now() WHERE id=$2 AND status=$3 RETURNING `+reservationColumns,
		status, id, domain.ReservationStatusPending)
	res, err := scanReservation(row)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	return nil, domain.ErrConflict
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
