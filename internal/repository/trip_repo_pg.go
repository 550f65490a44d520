package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/busticketing/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TripRepository interface {
	List(ctx context.Context) ([]domain.Trip, error)
	GetByID(ctx context.Context, id int64) (*domain.Trip, error)
	ReleaseSeats(ctx context.Context, tripID int64, count int) error
}

type PGTripRepository struct {
	db *pgxpool.Pool
}

func NewTripRepository(db *pgxpool.Pool) TripRepository {
	return &PGTripRepository{db: db}
}

func (r *PGTripRepository) List(ctx context.Context) ([]domain.Trip, error) {
	rows, err := r.db.Query(ctx, `SELECT id, from_stop, to_stop, departure, duration_minutes, total_seats, available_seats, price_minor, created_at, updated_at FROM trips ORDER BY departure`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]domain.Trip, 0)
	for rows.Next() {
		var t domain.Trip
		if err := rows.Scan(&t.ID, &t.FromStop, &t.ToStop, &t.Departure, &t.DurationMinutes, &t.TotalSeats, &t.AvailableSeats, &t.PriceMinor, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (r *PGTripRepository) GetByID(ctx context.Context, id int64) (*domain.Trip, error) {
	row := r.db.QueryRow(ctx, `SELECT id, from_stop, to_stop, departure, duration_minutes, total_seats, available_seats, price_minor, created_at, updated_at FROM trips WHERE id=$1`, id)
	var t domain.Trip
	if err := row.Scan(&t.ID, &t.FromStop, &t.ToStop, &t.Departure, &t.DurationMinutes, &t.TotalSeats, &t.AvailableSeats, &t.PriceMinor, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGTripRepository) ReleaseSeats(ctx context.Context, tripID int64, count int) error {
	_, err := r.db.Exec(ctx, `UPDATE trips SET available_seats = available_seats + $2, updated_at = now() WHERE id=$1`, tripID, count)
	return err
}

var _ TripRepository = (*PGTripRepository)(nil)
