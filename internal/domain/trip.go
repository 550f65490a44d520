package domain

import "time"

type Trip struct {
	ID              int64
	FromStop        string
	ToStop          string
	Departure       time.Time
	DurationMinutes int
	TotalSeats      int
	AvailableSeats  int
	PriceMinor      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
