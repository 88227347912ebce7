package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"roombooking/backend/internal/domain"
)

// Window bounds a range query. A nil bound is open.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether r intersects the window.
func (w Window) Contains(r domain.Reservation) bool {
	if w.Start != nil && !r.EndTime.After(*w.Start) {
		return false
	}
	if w.End != nil && !r.StartTime.Before(*w.End) {
		return false
	}
	return true
}

// ReservationStore owns rooms and reservations. Reads never block on the
// write lock; every insert and delete goes through WithWriteLock.
type ReservationStore interface {
	FindRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error)
	ListReservationsInRange(ctx context.Context, w Window) ([]domain.Reservation, error)

	// WithWriteLock runs fn while holding the store's single write lock. The
	// lock is released on every path. If fn returns an error none of its
	// writes are kept.
	WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx ReservationTx) error) error
}

type ReservationTx interface {
	ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error)
	FindReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	InsertReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	DeleteReservation(ctx context.Context, id uuid.UUID) error
}
