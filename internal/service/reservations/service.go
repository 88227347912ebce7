package reservations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/store"
)

const (
	MinDuration = 30 * time.Minute
	MaxDuration = 8 * time.Hour
)

type Service struct {
	store store.ReservationStore
	clock Clock
}

func NewService(st store.ReservationStore, clock Clock) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{store: st, clock: clock}
}

// CreateInput carries the raw request values. Timestamps are ISO-8601 with a
// zone designator.
type CreateInput struct {
	RoomID string
	Start  string
	End    string
}

// Create validates in and grants the reservation if no existing reservation
// for the room overlaps it. The overlap decision and the insert happen under
// the store's write lock.
func (s *Service) Create(ctx context.Context, who domain.Identity, in CreateInput) (domain.Reservation, error) {
	if who.IsZero() {
		return domain.Reservation{}, ErrUnauthenticated
	}

	roomRaw := strings.TrimSpace(in.RoomID)
	if roomRaw == "" || strings.TrimSpace(in.Start) == "" || strings.TrimSpace(in.End) == "" {
		return domain.Reservation{}, validationError(ErrMissingField)
	}

	start, err := domain.ParseInstant(in.Start)
	if err != nil {
		return domain.Reservation{}, validationError(ErrInvalidTimestamp)
	}
	end, err := domain.ParseInstant(in.End)
	if err != nil {
		return domain.Reservation{}, validationError(ErrInvalidTimestamp)
	}

	roomID, err := uuid.Parse(roomRaw)
	if err != nil {
		return domain.Reservation{}, validationError(ErrRoomNotFound)
	}
	if _, err := s.store.FindRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Reservation{}, validationError(ErrRoomNotFound)
		}
		return domain.Reservation{}, err
	}

	now := s.clock.Now().UTC()
	if start.Before(now) {
		return domain.Reservation{}, validationError(ErrInThePast)
	}
	if !end.After(start) {
		return domain.Reservation{}, validationError(ErrInvalidRange)
	}
	minutes := domain.DurationMinutes(start, end)
	if minutes < MinDuration.Minutes() {
		return domain.Reservation{}, validationError(ErrDurationTooShort)
	}
	if minutes > MaxDuration.Minutes() {
		return domain.Reservation{}, validationError(ErrDurationTooLong)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Reservation{}, err
	}
	r := domain.Reservation{
		ID:        id,
		UserID:    who.UserID,
		Label:     who.DisplayName,
		RoomID:    roomID,
		StartTime: start,
		EndTime:   end,
		CreatedAt: now,
	}

	var created domain.Reservation
	err = s.store.WithWriteLock(ctx, func(ctx context.Context, tx store.ReservationTx) error {
		existing, err := tx.ListReservationsForRoom(ctx, roomID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if domain.Overlaps(start, end, e.StartTime, e.EndTime) {
				return ErrConflict
			}
		}
		created, err = tx.InsertReservation(ctx, r)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, validationError(ErrRoomNotFound)
	}
	if err != nil {
		return domain.Reservation{}, mapStoreError(err)
	}
	return created, nil
}

// Cancel removes a reservation owned by who, or any reservation when who is
// an admin.
func (s *Service) Cancel(ctx context.Context, who domain.Identity, reservationID string) error {
	if who.IsZero() {
		return ErrUnauthenticated
	}

	id, err := uuid.Parse(strings.TrimSpace(reservationID))
	if err != nil {
		return ErrNotFound
	}

	err = s.store.WithWriteLock(ctx, func(ctx context.Context, tx store.ReservationTx) error {
		r, err := tx.FindReservation(ctx, id)
		if err != nil {
			return err
		}
		if !r.CancellableBy(who) {
			return ErrForbidden
		}
		return tx.DeleteReservation(ctx, id)
	})
	return mapStoreError(err)
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}
