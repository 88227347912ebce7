// Package calendar answers read-only questions about rooms and reservations.
// It never takes the store's write lock, so results may trail a concurrent
// write by one commit.
package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/service/reservations"
	"roombooking/backend/internal/store"
)

// FeedEntry is one reservation as shown on the shared calendar.
type FeedEntry struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"roomId"`
	Label       string    `json:"label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Cancellable bool      `json:"cancellable"`
}

type Service struct {
	store store.ReservationStore
}

func NewService(st store.ReservationStore) *Service {
	return &Service{store: st}
}

func (s *Service) Rooms(ctx context.Context) ([]domain.Room, error) {
	return s.store.ListRooms(ctx)
}

// BookingsForRoom lists a room's reservations ordered by start time.
func (s *Service) BookingsForRoom(ctx context.Context, roomID string) ([]domain.Reservation, error) {
	id, err := uuid.Parse(strings.TrimSpace(roomID))
	if err != nil {
		return nil, reservations.ErrRoomNotFound
	}
	if _, err := s.store.FindRoom(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reservations.ErrRoomNotFound
		}
		return nil, err
	}
	return s.store.ListReservationsForRoom(ctx, id)
}

// Feed returns every reservation intersecting [rangeStart, rangeEnd). An
// empty bound leaves that side open. If either bound fails to parse the
// whole range is ignored and the feed is unfiltered.
func (s *Service) Feed(ctx context.Context, rangeStart, rangeEnd string, viewer domain.Identity) ([]FeedEntry, error) {
	start, okStart := parseBound(rangeStart)
	end, okEnd := parseBound(rangeEnd)
	var w store.Window
	if okStart && okEnd {
		w = store.Window{Start: start, End: end}
	}
	rs, err := s.store.ListReservationsInRange(ctx, w)
	if err != nil {
		return nil, err
	}
	out := make([]FeedEntry, 0, len(rs))
	for _, r := range rs {
		out = append(out, FeedEntry{
			ID:          r.ID,
			RoomID:      r.RoomID,
			Label:       r.Label,
			Start:       r.StartTime,
			End:         r.EndTime,
			Cancellable: r.CancellableBy(viewer),
		})
	}
	return out, nil
}

// parseBound returns nil for an empty bound and ok=false for a malformed one.
func parseBound(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := domain.ParseInstant(s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
