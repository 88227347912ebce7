// Package memory keeps rooms and reservations in process memory.
//
// Writers are serialized by one mutex and work on a private copy of the
// reservation list; the copy is published atomically only when the critical
// section succeeds. Readers load the published snapshot without locking, so
// they never see a reservation that is still being constructed.
package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/store"
)

type snapshot struct {
	rooms        []domain.Room
	roomIndex    map[uuid.UUID]int
	reservations []domain.Reservation // insertion order
}

type Store struct {
	mu    sync.Mutex
	state atomic.Pointer[snapshot]
}

var _ store.ReservationStore = (*Store)(nil)

// New returns a store seeded with rooms. Rooms are fixed for the store's lifetime.
func New(rooms ...domain.Room) *Store {
	snap := &snapshot{
		rooms:     make([]domain.Room, 0, len(rooms)),
		roomIndex: make(map[uuid.UUID]int, len(rooms)),
	}
	for _, r := range rooms {
		if _, ok := snap.roomIndex[r.ID]; ok {
			continue
		}
		snap.roomIndex[r.ID] = len(snap.rooms)
		snap.rooms = append(snap.rooms, r)
	}
	s := &Store{}
	s.state.Store(snap)
	return s
}

func (s *Store) FindRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	snap := s.state.Load()
	i, ok := snap.roomIndex[roomID]
	if !ok {
		return domain.Room{}, store.ErrNotFound
	}
	return snap.rooms[i], nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return slices.Clone(s.state.Load().rooms), nil
}

func (s *Store) ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	return forRoom(s.state.Load().reservations, roomID), nil
}

func (s *Store) ListReservationsInRange(ctx context.Context, w store.Window) ([]domain.Reservation, error) {
	all := s.state.Load().reservations
	out := make([]domain.Reservation, 0, len(all))
	for _, r := range all {
		if w.Contains(r) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *Store) WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx store.ReservationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	tx := &writeTx{
		rooms:        cur,
		reservations: slices.Clone(cur.reservations),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	s.state.Store(&snapshot{
		rooms:        cur.rooms,
		roomIndex:    cur.roomIndex,
		reservations: tx.reservations,
	})
	return nil
}

type writeTx struct {
	rooms        *snapshot
	reservations []domain.Reservation
	dirty        bool
}

func (tx *writeTx) ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	return forRoom(tx.reservations, roomID), nil
}

func (tx *writeTx) FindReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	for _, r := range tx.reservations {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Reservation{}, store.ErrNotFound
}

func (tx *writeTx) InsertReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	if _, ok := tx.rooms.roomIndex[r.RoomID]; !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	for _, existing := range tx.reservations {
		if existing.ID == r.ID {
			return domain.Reservation{}, store.ErrConflict
		}
	}
	tx.reservations = append(tx.reservations, r)
	tx.dirty = true
	return r, nil
}

func (tx *writeTx) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	i := slices.IndexFunc(tx.reservations, func(r domain.Reservation) bool { return r.ID == id })
	if i < 0 {
		return store.ErrNotFound
	}
	tx.reservations = slices.Delete(tx.reservations, i, i+1)
	tx.dirty = true
	return nil
}

func forRoom(all []domain.Reservation, roomID uuid.UUID) []domain.Reservation {
	out := make([]domain.Reservation, 0)
	for _, r := range all {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

// sortByStart orders by start time; the stable sort keeps insertion
// (creation) order for equal starts.
func sortByStart(rs []domain.Reservation) {
	slices.SortStableFunc(rs, func(a, b domain.Reservation) int {
		return a.StartTime.Compare(b.StartTime)
	})
}

// Ping always succeeds; it lets health checks treat both backends alike.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
