package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"roombooking/backend/internal/domain"
	"roombooking/backend/internal/store"
)

// writeLockKey is hashed into the single advisory lock that serializes every
// reservation write across all server processes sharing the database.
const writeLockKey = "roombooking:reservations"

const (
	codeExclusionViolation  = "23P01"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type ReservationStore struct {
	db *bun.DB
}

var _ store.ReservationStore = (*ReservationStore)(nil)

func NewReservationStore(db *bun.DB) *ReservationStore {
	return &ReservationStore{db: db}
}

func (s *ReservationStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SeedRooms inserts rooms, refreshing the name of any that already exist.
func SeedRooms(ctx context.Context, db bun.IDB, rooms []domain.Room) error {
	if len(rooms) == 0 {
		return nil
	}
	_, err := db.NewInsert().
		Model(&rooms).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	return err
}

func (s *ReservationStore) FindRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := s.db.NewSelect().
		Model(&room).
		Where("id = ?", roomID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, store.ErrNotFound
		}
		return domain.Room{}, err
	}
	return room, nil
}

func (s *ReservationStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms := make([]domain.Room, 0)
	err := s.db.NewSelect().
		Model(&rooms).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *ReservationStore) ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	return listForRoom(ctx, s.db, roomID)
}

func (s *ReservationStore) ListReservationsInRange(ctx context.Context, w store.Window) ([]domain.Reservation, error) {
	rows := make([]domain.Reservation, 0)
	q := s.db.NewSelect().Model(&rows)
	if w.Start != nil {
		q = q.Where("end_time > ?", w.Start.UTC())
	}
	if w.End != nil {
		q = q.Where("start_time < ?", w.End.UTC())
	}
	err := q.OrderExpr("start_time ASC, created_at ASC, id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return normalize(rows), nil
}

// WithWriteLock runs fn in a transaction holding the global reservation
// advisory lock. The lock is released when the transaction commits or rolls
// back, which bun does on every return path including a panic in fn.
func (s *ReservationStore) WithWriteLock(ctx context.Context, fn func(ctx context.Context, tx store.ReservationTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockReservations(ctx, tx); err != nil {
			return err
		}
		return fn(ctx, reservationTx{tx: tx})
	})
}

func lockReservations(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", writeLockKey).Exec(ctx)
	return err
}

type reservationTx struct {
	tx bun.Tx
}

func (r reservationTx) ListReservationsForRoom(ctx context.Context, roomID uuid.UUID) ([]domain.Reservation, error) {
	return listForRoom(ctx, r.tx, roomID)
}

func (r reservationTx) FindReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	var row domain.Reservation
	err := r.tx.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, store.ErrNotFound
		}
		return domain.Reservation{}, err
	}
	return normalize([]domain.Reservation{row})[0], nil
}

func (r reservationTx) InsertReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	m := res
	m.StartTime = res.StartTime.UTC()
	m.EndTime = res.EndTime.UTC()
	m.CreatedAt = res.CreatedAt.UTC()

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Reservation{}, mapWriteError(err)
	}
	return m, nil
}

func (r reservationTx) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Reservation)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func listForRoom(ctx context.Context, db bun.IDB, roomID uuid.UUID) ([]domain.Reservation, error) {
	rows := make([]domain.Reservation, 0)
	err := db.NewSelect().
		Model(&rows).
		Where("room_id = ?", roomID).
		OrderExpr("start_time ASC, created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return normalize(rows), nil
}

// mapWriteError translates constraint violations into store sentinels. The
// exclusion constraint only fires if a writer bypassed the advisory lock.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeExclusionViolation, codeUniqueViolation:
		return store.ErrConflict
	case codeForeignKeyViolation:
		return store.ErrNotFound
	default:
		return err
	}
}

func normalize(rows []domain.Reservation) []domain.Reservation {
	for i := range rows {
		rows[i].StartTime = rows[i].StartTime.UTC()
		rows[i].EndTime = rows[i].EndTime.UTC()
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	return rows
}
