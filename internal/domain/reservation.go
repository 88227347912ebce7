package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Reservation is a granted booking of one room for [StartTime, EndTime).
// UserID and Label are copied from the requester at creation time.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	Label     string    `bun:"label,notnull" json:"label"`
	RoomID    uuid.UUID `bun:"room_id,notnull,type:uuid" json:"roomId"`
	StartTime time.Time `bun:"start_time,notnull" json:"start"`
	EndTime   time.Time `bun:"end_time,notnull" json:"end"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

func (r *Reservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// CancellableBy reports whether who owns r or is an admin.
func (r Reservation) CancellableBy(who Identity) bool {
	if who.IsZero() {
		return false
	}
	return who.IsAdmin || r.UserID == who.UserID
}
