package domain

import (
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Room struct {
	bun.BaseModel `bun:"table:rooms"`

	ID   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name string    `bun:"name,notnull,unique" json:"name"`
}

// RoomID derives the stable id of a seeded room from its name.
func RoomID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("roombooking:room:"+name))
}

func NewRoom(name string) (Room, error) {
	if name == "" {
		return Room{}, errors.New("room name is required")
	}
	return Room{ID: RoomID(name), Name: name}, nil
}

var DefaultRooms = []string{
	"Conference Room A",
	"Meeting Room B",
	"Quiet Room C",
}
