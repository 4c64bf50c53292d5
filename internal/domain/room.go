// Package domain contains room entities and their state variants.
// No transport or storage logic here.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 64

type (
	RoomID    string
	ShortCode string
	AdminKey  string
)

type Room struct {
	ID        RoomID     `json:"id"`
	Name      string     `json:"name"`
	AdminKey  AdminKey   `json:"-"`
	ShortCode ShortCode  `json:"short_code"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// NewRoom issues the room id and admin key. The short code is the first
// uuid block, enough for a join link typed by hand.
func NewRoom(name string, now time.Time) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		name = name[:MaxRoomNameLen]
	}
	id := uuid.NewString()
	return &Room{
		ID:        RoomID(id),
		Name:      name,
		AdminKey:  AdminKey(uuid.NewString()),
		ShortCode: ShortCode(id[:8]),
		CreatedAt: now,
	}, nil
}

func (r *Room) Closed() bool {
	return r.ClosedAt != nil
}
