package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxParticipantNameLen = 36

type (
	ParticipantID string
	VotingKey     string
)

type ParticipantState string

const (
	ParticipantWaiting  ParticipantState = "waiting"
	ParticipantAdmitted ParticipantState = "admitted"
	ParticipantDeclined ParticipantState = "declined"
	ParticipantKicked   ParticipantState = "kicked"
)

type Participant struct {
	ID       ParticipantID    `json:"id"`
	RoomID   RoomID           `json:"room_id"`
	Name     string           `json:"name"`
	Location string           `json:"location,omitempty"`
	State    ParticipantState `json:"state"`
	// Issued once on admission, never reused.
	VotingKey VotingKey `json:"-"`
	JoinedAt  time.Time `json:"joined_at"`
}

// NewParticipant creates a waiting-list entry. Admission later issues the
// voting key via NewVotingKey.
func NewParticipant(roomID RoomID, name, location string, now time.Time) (*Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrParticipantNameEmpty
	}
	if len(name) > MaxParticipantNameLen {
		name = name[:MaxParticipantNameLen]
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		RoomID:   roomID,
		Name:     name,
		Location: strings.TrimSpace(location),
		State:    ParticipantWaiting,
		JoinedAt: now,
	}, nil
}

func NewVotingKey() VotingKey {
	return VotingKey(uuid.NewString())
}

// CanTransitionTo enforces the forward-only lifecycle: nothing returns to
// waiting, and declined/kicked are terminal.
func (p *Participant) CanTransitionTo(next ParticipantState) bool {
	switch p.State {
	case ParticipantWaiting:
		return next == ParticipantAdmitted || next == ParticipantDeclined
	case ParticipantAdmitted:
		return next == ParticipantKicked
	default:
		return false
	}
}
