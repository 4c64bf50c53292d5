// Package core holds the interfaces the room machinery is written against.
// Implementations live in adapters; the core never owns durable state.
package core

import (
	"context"
	"time"

	"github.com/openagora/agora/internal/domain"
)

// Store is the persistence collaborator. The core assumes each call sees a
// consistent view; cross-call atomicity is provided by the per-room
// operation queue, not the store.
type Store interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	RoomByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	RoomByShortCode(ctx context.Context, code domain.ShortCode) (*domain.Room, error)
	CloseRoom(ctx context.Context, id domain.RoomID, at time.Time) error

	CreateParticipant(ctx context.Context, p *domain.Participant) error
	ParticipantByID(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	ParticipantByVotingKey(ctx context.Context, key domain.VotingKey) (*domain.Participant, error)
	ListParticipants(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error)
	SetParticipantState(ctx context.Context, id domain.ParticipantID, state domain.ParticipantState, votingKey domain.VotingKey) error

	CreateQuestion(ctx context.Context, q *domain.Question) error
	QuestionByID(ctx context.Context, id domain.QuestionID) (*domain.Question, error)
	ListQuestions(ctx context.Context, roomID domain.RoomID) ([]*domain.Question, error)
	// OpenOrLatestQuestion returns the open question if one exists,
	// otherwise the most recently created one. ok is false when the room
	// has no questions at all.
	OpenOrLatestQuestion(ctx context.Context, roomID domain.RoomID) (q *domain.Question, ok bool, err error)
	CloseQuestion(ctx context.Context, id domain.QuestionID, votersPresentAtEnd int) error

	// SaveBallot upserts by (question, voter): casting again replaces the
	// previous ballot.
	SaveBallot(ctx context.Context, b *domain.Ballot) error
	BallotByVoter(ctx context.Context, questionID domain.QuestionID, voterID domain.ParticipantID) (b *domain.Ballot, ok bool, err error)
	ListBallots(ctx context.Context, questionID domain.QuestionID) ([]*domain.Ballot, error)
}
