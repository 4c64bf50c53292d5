// Package memory is the reference Store implementation: mutex-guarded maps,
// used by tests and by standalone mode when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/domain"
)

type ballotKey struct {
	question domain.QuestionID
	voter    domain.ParticipantID
}

type Store struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomID]*domain.Room
	byShortCode  map[domain.ShortCode]domain.RoomID
	participants map[domain.ParticipantID]*domain.Participant
	byVotingKey  map[domain.VotingKey]domain.ParticipantID
	questions    map[domain.QuestionID]*domain.Question
	ballots      map[ballotKey]*domain.Ballot
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms:        make(map[domain.RoomID]*domain.Room),
		byShortCode:  make(map[domain.ShortCode]domain.RoomID),
		participants: make(map[domain.ParticipantID]*domain.Participant),
		byVotingKey:  make(map[domain.VotingKey]domain.ParticipantID),
		questions:    make(map[domain.QuestionID]*domain.Question),
		ballots:      make(map[ballotKey]*domain.Ballot),
	}
}

func (s *Store) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	s.byShortCode[room.ShortCode] = room.ID
	return nil
}

func (s *Store) RoomByID(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *Store) RoomByShortCode(ctx context.Context, code domain.ShortCode) (*domain.Room, error) {
	s.mu.RLock()
	id, ok := s.byShortCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return s.RoomByID(ctx, id)
}

func (s *Store) CloseRoom(_ context.Context, id domain.RoomID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	t := at
	room.ClosedAt = &t
	return nil
}

func (s *Store) CreateParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

func (s *Store) ParticipantByID(_ context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ParticipantByVotingKey(_ context.Context, key domain.VotingKey) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byVotingKey[key]
	if !ok {
		return nil, domain.ErrVoterNotFound
	}
	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrVoterNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListParticipants(_ context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Participant
	for _, p := range s.participants {
		if p.RoomID == roomID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *Store) SetParticipantState(_ context.Context, id domain.ParticipantID, state domain.ParticipantState, votingKey domain.VotingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.State = state
	if votingKey != "" {
		p.VotingKey = votingKey
		s.byVotingKey[votingKey] = id
	}
	return nil
}

func (s *Store) CreateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	cp.Candidates = append([]domain.Candidate(nil), q.Candidates...)
	s.questions[q.ID] = &cp
	return nil
}

func (s *Store) QuestionByID(_ context.Context, id domain.QuestionID) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, domain.ErrNoQuestionOpen
	}
	return copyQuestion(q), nil
}

func (s *Store) ListQuestions(_ context.Context, roomID domain.RoomID) ([]*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questionsOfLocked(roomID), nil
}

func (s *Store) OpenOrLatestQuestion(_ context.Context, roomID domain.RoomID) (*domain.Question, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qs := s.questionsOfLocked(roomID)
	if len(qs) == 0 {
		return nil, false, nil
	}
	for _, q := range qs {
		if q.Open {
			return q, true, nil
		}
	}
	return qs[len(qs)-1], true, nil
}

func (s *Store) CloseQuestion(_ context.Context, id domain.QuestionID, votersPresentAtEnd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.ErrNoQuestionOpen
	}
	q.Open = false
	q.VotersPresentAtEnd = votersPresentAtEnd
	return nil
}

func (s *Store) SaveBallot(_ context.Context, b *domain.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.Rankings = append([]domain.CandidateID(nil), b.Rankings...)
	s.ballots[ballotKey{b.QuestionID, b.VoterID}] = &cp
	return nil
}

func (s *Store) BallotByVoter(_ context.Context, questionID domain.QuestionID, voterID domain.ParticipantID) (*domain.Ballot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.ballots[ballotKey{questionID, voterID}]
	if !ok {
		return nil, false, nil
	}
	cp := *b
	cp.Rankings = append([]domain.CandidateID(nil), b.Rankings...)
	return &cp, true, nil
}

func (s *Store) ListBallots(_ context.Context, questionID domain.QuestionID) ([]*domain.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Ballot
	for k, b := range s.ballots {
		if k.question == questionID {
			cp := *b
			cp.Rankings = append([]domain.CandidateID(nil), b.Rankings...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}

func (s *Store) questionsOfLocked(roomID domain.RoomID) []*domain.Question {
	var out []*domain.Question
	for _, q := range s.questions {
		if q.RoomID == roomID {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyQuestion(q *domain.Question) *domain.Question {
	cp := *q
	cp.Candidates = append([]domain.Candidate(nil), q.Candidates...)
	return &cp
}
