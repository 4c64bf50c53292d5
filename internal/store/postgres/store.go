// Package postgres is the durable Store implementation backed by
// PostgreSQL via lib/pq. Schema bootstrap is idempotent.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/domain"
)

type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// Open connects, verifies the connection and creates the schema.
func Open(url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS room (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    admin_key TEXT NOT NULL,
    short_code TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL,
    closed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS participant (
    id TEXT PRIMARY KEY,
    room_id TEXT NOT NULL REFERENCES room(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL CHECK (state IN ('waiting', 'admitted', 'declined', 'kicked')),
    voting_key TEXT UNIQUE,
    joined_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participant_room_id ON participant(room_id);

CREATE TABLE IF NOT EXISTS question (
    id TEXT PRIMARY KEY,
    room_id TEXT NOT NULL REFERENCES room(id) ON DELETE CASCADE,
    prompt TEXT NOT NULL,
    format TEXT NOT NULL CHECK (format IN ('single_choice', 'ranked_choice')),
    max_elected INT NOT NULL DEFAULT 1,
    open BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    voters_present_at_end INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_question_room_id ON question(room_id);

CREATE TABLE IF NOT EXISTS candidate (
    id TEXT PRIMARY KEY,
    question_id TEXT NOT NULL REFERENCES question(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_candidate_question_id ON candidate(question_id);

CREATE TABLE IF NOT EXISTS ballot (
    question_id TEXT NOT NULL REFERENCES question(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    rankings TEXT[] NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (question_id, voter_id)
);
`

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room (id, name, admin_key, short_code, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, room.ID, room.Name, room.AdminKey, room.ShortCode, room.CreatedAt, room.ClosedAt)
	return err
}

func (s *Store) RoomByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, name, admin_key, short_code, created_at, closed_at
		FROM room WHERE id = $1
	`, id))
}

func (s *Store) RoomByShortCode(ctx context.Context, code domain.ShortCode) (*domain.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, name, admin_key, short_code, created_at, closed_at
		FROM room WHERE short_code = $1
	`, code))
}

func (s *Store) scanRoom(row *sql.Row) (*domain.Room, error) {
	var room domain.Room
	var closedAt sql.NullTime
	err := row.Scan(&room.ID, &room.Name, &room.AdminKey, &room.ShortCode, &room.CreatedAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		room.ClosedAt = &t
	}
	return &room, nil
}

func (s *Store) CloseRoom(ctx context.Context, id domain.RoomID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE room SET closed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrRoomNotFound)
}

func (s *Store) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participant (id, room_id, name, location, state, voting_key, joined_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, p.ID, p.RoomID, p.Name, p.Location, p.State, p.VotingKey, p.JoinedAt)
	return err
}

func (s *Store) ParticipantByID(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	p, err := s.scanParticipant(s.db.QueryRowContext(ctx, `
		SELECT id, room_id, name, location, state, COALESCE(voting_key, ''), joined_at
		FROM participant WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	return p, err
}

func (s *Store) ParticipantByVotingKey(ctx context.Context, key domain.VotingKey) (*domain.Participant, error) {
	p, err := s.scanParticipant(s.db.QueryRowContext(ctx, `
		SELECT id, room_id, name, location, state, COALESCE(voting_key, ''), joined_at
		FROM participant WHERE voting_key = $1
	`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVoterNotFound
	}
	return p, err
}

func (s *Store) scanParticipant(row *sql.Row) (*domain.Participant, error) {
	var p domain.Participant
	if err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.Location, &p.State, &p.VotingKey, &p.JoinedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]*domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, name, location, state, COALESCE(voting_key, ''), joined_at
		FROM participant WHERE room_id = $1
		ORDER BY joined_at, id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.Location, &p.State, &p.VotingKey, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) SetParticipantState(ctx context.Context, id domain.ParticipantID, state domain.ParticipantState, votingKey domain.VotingKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participant
		SET state = $2, voting_key = COALESCE(NULLIF($3, ''), voting_key)
		WHERE id = $1
	`, id, state, votingKey)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrParticipantNotFound)
}

func (s *Store) CreateQuestion(ctx context.Context, q *domain.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO question (id, room_id, prompt, format, max_elected, open, created_at, voters_present_at_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, q.ID, q.RoomID, q.Prompt, q.Format, q.MaxElected, q.Open, q.CreatedAt, q.VotersPresentAtEnd); err != nil {
		return err
	}
	for i, c := range q.Candidates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO candidate (id, question_id, name, position) VALUES ($1, $2, $3, $4)
		`, c.ID, q.ID, c.Name, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) QuestionByID(ctx context.Context, id domain.QuestionID) (*domain.Question, error) {
	qs, err := s.queryQuestions(ctx, `WHERE q.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, domain.ErrNoQuestionOpen
	}
	return qs[0], nil
}

func (s *Store) ListQuestions(ctx context.Context, roomID domain.RoomID) ([]*domain.Question, error) {
	return s.queryQuestions(ctx, `WHERE q.room_id = $1`, roomID)
}

func (s *Store) OpenOrLatestQuestion(ctx context.Context, roomID domain.RoomID) (*domain.Question, bool, error) {
	qs, err := s.queryQuestions(ctx, `WHERE q.room_id = $1`, roomID)
	if err != nil {
		return nil, false, err
	}
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

func (s *Store) queryQuestions(ctx context.Context, where string, arg any) ([]*domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.room_id, q.prompt, q.format, q.max_elected, q.open, q.created_at, q.voters_present_at_end
		FROM question q `+where+`
		ORDER BY q.created_at, q.id
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.RoomID, &q.Prompt, &q.Format, &q.MaxElected, &q.Open, &q.CreatedAt, &q.VotersPresentAtEnd); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, q := range out {
		if err := s.loadCandidates(ctx, q); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadCandidates(ctx context.Context, q *domain.Question) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM candidate WHERE question_id = $1 ORDER BY position
	`, q.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return err
		}
		q.Candidates = append(q.Candidates, c)
	}
	return rows.Err()
}

func (s *Store) CloseQuestion(ctx context.Context, id domain.QuestionID, votersPresentAtEnd int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE question SET open = FALSE, voters_present_at_end = $2 WHERE id = $1
	`, id, votersPresentAtEnd)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrNoQuestionOpen)
}

func (s *Store) SaveBallot(ctx context.Context, b *domain.Ballot) error {
	rankings := make([]string, len(b.Rankings))
	for i, id := range b.Rankings {
		rankings[i] = string(id)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ballot (question_id, voter_id, rankings, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (question_id, voter_id)
		DO UPDATE SET rankings = EXCLUDED.rankings, submitted_at = EXCLUDED.submitted_at
	`, b.QuestionID, b.VoterID, pq.Array(rankings), b.SubmittedAt)
	return err
}

func (s *Store) BallotByVoter(ctx context.Context, questionID domain.QuestionID, voterID domain.ParticipantID) (*domain.Ballot, bool, error) {
	b, err := scanBallot(s.db.QueryRowContext(ctx, `
		SELECT question_id, voter_id, rankings, submitted_at
		FROM ballot WHERE question_id = $1 AND voter_id = $2
	`, questionID, voterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) ListBallots(ctx context.Context, questionID domain.QuestionID) ([]*domain.Ballot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, voter_id, rankings, submitted_at
		FROM ballot WHERE question_id = $1
		ORDER BY voter_id
	`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Ballot
	for rows.Next() {
		var b domain.Ballot
		var rankings pq.StringArray
		if err := rows.Scan(&b.QuestionID, &b.VoterID, &rankings, &b.SubmittedAt); err != nil {
			return nil, err
		}
		b.Rankings = toCandidateIDs(rankings)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func scanBallot(row *sql.Row) (*domain.Ballot, error) {
	var b domain.Ballot
	var rankings pq.StringArray
	if err := row.Scan(&b.QuestionID, &b.VoterID, &rankings, &b.SubmittedAt); err != nil {
		return nil, err
	}
	b.Rankings = toCandidateIDs(rankings)
	return &b, nil
}

func toCandidateIDs(ids []string) []domain.CandidateID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.CandidateID, len(ids))
	for i, id := range ids {
		out[i] = domain.CandidateID(id)
	}
	return out
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
