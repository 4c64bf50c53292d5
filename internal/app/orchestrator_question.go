package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/domain"
)

// QuestionParams is the start-new-question input.
type QuestionParams struct {
	Prompt     string
	Format     domain.QuestionFormat
	MaxElected int
	Candidates []string
}

// StartQuestion opens a new question. Fails when the room is closed or a
// question is already open.
func (o *Orchestrator) StartQuestion(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, params QuestionParams) (*domain.Question, error) {
	var question *domain.Question
	err := o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		room, err := o.adminRoom(ctx, roomID, adminKey)
		if err != nil {
			return err
		}
		if room.Closed() {
			return domain.ErrRoomClosed
		}
		current, ok, err := o.Store.OpenOrLatestQuestion(ctx, roomID)
		if err != nil {
			return err
		}
		if ok && current.Open {
			return domain.ErrQuestionAlreadyOpen
		}

		q, err := domain.NewQuestion(roomID, params.Prompt, params.Format, params.MaxElected, params.Candidates, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := o.Store.CreateQuestion(ctx, q); err != nil {
			return err
		}
		question = q
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("question", string(q.ID)).Str("format", string(q.Format)).Msg("question opened")
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// CloseQuestion closes the open question, snapshotting the admitted
// participant count for abstain accounting. The board flips to results,
// which runs the tabulator for ranked questions.
func (o *Orchestrator) CloseQuestion(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey) error {
	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		room, err := o.adminRoom(ctx, roomID, adminKey)
		if err != nil {
			return err
		}
		if room.Closed() {
			return domain.ErrRoomClosed
		}
		q, ok, err := o.Store.OpenOrLatestQuestion(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok || !q.Open {
			return domain.ErrNoQuestionOpen
		}

		participants, err := o.Store.ListParticipants(ctx, roomID)
		if err != nil {
			return err
		}
		present := 0
		for _, p := range participants {
			if p.State == domain.ParticipantAdmitted {
				present++
			}
		}
		if err := o.Store.CloseQuestion(ctx, q.ID, present); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("question", string(q.ID)).Int("present", present).Msg("question closed")
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
}

// ListQuestions returns the room's question history, oldest first. Admin
// only: closed questions carry tallies the board may not be showing.
func (o *Orchestrator) ListQuestions(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey) ([]*domain.Question, error) {
	if _, err := o.adminRoom(ctx, roomID, adminKey); err != nil {
		return nil, err
	}
	return o.Store.ListQuestions(ctx, roomID)
}

// QuestionByID fetches one question from the room's history.
func (o *Orchestrator) QuestionByID(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.QuestionID) (*domain.Question, error) {
	if _, err := o.adminRoom(ctx, roomID, adminKey); err != nil {
		return nil, err
	}
	q, err := o.Store.QuestionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.RoomID != roomID {
		return nil, domain.ErrNoQuestionOpen
	}
	return q, nil
}

// CastVote records a voter's response to the currently open question,
// replacing any earlier ballot (last-write-wins). An abstain still counts
// as having interacted.
func (o *Orchestrator) CastVote(ctx context.Context, votingKey domain.VotingKey, questionID domain.QuestionID, response domain.VoteResponse) error {
	// Resolve the room outside the queue to learn the key, then re-read the
	// voter inside it: the admin may kick them while this call is queued.
	voter, err := o.Store.ParticipantByVotingKey(ctx, votingKey)
	if err != nil {
		return err
	}
	roomID := voter.RoomID

	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		voter, err := o.Store.ParticipantByVotingKey(ctx, votingKey)
		if err != nil {
			return err
		}
		if voter.State != domain.ParticipantAdmitted {
			return domain.ErrParticipantNotAdmitted
		}
		q, ok, err := o.Store.OpenOrLatestQuestion(ctx, roomID)
		if err != nil {
			return err
		}
		if !ok || !q.Open || q.ID != questionID {
			return domain.ErrQuestionAlreadyClosed
		}

		rankings := response.AsRankings()
		kept := make([]domain.CandidateID, 0, len(rankings))
		for _, id := range rankings {
			if q.HasCandidate(id) {
				kept = append(kept, id)
			}
		}
		ballot := &domain.Ballot{
			QuestionID:  q.ID,
			VoterID:     voter.ID,
			Rankings:    kept,
			SubmittedAt: time.Now().UTC(),
		}
		if err := o.Store.SaveBallot(ctx, ballot); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("question", string(q.ID)).Bool("abstain", ballot.Abstain()).Msg("ballot recorded")
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
}
