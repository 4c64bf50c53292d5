package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openagora/agora/internal/domain"
	"github.com/openagora/agora/internal/store/memory"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(memory.New())
	o.AdmissionRecheck = 10 * time.Millisecond
	return o
}

// admit moves a participant through the waiting list and returns their
// voting key.
func admit(t *testing.T, o *Orchestrator, room *domain.Room, name string) domain.VotingKey {
	t.Helper()
	ctx := context.Background()
	p, err := o.JoinWaitingList(ctx, room.ID, name, "")
	require.NoError(t, err)
	require.NoError(t, o.AdmitParticipant(ctx, room.ID, room.AdminKey, p.ID))
	stored, err := o.Store.ParticipantByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.VotingKey)
	return stored.VotingKey
}

func TestRoomLifecycleSingleChoice(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "Budget meeting")
	require.NoError(t, err)
	require.NotEmpty(t, room.AdminKey)
	require.Len(t, string(room.ShortCode), 8)

	// Three join, two get in, one stays waiting.
	alice := admit(t, o, room, "alice")
	bob := admit(t, o, room, "bob")
	waiting, err := o.JoinWaitingList(ctx, room.ID, "carol", "back row")
	require.NoError(t, err)

	board, err := o.Projector.BoardState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseBlank, board.Phase)
	require.Equal(t, 2, board.TotalPeople)

	q, err := o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt:     "Approve the budget?",
		Format:     domain.FormatSingleChoice,
		Candidates: []string{"Yes", "No"},
	})
	require.NoError(t, err)
	require.True(t, q.Open)
	require.Equal(t, 1, q.MaxElected)

	yes, no := q.Candidates[0].ID, q.Candidates[1].ID
	require.NoError(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Choice: yes}))
	require.NoError(t, o.CastVote(ctx, bob, q.ID, domain.VoteResponse{Choice: no}))

	board, err = o.Projector.BoardState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseQuestion, board.Phase)
	require.Equal(t, 2, board.PeopleVoted)
	require.Nil(t, board.Results)

	require.NoError(t, o.CloseQuestion(ctx, room.ID, room.AdminKey))

	board, err = o.Projector.BoardState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseResults, board.Phase)
	require.NotNil(t, board.Results)
	require.Equal(t, 0, board.Results.Abstained)
	require.Len(t, board.Results.Rankings, 2)
	for _, r := range board.Results.Rankings {
		require.Equal(t, float64(1), r.Votes)
	}

	// The still-waiting participant never affected the voter counts.
	stored, err := o.Store.ParticipantByID(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ParticipantWaiting, stored.State)
}

func TestCastVoteReplacesEarlierBallot(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)
	alice := admit(t, o, room, "alice")

	q, err := o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt:     "Pick one",
		Format:     domain.FormatSingleChoice,
		Candidates: []string{"A", "B"},
	})
	require.NoError(t, err)

	require.NoError(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Choice: q.Candidates[0].ID}))
	require.NoError(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Choice: q.Candidates[1].ID}))
	// Revoking into an abstain still counts as an interaction.
	require.NoError(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Abstain: true}))

	require.NoError(t, o.CloseQuestion(ctx, room.ID, room.AdminKey))
	board, err := o.Projector.BoardState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 1, board.PeopleVoted)
	require.Equal(t, 1, board.Results.Abstained)
	for _, r := range board.Results.Rankings {
		require.Zero(t, r.Votes)
	}
}

func TestCastVoteGuards(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)
	alice := admit(t, o, room, "alice")

	// No open question yet.
	require.ErrorIs(t, o.CastVote(ctx, alice, "q", domain.VoteResponse{Abstain: true}), domain.ErrQuestionAlreadyClosed)

	q, err := o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt:     "Pick one",
		Format:     domain.FormatSingleChoice,
		Candidates: []string{"A", "B"},
	})
	require.NoError(t, err)

	// Unknown voting key.
	require.ErrorIs(t, o.CastVote(ctx, "bogus", q.ID, domain.VoteResponse{Abstain: true}), domain.ErrVoterNotFound)

	// Stale question id.
	require.ErrorIs(t, o.CastVote(ctx, alice, "other", domain.VoteResponse{Abstain: true}), domain.ErrQuestionAlreadyClosed)

	require.NoError(t, o.CloseQuestion(ctx, room.ID, room.AdminKey))
	require.ErrorIs(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Abstain: true}), domain.ErrQuestionAlreadyClosed)
}

func TestQuestionGuards(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	require.ErrorIs(t, o.CloseQuestion(ctx, room.ID, room.AdminKey), domain.ErrNoQuestionOpen)

	params := QuestionParams{Prompt: "Pick", Format: domain.FormatSingleChoice, Candidates: []string{"A"}}
	_, err = o.StartQuestion(ctx, room.ID, "wrong-key", params)
	require.ErrorIs(t, err, domain.ErrInvalidAdminKey)

	_, err = o.StartQuestion(ctx, room.ID, room.AdminKey, params)
	require.NoError(t, err)
	_, err = o.StartQuestion(ctx, room.ID, room.AdminKey, params)
	require.ErrorIs(t, err, domain.ErrQuestionAlreadyOpen)

	require.NoError(t, o.CloseQuestion(ctx, room.ID, room.AdminKey))
	require.ErrorIs(t, o.CloseQuestion(ctx, room.ID, room.AdminKey), domain.ErrNoQuestionOpen)

	// A second question may open after the first closed.
	_, err = o.StartQuestion(ctx, room.ID, room.AdminKey, params)
	require.NoError(t, err)
}

func TestCloseRoomIsTerminal(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	require.ErrorIs(t, o.CloseRoom(ctx, room.ID, "nope"), domain.ErrInvalidAdminKey)
	require.NoError(t, o.CloseRoom(ctx, room.ID, room.AdminKey))

	board, err := o.Projector.BoardState(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEnded, board.Phase)

	_, err = o.JoinWaitingList(ctx, room.ID, "late", "")
	require.ErrorIs(t, err, domain.ErrRoomClosed)

	_, err = o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt: "Pick", Format: domain.FormatSingleChoice, Candidates: []string{"A"},
	})
	require.ErrorIs(t, err, domain.ErrRoomClosed)
}

func TestAdmissionLifecycle(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	p, err := o.JoinWaitingList(ctx, room.ID, "alice", "")
	require.NoError(t, err)

	var mu sync.Mutex
	var states []domain.AdmissionState
	cancel, err := o.WatchAdmission(ctx, p.ID, func(s domain.AdmissionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 1 && states[0].State == domain.ParticipantWaiting
	}, time.Second, time.Millisecond)

	require.NoError(t, o.AdmitParticipant(ctx, room.ID, room.AdminKey, p.ID))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := states[len(states)-1]
		return last.State == domain.ParticipantAdmitted && last.VotingKey != ""
	}, time.Second, time.Millisecond)

	// Decisions are one-shot.
	require.ErrorIs(t, o.AdmitParticipant(ctx, room.ID, room.AdminKey, p.ID), domain.ErrParticipantNotWaiting)
	require.ErrorIs(t, o.DeclineParticipant(ctx, room.ID, room.AdminKey, p.ID), domain.ErrParticipantNotWaiting)
}

func TestDeclineIsTerminal(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)
	p, err := o.JoinWaitingList(ctx, room.ID, "alice", "")
	require.NoError(t, err)

	require.NoError(t, o.DeclineParticipant(ctx, room.ID, room.AdminKey, p.ID))
	require.ErrorIs(t, o.AdmitParticipant(ctx, room.ID, room.AdminKey, p.ID), domain.ErrParticipantNotWaiting)

	stored, err := o.Store.ParticipantByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ParticipantDeclined, stored.State)
	require.Empty(t, stored.VotingKey)
}

func TestKickedVoterSeesKickedAndCannotVote(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)
	alice := admit(t, o, room, "alice")

	voter, err := o.Store.ParticipantByVotingKey(ctx, alice)
	require.NoError(t, err)

	// Kicking a waiting participant is rejected.
	waiting, err := o.JoinWaitingList(ctx, room.ID, "bob", "")
	require.NoError(t, err)
	require.ErrorIs(t, o.KickVoter(ctx, room.ID, room.AdminKey, waiting.ID), domain.ErrParticipantNotAdmitted)

	q, err := o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt: "Pick", Format: domain.FormatSingleChoice, Candidates: []string{"A"},
	})
	require.NoError(t, err)

	require.NoError(t, o.KickVoter(ctx, room.ID, room.AdminKey, voter.ID))

	state, err := o.Projector.VoterState(ctx, room.ID, alice)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseKicked, state.Phase)

	require.ErrorIs(t, o.CastVote(ctx, alice, q.ID, domain.VoteResponse{Abstain: true}), domain.ErrParticipantNotAdmitted)
}

func TestWatchBoardDeliversCurrentThenChanges(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	var mu sync.Mutex
	var phases []domain.Phase
	cancel, err := o.WatchBoard(ctx, room.ID, func(s domain.BoardState) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) >= 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, domain.PhaseBlank, phases[0])
	mu.Unlock()

	_, err = o.StartQuestion(ctx, room.ID, room.AdminKey, QuestionParams{
		Prompt: "Pick", Format: domain.FormatSingleChoice, Candidates: []string{"A"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) >= 2 && phases[len(phases)-1] == domain.PhaseQuestion
	}, time.Second, time.Millisecond)

	// Unknown rooms are rejected up front.
	_, err = o.WatchBoard(ctx, "missing", func(domain.BoardState) {})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestWatchWaitingListRequiresAdminKey(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	_, err = o.WatchWaitingList(ctx, room.ID, "wrong", func([]domain.WaitingListEntry) {})
	require.ErrorIs(t, err, domain.ErrInvalidAdminKey)

	var mu sync.Mutex
	var lists [][]domain.WaitingListEntry
	cancel, err := o.WatchWaitingList(ctx, room.ID, room.AdminKey, func(entries []domain.WaitingListEntry) {
		mu.Lock()
		lists = append(lists, entries)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	_, err = o.JoinWaitingList(ctx, room.ID, "alice", "front")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(lists) == 0 {
			return false
		}
		last := lists[len(lists)-1]
		return len(last) == 1 && last[0].Name == "alice"
	}, time.Second, time.Millisecond)
}

func TestWatchVoterRejectsForeignRoom(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	roomA, err := o.CreateRoom(ctx, "a")
	require.NoError(t, err)
	roomB, err := o.CreateRoom(ctx, "b")
	require.NoError(t, err)
	alice := admit(t, o, roomA, "alice")

	_, err = o.WatchVoter(ctx, roomB.ID, alice, func(domain.VoterState) {})
	require.ErrorIs(t, err, domain.ErrVoterNotFound)

	cancel, err := o.WatchVoter(ctx, roomA.ID, alice, func(domain.VoterState) {})
	require.NoError(t, err)
	cancel()
}

func TestRoomByShortCodeHidesAdminKey(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t)
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "room")
	require.NoError(t, err)

	found, err := o.RoomByShortCode(ctx, room.ShortCode)
	require.NoError(t, err)
	require.Equal(t, room.ID, found.ID)
	require.Empty(t, found.AdminKey)

	_, err = o.RoomByShortCode(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}
