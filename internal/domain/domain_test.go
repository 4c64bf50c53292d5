package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from ParticipantState
		to   ParticipantState
		ok   bool
	}{
		{ParticipantWaiting, ParticipantAdmitted, true},
		{ParticipantWaiting, ParticipantDeclined, true},
		{ParticipantWaiting, ParticipantKicked, false},
		{ParticipantAdmitted, ParticipantKicked, true},
		{ParticipantAdmitted, ParticipantDeclined, false},
		{ParticipantAdmitted, ParticipantWaiting, false},
		{ParticipantDeclined, ParticipantAdmitted, false},
		{ParticipantKicked, ParticipantAdmitted, false},
	}
	for _, tt := range tests {
		p := &Participant{State: tt.from}
		require.Equal(t, tt.ok, p.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestNewQuestionValidation(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	_, err := NewQuestion("room", "  ", FormatSingleChoice, 1, []string{"A"}, now)
	require.ErrorIs(t, err, ErrQuestionPromptEmpty)

	_, err = NewQuestion("room", "Pick", FormatSingleChoice, 1, nil, now)
	require.ErrorIs(t, err, ErrQuestionNoCandidates)

	_, err = NewQuestion("room", "Pick", FormatSingleChoice, 1, []string{"  ", ""}, now)
	require.ErrorIs(t, err, ErrQuestionNoCandidates)

	_, err = NewQuestion("room", "Pick", "approval", 1, []string{"A"}, now)
	require.ErrorIs(t, err, ErrQuestionBadFormat)

	// Single choice pins the seat count regardless of input.
	q, err := NewQuestion("room", "Pick", FormatSingleChoice, 7, []string{"A", "B"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, q.MaxElected)
	require.True(t, q.Open)
	require.True(t, q.HasCandidate(q.Candidates[0].ID))
	require.False(t, q.HasCandidate("ghost"))

	// Ranked choice clamps a nonsense seat count up to one.
	q, err = NewQuestion("room", "Pick", FormatRankedChoice, 0, []string{"A", "B"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, q.MaxElected)
}

func TestNewRoomValidation(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	_, err := NewRoom("   ", now)
	require.ErrorIs(t, err, ErrRoomNameEmpty)

	room, err := NewRoom("board meeting", now)
	require.NoError(t, err)
	require.Len(t, string(room.ShortCode), 8)
	require.NotEmpty(t, room.AdminKey)
	require.False(t, room.Closed())

	long, err := NewRoom(strings.Repeat("x", 200), now)
	require.NoError(t, err)
	require.Len(t, long.Name, MaxRoomNameLen)
}

func TestVoteResponseAsRankings(t *testing.T) {
	t.Parallel()

	require.Nil(t, VoteResponse{Abstain: true, Choice: "a"}.AsRankings())
	require.Equal(t, []CandidateID{"a"}, VoteResponse{Choice: "a"}.AsRankings())
	require.Equal(t, []CandidateID{"b", "a"}, VoteResponse{Rankings: []CandidateID{"b", "a"}}.AsRankings())
	require.True(t, Ballot{}.Abstain())
}
