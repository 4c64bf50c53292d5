package app

import (
	"context"
	"sort"

	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/domain"
	"github.com/openagora/agora/internal/tally"
)

// Projector derives the publicly observable room state from the persisted
// entities. It holds no state of its own; every call recomputes from the
// store.
type Projector struct {
	Store core.Store
}

// BoardState evaluates the derivation rules in order: a closed room is
// Ended regardless of question data; no question means Blank; an open
// question shows the question; a closed question shows results.
func (p *Projector) BoardState(ctx context.Context, roomID domain.RoomID) (domain.BoardState, error) {
	room, err := p.Store.RoomByID(ctx, roomID)
	if err != nil {
		return domain.BoardState{}, err
	}
	if room.Closed() {
		return domain.BoardState{Phase: domain.PhaseEnded}, nil
	}

	participants, err := p.Store.ListParticipants(ctx, roomID)
	if err != nil {
		return domain.BoardState{}, err
	}
	total := 0
	for _, pt := range participants {
		if pt.State == domain.ParticipantAdmitted {
			total++
		}
	}

	q, ok, err := p.Store.OpenOrLatestQuestion(ctx, roomID)
	if err != nil {
		return domain.BoardState{}, err
	}
	if !ok {
		return domain.BoardState{Phase: domain.PhaseBlank, TotalPeople: total}, nil
	}

	ballots, err := p.Store.ListBallots(ctx, q.ID)
	if err != nil {
		return domain.BoardState{}, err
	}

	state := domain.BoardState{
		TotalPeople: total,
		PeopleVoted: len(ballots), // distinct voters who interacted, abstains included
		Question:    questionView(q),
	}
	if q.Open {
		state.Phase = domain.PhaseQuestion
		return state, nil
	}
	state.Phase = domain.PhaseResults
	state.Results = p.results(q, ballots)
	return state, nil
}

// VoterState mirrors the board state for one voter; a kicked participant
// always sees PhaseKicked.
func (p *Projector) VoterState(ctx context.Context, roomID domain.RoomID, key domain.VotingKey) (domain.VoterState, error) {
	voter, err := p.Store.ParticipantByVotingKey(ctx, key)
	if err != nil {
		return domain.VoterState{}, err
	}
	if voter.State == domain.ParticipantKicked {
		return domain.VoterState{Phase: domain.PhaseKicked}, nil
	}

	board, err := p.BoardState(ctx, roomID)
	if err != nil {
		return domain.VoterState{}, err
	}
	state := domain.VoterState{
		Phase:       board.Phase,
		TotalPeople: board.TotalPeople,
		PeopleVoted: board.PeopleVoted,
		Question:    board.Question,
		Results:     board.Results,
	}
	if board.Question != nil {
		_, voted, err := p.Store.BallotByVoter(ctx, board.Question.ID, voter.ID)
		if err != nil {
			return domain.VoterState{}, err
		}
		state.Voted = voted
	}
	return state, nil
}

// results shapes tabulation output per question format: single choice
// reports raw first-preference counts, ranked choice runs the full
// transferable-vote tabulation seeded by the question id.
func (p *Projector) results(q *domain.Question, ballots []*domain.Ballot) *domain.Results {
	nonAbstain := 0
	for _, b := range ballots {
		if !b.Abstain() {
			nonAbstain++
		}
	}
	abstained := q.VotersPresentAtEnd - nonAbstain
	if abstained < 0 {
		abstained = 0
	}

	res := &domain.Results{
		Format:    q.Format,
		Abstained: abstained,
	}
	switch q.Format {
	case domain.FormatRankedChoice:
		res.Rankings = rankedResults(q, ballots)
	default:
		res.Rankings = singleChoiceResults(q, ballots)
	}
	return res
}

func singleChoiceResults(q *domain.Question, ballots []*domain.Ballot) []domain.CandidateResult {
	counts := make(map[domain.CandidateID]float64, len(q.Candidates))
	for _, b := range ballots {
		if b.Abstain() {
			continue
		}
		choice := b.Rankings[0]
		if q.HasCandidate(choice) {
			counts[choice]++
		}
	}

	out := make([]domain.CandidateResult, 0, len(q.Candidates))
	for _, c := range q.Candidates {
		out = append(out, domain.CandidateResult{Candidate: c, Votes: counts[c.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Candidate.ID < out[j].Candidate.ID
	})
	for i := range out {
		out[i].Rank = i + 1
		out[i].Elected = out[i].Rank == 1 && out[i].Votes > 0
	}
	return out
}

func rankedResults(q *domain.Question, ballots []*domain.Ballot) []domain.CandidateResult {
	candidateIDs := make([]string, len(q.Candidates))
	byID := make(map[domain.CandidateID]domain.Candidate, len(q.Candidates))
	for i, c := range q.Candidates {
		candidateIDs[i] = string(c.ID)
		byID[c.ID] = c
	}

	rankings := make([][]string, 0, len(ballots))
	for _, b := range ballots {
		if b.Abstain() {
			continue
		}
		prefs := make([]string, len(b.Rankings))
		for i, id := range b.Rankings {
			prefs[i] = string(id)
		}
		rankings = append(rankings, prefs)
	}

	result := tally.Tabulate(candidateIDs, rankings, q.MaxElected, string(q.ID))

	// Final vote count per candidate: the last round in which it was still
	// counted.
	finalVotes := make(map[string]float64, len(candidateIDs))
	for _, round := range result.Rounds {
		for id, votes := range round.Counts {
			finalVotes[id] = votes
		}
	}

	elected := make(map[string]int, len(result.Elected)) // id -> rank
	out := make([]domain.CandidateResult, 0, len(q.Candidates))
	for i, e := range result.Elected {
		elected[e.ID] = i + 1
		out = append(out, domain.CandidateResult{
			Candidate: byID[domain.CandidateID(e.ID)],
			Votes:     e.Votes,
			Rank:      i + 1,
			Elected:   true,
		})
	}

	var rest []domain.CandidateResult
	for _, c := range q.Candidates {
		if _, ok := elected[string(c.ID)]; ok {
			continue
		}
		rest = append(rest, domain.CandidateResult{Candidate: c, Votes: finalVotes[string(c.ID)]})
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Votes != rest[j].Votes {
			return rest[i].Votes > rest[j].Votes
		}
		return rest[i].Candidate.ID < rest[j].Candidate.ID
	})
	for i := range rest {
		rest[i].Rank = len(out) + i + 1
	}
	return append(out, rest...)
}

func questionView(q *domain.Question) *domain.QuestionView {
	return &domain.QuestionView{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Format:     q.Format,
		MaxElected: q.MaxElected,
		Candidates: append([]domain.Candidate(nil), q.Candidates...),
	}
}
