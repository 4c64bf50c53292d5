package domain

import "time"

// Ballot is one voter's answer to one question. Rankings are most-preferred
// first; an empty Rankings slice is an abstain. A voter casting again for the
// same question replaces the previous ballot (last-write-wins).
type Ballot struct {
	QuestionID  QuestionID    `json:"question_id"`
	VoterID     ParticipantID `json:"-"`
	Rankings    []CandidateID `json:"rankings"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

func (b Ballot) Abstain() bool {
	return len(b.Rankings) == 0
}

// VoteResponse is the transport-facing cast-vote payload. Exactly one of the
// variants applies: Abstain, a single choice, or an ordered ranking.
type VoteResponse struct {
	Abstain  bool          `json:"abstain,omitempty"`
	Choice   CandidateID   `json:"choice,omitempty"`
	Rankings []CandidateID `json:"rankings,omitempty"`
}

// AsRankings normalizes the response into a ballot ranking list.
func (v VoteResponse) AsRankings() []CandidateID {
	if v.Abstain {
		return nil
	}
	if v.Choice != "" {
		return []CandidateID{v.Choice}
	}
	return v.Rankings
}
