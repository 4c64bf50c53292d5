package domain

// Phase is the discriminant of the board/voter state variants. PhaseKicked
// only ever appears in a VoterState.
type Phase string

const (
	PhaseBlank    Phase = "blank"
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
	PhaseEnded    Phase = "ended"
	PhaseKicked   Phase = "kicked"
)

// QuestionView is the public snapshot of a question. It never carries
// per-voter data.
type QuestionView struct {
	ID         QuestionID     `json:"id"`
	Prompt     string         `json:"prompt"`
	Format     QuestionFormat `json:"format"`
	MaxElected int            `json:"max_elected"`
	Candidates []Candidate    `json:"candidates"`
}

// CandidateResult is one candidate's line in a results view. Votes are
// fractional for ranked questions because of surplus transfers.
type CandidateResult struct {
	Candidate Candidate `json:"candidate"`
	Votes     float64   `json:"votes"`
	Rank      int       `json:"rank"`
	Elected   bool      `json:"elected"`
}

type Results struct {
	Format    QuestionFormat    `json:"format"`
	Rankings  []CandidateResult `json:"rankings"`
	Abstained int               `json:"abstained"`
}

// BoardState is the publicly observable projection of a room. Question is set
// for PhaseQuestion and PhaseResults; Results only for PhaseResults.
type BoardState struct {
	Phase       Phase         `json:"phase"`
	TotalPeople int           `json:"total_people"`
	PeopleVoted int           `json:"people_voted"`
	Question    *QuestionView `json:"question,omitempty"`
	Results     *Results      `json:"results,omitempty"`
}

// VoterState mirrors the board state for one voter, except that a kicked
// participant always sees PhaseKicked.
type VoterState struct {
	Phase       Phase         `json:"phase"`
	TotalPeople int           `json:"total_people"`
	PeopleVoted int           `json:"people_voted"`
	Question    *QuestionView `json:"question,omitempty"`
	Results     *Results      `json:"results,omitempty"`
	// Voted reports whether this voter has already interacted with the
	// current question (including an abstain).
	Voted bool `json:"voted"`
}

// AdmissionState is the private admission-watch view of one participant.
type AdmissionState struct {
	State ParticipantState `json:"state"`
	// VotingKey is present once admitted; this channel is private to the
	// participant it belongs to.
	VotingKey VotingKey `json:"voting_key,omitempty"`
}

// WaitingListEntry is one row of the admin waiting-list view.
type WaitingListEntry struct {
	ID       ParticipantID    `json:"id"`
	Name     string           `json:"name"`
	Location string           `json:"location,omitempty"`
	State    ParticipantState `json:"state"`
}
