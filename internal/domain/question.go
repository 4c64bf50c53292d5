package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	QuestionID  string
	CandidateID string
)

type QuestionFormat string

const (
	FormatSingleChoice QuestionFormat = "single_choice"
	FormatRankedChoice QuestionFormat = "ranked_choice"
)

// Candidate is immutable once its question is created.
type Candidate struct {
	ID   CandidateID `json:"id"`
	Name string      `json:"name"`
}

type Question struct {
	ID     QuestionID     `json:"id"`
	RoomID RoomID         `json:"room_id"`
	Prompt string         `json:"prompt"`
	Format QuestionFormat `json:"format"`
	// MaxElected is the seat count for ranked questions; 1 for single choice.
	MaxElected int         `json:"max_elected"`
	Candidates []Candidate `json:"candidates"`
	Open       bool        `json:"open"`
	CreatedAt  time.Time   `json:"created_at"`
	// VotersPresentAtEnd snapshots the admitted-participant count at close
	// time; zero while the question is open.
	VotersPresentAtEnd int `json:"voters_present_at_end"`
}

func NewQuestion(roomID RoomID, prompt string, format QuestionFormat, maxElected int, candidateNames []string, now time.Time) (*Question, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrQuestionPromptEmpty
	}
	if len(candidateNames) == 0 {
		return nil, ErrQuestionNoCandidates
	}
	switch format {
	case FormatSingleChoice:
		maxElected = 1
	case FormatRankedChoice:
		if maxElected < 1 {
			maxElected = 1
		}
	default:
		return nil, ErrQuestionBadFormat
	}

	candidates := make([]Candidate, 0, len(candidateNames))
	for _, name := range candidateNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:   CandidateID(uuid.NewString()),
			Name: name,
		})
	}
	if len(candidates) == 0 {
		return nil, ErrQuestionNoCandidates
	}

	return &Question{
		ID:         QuestionID(uuid.NewString()),
		RoomID:     roomID,
		Prompt:     prompt,
		Format:     format,
		MaxElected: maxElected,
		Candidates: candidates,
		Open:       true,
		CreatedAt:  now,
	}, nil
}

func (q *Question) HasCandidate(id CandidateID) bool {
	for _, c := range q.Candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
