package domain

import "errors"

// Domain errors are non-retryable and surfaced verbatim to the caller.
var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomClosed             = errors.New("room closed")
	ErrQuestionAlreadyOpen    = errors.New("a question is already open")
	ErrNoQuestionOpen         = errors.New("no question open")
	ErrQuestionAlreadyClosed  = errors.New("question already closed")
	ErrInvalidAdminKey        = errors.New("invalid admin key")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrParticipantNotWaiting  = errors.New("participant not in waiting room")
	ErrParticipantNotAdmitted = errors.New("participant not a voter")
	ErrVoterNotFound          = errors.New("voter not found")

	ErrRoomNameEmpty        = errors.New("room name empty")
	ErrParticipantNameEmpty = errors.New("participant name empty")
	ErrQuestionPromptEmpty  = errors.New("question prompt empty")
	ErrQuestionNoCandidates = errors.New("question has no candidates")
	ErrQuestionBadFormat    = errors.New("unknown question format")
)
