// Package http maps the orchestrator's operations onto REST endpoints.
// Stream subscriptions live in the stream adapter; everything here is plain
// request/response.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openagora/agora/internal/app"
	"github.com/openagora/agora/internal/domain"
)

const (
	HeaderAdminKey  = "X-Admin-Key"
	HeaderVotingKey = "X-Voting-Key"
)

type Handler struct {
	Orch  *app.Orchestrator
	Joins *app.JoinRateLimiter
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type CreateRoomResponse struct {
	RoomID    domain.RoomID    `json:"room_id"`
	ShortCode domain.ShortCode `json:"short_code"`
	AdminKey  domain.AdminKey  `json:"admin_key"`
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	room, err := h.Orch.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateRoomResponse{
		RoomID:    room.ID,
		ShortCode: room.ShortCode,
		AdminKey:  room.AdminKey,
	})
}

func (h *Handler) RoomByShortCode(c *gin.Context) {
	room, err := h.Orch.RoomByShortCode(c.Request.Context(), domain.ShortCode(c.Param("code")))
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type JoinRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type JoinResponse struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

func (h *Handler) JoinWaitingList(c *gin.Context) {
	if h.Joins != nil && !h.Joins.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	p, err := h.Orch.JoinWaitingList(c.Request.Context(), roomID(c), req.Name, req.Location)
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusCreated, JoinResponse{ParticipantID: p.ID})
}

type ParticipantActionRequest struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

func (h *Handler) AdmitParticipant(c *gin.Context) {
	h.participantAction(c, h.Orch.AdmitParticipant)
}

func (h *Handler) DeclineParticipant(c *gin.Context) {
	h.participantAction(c, h.Orch.DeclineParticipant)
}

func (h *Handler) KickVoter(c *gin.Context) {
	h.participantAction(c, h.Orch.KickVoter)
}

func (h *Handler) participantAction(c *gin.Context, op func(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.ParticipantID) error) {
	var req ParticipantActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ParticipantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := op(c.Request.Context(), roomID(c), adminKey(c), req.ParticipantID); err != nil {
		abortDomain(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type StartQuestionRequest struct {
	Prompt     string                `json:"prompt"`
	Format     domain.QuestionFormat `json:"format"`
	MaxElected int                   `json:"max_elected"`
	Candidates []string              `json:"candidates"`
}

func (h *Handler) StartQuestion(c *gin.Context) {
	var req StartQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	q, err := h.Orch.StartQuestion(c.Request.Context(), roomID(c), adminKey(c), app.QuestionParams{
		Prompt:     req.Prompt,
		Format:     req.Format,
		MaxElected: req.MaxElected,
		Candidates: req.Candidates,
	})
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) ListQuestions(c *gin.Context) {
	qs, err := h.Orch.ListQuestions(c.Request.Context(), roomID(c), adminKey(c))
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, qs)
}

func (h *Handler) QuestionByID(c *gin.Context) {
	q, err := h.Orch.QuestionByID(c.Request.Context(), roomID(c), adminKey(c), domain.QuestionID(c.Param("qid")))
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) CloseQuestion(c *gin.Context) {
	if err := h.Orch.CloseQuestion(c.Request.Context(), roomID(c), adminKey(c)); err != nil {
		abortDomain(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CloseRoom(c *gin.Context) {
	if err := h.Orch.CloseRoom(c.Request.Context(), roomID(c), adminKey(c)); err != nil {
		abortDomain(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type CastVoteRequest struct {
	QuestionID domain.QuestionID   `json:"question_id"`
	Response   domain.VoteResponse `json:"response"`
}

func (h *Handler) CastVote(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	key := domain.VotingKey(c.GetHeader(HeaderVotingKey))
	if key == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing voting key"})
		return
	}
	if err := h.Orch.CastVote(c.Request.Context(), key, req.QuestionID, req.Response); err != nil {
		abortDomain(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Board returns a one-shot snapshot for clients that do not hold a stream
// open.
func (h *Handler) Board(c *gin.Context) {
	board, err := h.Orch.Projector.BoardState(c.Request.Context(), roomID(c))
	if err != nil {
		abortDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func roomID(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("id"))
}

func adminKey(c *gin.Context) domain.AdminKey {
	return domain.AdminKey(c.GetHeader(HeaderAdminKey))
}

// abortDomain translates domain errors into HTTP statuses. Domain errors
// are surfaced verbatim; nothing here is retryable.
func abortDomain(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrVoterNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAdminKey):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRoomClosed),
		errors.Is(err, domain.ErrQuestionAlreadyOpen),
		errors.Is(err, domain.ErrNoQuestionOpen),
		errors.Is(err, domain.ErrQuestionAlreadyClosed),
		errors.Is(err, domain.ErrParticipantNotWaiting),
		errors.Is(err, domain.ErrParticipantNotAdmitted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRoomNameEmpty),
		errors.Is(err, domain.ErrParticipantNameEmpty),
		errors.Is(err, domain.ErrQuestionPromptEmpty),
		errors.Is(err, domain.ErrQuestionNoCandidates),
		errors.Is(err, domain.ErrQuestionBadFormat):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
