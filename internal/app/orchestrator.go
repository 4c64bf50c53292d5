// Package app composes the per-room operation queue, the notification hubs
// and the state projector into the externally visible room operations.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/core"
	"github.com/openagora/agora/internal/domain"
	"github.com/openagora/agora/internal/keyqueue"
	"github.com/openagora/agora/internal/notify"
)

const DefaultAdmissionRecheck = 5 * time.Second

// Orchestrator owns the write path of a room. Every mutating operation runs
// through the per-room queue, so operations on one room never overlap and
// execute in submission order; different rooms proceed concurrently.
type Orchestrator struct {
	Store     core.Store
	Queue     *keyqueue.Queue
	Projector *Projector

	Boards       *notify.Hub[domain.BoardState]
	Voters       *notify.Hub[domain.VoterState]
	Admissions   *notify.Hub[domain.AdmissionState]
	WaitingLists *notify.Hub[[]domain.WaitingListEntry]

	// AdmissionRecheck is the best-effort interval on which a waiting
	// admission watcher re-fetches its status, guarding against a missed
	// notification. Not a correctness guarantee.
	AdmissionRecheck time.Duration
}

func NewOrchestrator(store core.Store) *Orchestrator {
	return &Orchestrator{
		Store:            store,
		Queue:            keyqueue.New(),
		Projector:        &Projector{Store: store},
		Boards:           notify.NewHub[domain.BoardState](),
		Voters:           notify.NewHub[domain.VoterState](),
		Admissions:       notify.NewHub[domain.AdmissionState](),
		WaitingLists:     notify.NewHub[[]domain.WaitingListEntry](),
		AdmissionRecheck: DefaultAdmissionRecheck,
	}
}

// CreateRoom persists a new room and returns it, admin key included. The
// caller is the only party that ever sees the admin key.
func (o *Orchestrator) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	room, err := domain.NewRoom(name, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := o.Store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.orchestrator").Str("room", string(room.ID)).Str("code", string(room.ShortCode)).Msg("room created")
	return room, nil
}

// RoomByShortCode is the public join-link lookup. The admin key is blanked.
func (o *Orchestrator) RoomByShortCode(ctx context.Context, code domain.ShortCode) (*domain.Room, error) {
	room, err := o.Store.RoomByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	room.AdminKey = ""
	return room, nil
}

// CloseRoom is terminal: the board state becomes Ended permanently and no
// further questions may open.
func (o *Orchestrator) CloseRoom(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey) error {
	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		if _, err := o.adminRoom(ctx, roomID, adminKey); err != nil {
			return err
		}
		if err := o.Store.CloseRoom(ctx, roomID, time.Now().UTC()); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Msg("room closed")
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
}

// adminRoom loads the room and checks the admin key. Keys are opaque tokens
// compared for equality.
func (o *Orchestrator) adminRoom(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey) (*domain.Room, error) {
	room, err := o.Store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.AdminKey != adminKey {
		return nil, domain.ErrInvalidAdminKey
	}
	return room, nil
}

func (o *Orchestrator) publishBoard(ctx context.Context, roomID domain.RoomID) {
	board, err := o.Projector.BoardState(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Str("room", string(roomID)).Msg("board projection failed")
		return
	}
	o.Boards.Publish(string(roomID), board)
}

// publishVoters recomputes and publishes the board-derived voter state for
// every participant that ever held a voting key. Keys nobody watches are
// no-ops in the hub.
func (o *Orchestrator) publishVoters(ctx context.Context, roomID domain.RoomID) {
	participants, err := o.Store.ListParticipants(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Str("room", string(roomID)).Msg("list participants failed")
		return
	}
	for _, p := range participants {
		if p.VotingKey == "" {
			continue
		}
		state, err := o.Projector.VoterState(ctx, roomID, p.VotingKey)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orchestrator").Str("room", string(roomID)).Str("participant", string(p.ID)).Msg("voter projection failed")
			continue
		}
		o.Voters.Publish(voterKey(roomID, p.VotingKey), state)
	}
}

func (o *Orchestrator) publishWaitingList(ctx context.Context, roomID domain.RoomID) {
	entries, err := o.waitingList(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Str("room", string(roomID)).Msg("waiting list projection failed")
		return
	}
	o.WaitingLists.Publish(string(roomID), entries)
}

func (o *Orchestrator) waitingList(ctx context.Context, roomID domain.RoomID) ([]domain.WaitingListEntry, error) {
	participants, err := o.Store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.WaitingListEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.WaitingListEntry{
			ID:       p.ID,
			Name:     p.Name,
			Location: p.Location,
			State:    p.State,
		})
	}
	return entries, nil
}

func voterKey(roomID domain.RoomID, key domain.VotingKey) string {
	return string(roomID) + "/" + string(key)
}
