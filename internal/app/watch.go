package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/domain"
)

// WatchBoard streams the room's board state: current state first, then
// every change, in order. The returned cancel releases the subscription.
func (o *Orchestrator) WatchBoard(ctx context.Context, roomID domain.RoomID, fn func(domain.BoardState)) (func(), error) {
	if _, err := o.Store.RoomByID(ctx, roomID); err != nil {
		return nil, err
	}
	cancel := o.Boards.Subscribe(ctx, string(roomID), func(ctx context.Context) (domain.BoardState, error) {
		return o.Projector.BoardState(ctx, roomID)
	}, fn)
	return cancel, nil
}

// WatchVoter streams one voter's view, keyed by their private voting key.
func (o *Orchestrator) WatchVoter(ctx context.Context, roomID domain.RoomID, key domain.VotingKey, fn func(domain.VoterState)) (func(), error) {
	voter, err := o.Store.ParticipantByVotingKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if voter.RoomID != roomID {
		return nil, domain.ErrVoterNotFound
	}
	cancel := o.Voters.Subscribe(ctx, voterKey(roomID, key), func(ctx context.Context) (domain.VoterState, error) {
		return o.Projector.VoterState(ctx, roomID, key)
	}, fn)
	return cancel, nil
}

// WatchWaitingList streams the admin waiting-list view. The admin key is
// checked once, at subscription time.
func (o *Orchestrator) WatchWaitingList(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, fn func([]domain.WaitingListEntry)) (func(), error) {
	if _, err := o.adminRoom(ctx, roomID, adminKey); err != nil {
		return nil, err
	}
	cancel := o.WaitingLists.Subscribe(ctx, string(roomID), func(ctx context.Context) ([]domain.WaitingListEntry, error) {
		return o.waitingList(ctx, roomID)
	}, fn)
	return cancel, nil
}

// WatchAdmission streams a participant's private admission status. While
// the participant is still waiting, the watcher re-fetches and re-publishes
// on a fixed interval; this is a best-effort guard against a theoretically
// missed notification, not a correctness guarantee.
func (o *Orchestrator) WatchAdmission(ctx context.Context, id domain.ParticipantID, fn func(domain.AdmissionState)) (func(), error) {
	p, err := o.Store.ParticipantByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cancel := o.Admissions.Subscribe(ctx, string(id), func(ctx context.Context) (domain.AdmissionState, error) {
		return o.admissionState(ctx, id)
	}, fn)

	stop := make(chan struct{})
	if p.State == domain.ParticipantWaiting {
		interval := o.AdmissionRecheck
		if interval <= 0 {
			interval = DefaultAdmissionRecheck
		}
		go o.recheckAdmission(ctx, id, interval, stop)
	}

	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(stop)
		}
		cancel()
	}, nil
}

func (o *Orchestrator) recheckAdmission(ctx context.Context, id domain.ParticipantID, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, err := o.admissionState(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("module", "app.watch").Str("participant", string(id)).Msg("admission recheck failed")
				continue
			}
			// Skip republishing an unchanged waiting status to keep the
			// stream quiet.
			if last, ok := o.Admissions.Last(string(id)); ok && last == state {
				continue
			}
			o.Admissions.Publish(string(id), state)
			if state.State != domain.ParticipantWaiting {
				return
			}
		}
	}
}

func (o *Orchestrator) admissionState(ctx context.Context, id domain.ParticipantID) (domain.AdmissionState, error) {
	p, err := o.Store.ParticipantByID(ctx, id)
	if err != nil {
		return domain.AdmissionState{}, err
	}
	state := domain.AdmissionState{State: p.State}
	if p.State == domain.ParticipantAdmitted {
		state.VotingKey = p.VotingKey
	}
	return state, nil
}
