package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openagora/agora/internal/domain"
)

// JoinWaitingList creates a waiting participant and notifies the room's
// admins. The participant id is the caller's handle for watching their own
// admission status.
func (o *Orchestrator) JoinWaitingList(ctx context.Context, roomID domain.RoomID, name, location string) (*domain.Participant, error) {
	var participant *domain.Participant
	err := o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		room, err := o.Store.RoomByID(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Closed() {
			return domain.ErrRoomClosed
		}
		p, err := domain.NewParticipant(roomID, name, location, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := o.Store.CreateParticipant(ctx, p); err != nil {
			return err
		}
		participant = p
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("participant", string(p.ID)).Msg("joined waiting list")
		o.publishWaitingList(ctx, roomID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// AdmitParticipant moves a waiting participant to admitted and issues their
// voting key, generated once and never reused.
func (o *Orchestrator) AdmitParticipant(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.ParticipantID) error {
	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		p, err := o.roomParticipant(ctx, roomID, adminKey, id)
		if err != nil {
			return err
		}
		if !p.CanTransitionTo(domain.ParticipantAdmitted) {
			return domain.ErrParticipantNotWaiting
		}
		key := domain.NewVotingKey()
		if err := o.Store.SetParticipantState(ctx, id, domain.ParticipantAdmitted, key); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("participant", string(id)).Msg("participant admitted")
		o.Admissions.Publish(string(id), domain.AdmissionState{State: domain.ParticipantAdmitted, VotingKey: key})
		o.publishWaitingList(ctx, roomID)
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
}

// DeclineParticipant refuses a waiting participant. Terminal: declined
// participants never re-enter the waiting room.
func (o *Orchestrator) DeclineParticipant(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.ParticipantID) error {
	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		p, err := o.roomParticipant(ctx, roomID, adminKey, id)
		if err != nil {
			return err
		}
		if !p.CanTransitionTo(domain.ParticipantDeclined) {
			return domain.ErrParticipantNotWaiting
		}
		if err := o.Store.SetParticipantState(ctx, id, domain.ParticipantDeclined, ""); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("participant", string(id)).Msg("participant declined")
		o.Admissions.Publish(string(id), domain.AdmissionState{State: domain.ParticipantDeclined})
		o.publishWaitingList(ctx, roomID)
		return nil
	})
}

// KickVoter removes an admitted voter. Their voter stream flips to
// PhaseKicked and stays there.
func (o *Orchestrator) KickVoter(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.ParticipantID) error {
	return o.Queue.Do(ctx, string(roomID), func(ctx context.Context) error {
		p, err := o.roomParticipant(ctx, roomID, adminKey, id)
		if err != nil {
			return err
		}
		if !p.CanTransitionTo(domain.ParticipantKicked) {
			return domain.ErrParticipantNotAdmitted
		}
		if err := o.Store.SetParticipantState(ctx, id, domain.ParticipantKicked, ""); err != nil {
			return err
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("participant", string(id)).Msg("voter kicked")
		o.Admissions.Publish(string(id), domain.AdmissionState{State: domain.ParticipantKicked})
		o.publishWaitingList(ctx, roomID)
		o.publishBoard(ctx, roomID)
		o.publishVoters(ctx, roomID)
		return nil
	})
}

func (o *Orchestrator) roomParticipant(ctx context.Context, roomID domain.RoomID, adminKey domain.AdminKey, id domain.ParticipantID) (*domain.Participant, error) {
	if _, err := o.adminRoom(ctx, roomID, adminKey); err != nil {
		return nil, err
	}
	p, err := o.Store.ParticipantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.RoomID != roomID {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}
