package event

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Invite creates a pending invitation and pushes a notification to the
// invitee. The push is fire-and-forget: a sink failure never rolls back the
// invitation.
func (s *Service) Invite(ctx context.Context, eventID, managerID, userID string) (*Invitation, error) {
	if userID == "" {
		return nil, errf(KindInvalid, "userId is required")
	}

	var inv *Invitation
	var eventName string
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if !Evaluate(ev, managerID, now).CanManage {
			return errForbidden("only the event owner or an editor can invite")
		}
		if ev.IsParticipant(userID) {
			return errf(KindInvalid, "user is already a participant")
		}
		existing, err := tx.ListInvitations(eventID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.UserID == userID && e.Status == InvitePending {
				return errf(KindInvalid, "user already has a pending invitation")
			}
		}

		inv = &Invitation{
			ID:        uuid.NewString(),
			EventID:   eventID,
			UserID:    userID,
			InvitedBy: managerID,
			InvitedAt: now,
			Status:    InvitePending,
		}
		eventName = ev.Name
		return tx.SetInvitation(inv)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.Push(ctx, userID, "You're invited",
			"You have been invited to "+eventName,
			map[string]string{"eventId": eventID, "inviteId": inv.ID}); err != nil {
			log.Printf("deezeroom: push invite notification: %v", err)
		}
	}
	s.publish(ctx, Update{Type: UpdateInviteCreated, EventID: eventID, Payload: map[string]any{"invitation": inv}})
	return inv, nil
}

// RespondInvite lets the invitee accept or decline. Accepting joins the
// participant set in the same transaction as the status flip.
func (s *Service) RespondInvite(ctx context.Context, eventID, inviteID, userID string, accept bool) (*Invitation, error) {
	var inv *Invitation
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if ev.Ended(s.now()) {
			return errEnded()
		}
		got, err := tx.GetInvitation(eventID, inviteID)
		if err != nil {
			return err
		}
		if got.UserID != userID {
			return errForbidden("invitation belongs to another user")
		}
		if got.Status != InvitePending {
			return errf(KindInvalid, "invitation was already answered")
		}

		if accept {
			got.Status = InviteAccepted
			if !ev.IsParticipant(userID) {
				ev.ParticipantIDs = append(ev.ParticipantIDs, userID)
				if err := tx.SetEvent(ev); err != nil {
					return err
				}
			}
		} else {
			got.Status = InviteDeclined
		}
		if err := tx.SetInvitation(got); err != nil {
			return err
		}
		inv = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Update{Type: UpdateInviteAnswered, EventID: eventID, Payload: map[string]any{"invitation": inv}})
	return inv, nil
}

// RevokeInvite deletes an invitation. Manager only.
func (s *Service) RevokeInvite(ctx context.Context, eventID, inviteID, managerID string) error {
	return s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if !ev.IsManager(managerID) {
			return errForbidden("only the event owner or an editor can revoke invitations")
		}
		return tx.DeleteInvitation(eventID, inviteID)
	})
}

// ListInvitations is restricted to managers; invitees learn about their own
// invitation through the push notification.
func (s *Service) ListInvitations(ctx context.Context, eventID, userID string) ([]Invitation, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsManager(userID) {
		return nil, errForbidden("only the event owner or an editor can list invitations")
	}
	return s.store.ListInvitations(ctx, eventID)
}
