package event

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateEventParams is what a client supplies; everything else is derived.
type CreateEventParams struct {
	Name        string
	Description string
	Visibility  Visibility
	License     VoteLicense
	StartAt     *time.Time
	EndAt       *time.Time
}

// UpdateEventParams carries a partial update; nil fields stay untouched.
type UpdateEventParams struct {
	Name        *string
	Description *string
	Visibility  *Visibility
	License     *VoteLicense
	StartAt     *time.Time
	EndAt       *time.Time
	EditorIDs   *[]string
}

// View is the snapshot a client renders: the event plus the ranked queue
// and the caller's own vote flags.
type View struct {
	Event   *Event          `json:"event"`
	Queue   []TrackEntry    `json:"queue"`
	MyVotes map[string]bool `json:"myVotes"`
	Access  Access          `json:"access"`
}

func validateEventParams(name string, startAt, endAt *time.Time) error {
	if name == "" || len(name) > 200 {
		return errf(KindInvalid, "name must be between 1 and 200 characters")
	}
	if startAt != nil && endAt != nil && !endAt.After(*startAt) {
		return errf(KindInvalid, "endAt must be after startAt")
	}
	return nil
}

// CreateEvent creates an event owned by userID. The creator joins the
// participant set immediately so private-event checks pass for them.
func (s *Service) CreateEvent(ctx context.Context, userID string, p CreateEventParams) (*Event, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := validateEventParams(p.Name, p.StartAt, p.EndAt); err != nil {
		return nil, err
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	if p.License == "" {
		p.License = LicenseEveryone
	}

	ev := &Event{
		ID:             uuid.NewString(),
		Name:           p.Name,
		Description:    strings.TrimSpace(p.Description),
		Visibility:     p.Visibility,
		License:        p.License,
		CreatedBy:      userID,
		ParticipantIDs: []string{userID},
		EditorIDs:      []string{},
		StartAt:        p.StartAt,
		EndAt:          p.EndAt,
		CreatedAt:      s.now(),
	}
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		return tx.SetEvent(ev)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Update{Type: UpdateEventCreated, EventID: ev.ID, Payload: map[string]any{"event": ev}})
	return ev, nil
}

// GetView assembles the subscriber snapshot for one event.
func (s *Service) GetView(ctx context.Context, eventID, userID string) (*View, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	acc := Evaluate(ev, userID, s.now())
	if !acc.CanView {
		return nil, errForbidden("this event is private")
	}
	tracks, err := s.store.ListTracks(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetVoteRecord(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return &View{
		Event:   ev,
		Queue:   RankQueue(tracks),
		MyVotes: rec.TrackVotes,
		Access:  acc,
	}, nil
}

// ListEvents returns everything the user may discover.
func (s *Service) ListEvents(ctx context.Context, userID string) ([]Event, error) {
	return s.store.ListEvents(ctx, userID)
}

// UpdateEvent patches display and policy fields. Manager only, and only
// while the event runs.
func (s *Service) UpdateEvent(ctx context.Context, eventID, userID string, p UpdateEventParams) (*Event, error) {
	var out *Event
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if !Evaluate(ev, userID, now).CanManage {
			return errForbidden("only the event owner or an editor can update the event")
		}

		if p.Name != nil {
			ev.Name = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			ev.Description = strings.TrimSpace(*p.Description)
		}
		if p.Visibility != nil {
			ev.Visibility = *p.Visibility
		}
		if p.License != nil {
			ev.License = *p.License
		}
		if p.StartAt != nil {
			ev.StartAt = p.StartAt
		}
		if p.EndAt != nil {
			ev.EndAt = p.EndAt
		}
		if p.EditorIDs != nil {
			ev.EditorIDs = append([]string(nil), (*p.EditorIDs)...)
		}
		if err := validateEventParams(ev.Name, ev.StartAt, ev.EndAt); err != nil {
			return err
		}
		if err := tx.SetEvent(ev); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Update{Type: UpdateEventUpdated, EventID: eventID, Payload: map[string]any{"event": out}})
	return out, nil
}

// DeleteEvent removes the event and cascades to tracks, votes and pending
// invitations. Like RemoveTrack, this is management cleanup and is allowed
// on ended events.
func (s *Service) DeleteEvent(ctx context.Context, eventID, userID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if !ev.IsManager(userID) {
			return errForbidden("only the event owner or an editor can delete the event")
		}
		return tx.DeleteEvent(eventID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Update{Type: UpdateEventDeleted, EventID: eventID, Payload: map[string]any{"userId": userID}})
	return nil
}
