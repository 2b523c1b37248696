package event

import (
	"context"
	"log"
	"time"
)

// TrackResolver fills in catalog metadata when a client adds a track by
// bare id. Consumed read-only; the result is cached on the ledger entry.
type TrackResolver interface {
	Track(ctx context.Context, trackID string) (*TrackRef, error)
}

// Notifier delivers best-effort push messages. No delivery confirmation is
// expected; failures are logged and never fail the triggering operation.
type Notifier interface {
	Push(ctx context.Context, userID, title, body string, data map[string]string) error
}

// Service owns the Track Ledger, Vote Ledger, Playback Coordinator and
// invitations. All coordination happens through the transactional Store;
// every committed mutation is pushed through the Channel.
type Service struct {
	store    Store
	channel  Channel
	catalog  TrackResolver // optional
	notifier Notifier      // optional
	now      func() time.Time
}

func NewService(store Store, channel Channel, catalog TrackResolver, notifier Notifier) *Service {
	return &Service{
		store:    store,
		channel:  channel,
		catalog:  catalog,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Service) publish(ctx context.Context, u Update) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, u); err != nil {
		log.Printf("deezeroom: publish %s: %v", u.Type, err)
	}
}

// AddTrack inserts a candidate track with an implicit first vote by userID,
// or, when the track is already on the ledger, acts as a plain vote. The
// two sub-cases are dispatched explicitly so a concurrent duplicate add can
// never double-count. Event.TrackCount moves only on a real insertion.
func (s *Service) AddTrack(ctx context.Context, eventID string, track TrackRef, userID string) (*TrackEntry, bool, error) {
	if track.TrackID == "" {
		return nil, false, errf(KindInvalid, "trackId is required")
	}
	if track.Title == "" && s.catalog != nil {
		resolved, err := s.catalog.Track(ctx, track.TrackID)
		if err != nil {
			return nil, false, err
		}
		track = *resolved
	}
	if track.Title == "" {
		return nil, false, errf(KindInvalid, "track title is required")
	}

	var entry *TrackEntry
	var created bool
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if !Evaluate(ev, userID, now).CanAddTrack {
			return errForbidden("not allowed to add tracks to this event")
		}

		existing, err := tx.GetTrack(eventID, track.TrackID)
		switch {
		case err == nil:
			// Implicit-vote sub-case.
			e, err := s.voteTx(tx, ev, existing, userID)
			if err != nil {
				return err
			}
			entry, created = e, false
			return nil
		case KindOf(err) == KindNotFound:
			// Insertion sub-case: the adder's vote is implicit.
			e := &TrackEntry{
				EventID:   eventID,
				Track:     track,
				AddedBy:   userID,
				AddedAt:   now,
				VoteCount: 1,
			}
			if err := tx.SetTrack(e); err != nil {
				return err
			}
			if err := tx.SetVote(eventID, userID, track.TrackID); err != nil {
				return err
			}
			ev.TrackCount++
			if err := tx.SetEvent(ev); err != nil {
				return err
			}
			entry, created = e, true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}

	kind := UpdateTrackVoted
	if created {
		kind = UpdateTrackAdded
	}
	s.publish(ctx, Update{Type: kind, EventID: eventID, Payload: map[string]any{
		"track":     entry,
		"voteCount": entry.VoteCount,
		"userId":    userID,
	}})
	return entry, created, nil
}

// Vote casts userID's vote for trackID. At most one vote per user per
// track; the flag and the counter move in the same transaction.
func (s *Service) Vote(ctx context.Context, eventID, trackID, userID string) (*TrackEntry, error) {
	var entry *TrackEntry
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if !Evaluate(ev, userID, now).CanVote {
			return errForbidden("not allowed to vote on this event")
		}
		track, err := tx.GetTrack(eventID, trackID)
		if err != nil {
			return err
		}
		entry, err = s.voteTx(tx, ev, track, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Update{Type: UpdateTrackVoted, EventID: eventID, Payload: map[string]any{
		"trackId":   trackID,
		"voteCount": entry.VoteCount,
		"userId":    userID,
	}})
	return entry, nil
}

// voteTx applies one vote inside an open transaction. Permission and
// lifecycle checks are the caller's job.
func (s *Service) voteTx(tx Tx, ev *Event, track *TrackEntry, userID string) (*TrackEntry, error) {
	rec, err := tx.GetVoteRecord(ev.ID, userID)
	if err != nil {
		return nil, err
	}
	if rec.Voted(track.Track.TrackID) {
		return nil, errf(KindAlreadyVoted, "already voted for this track")
	}
	if err := tx.SetVote(ev.ID, userID, track.Track.TrackID); err != nil {
		return nil, err
	}
	if err := tx.IncrementVotes(ev.ID, track.Track.TrackID, 1); err != nil {
		return nil, err
	}
	out := *track
	out.VoteCount++
	return &out, nil
}

// Unvote retracts a previously cast vote, decrementing the counter in the
// same transaction. The counter is floored at zero defensively; the ledger
// invariant keeps it from ever reaching the floor.
func (s *Service) Unvote(ctx context.Context, eventID, trackID, userID string) (*TrackEntry, error) {
	var entry *TrackEntry
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if ev.Ended(s.now()) {
			return errEnded()
		}
		track, err := tx.GetTrack(eventID, trackID)
		if err != nil {
			return err
		}
		rec, err := tx.GetVoteRecord(eventID, userID)
		if err != nil {
			return err
		}
		if !rec.Voted(trackID) {
			return errf(KindNotVoted, "no vote to retract for this track")
		}
		if err := tx.ClearVote(eventID, userID, trackID); err != nil {
			return err
		}
		if err := tx.IncrementVotes(eventID, trackID, -1); err != nil {
			return err
		}
		out := *track
		if out.VoteCount > 0 {
			out.VoteCount--
		}
		entry = &out
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Update{Type: UpdateTrackUnvoted, EventID: eventID, Payload: map[string]any{
		"trackId":   trackID,
		"voteCount": entry.VoteCount,
		"userId":    userID,
	}})
	return entry, nil
}

// RemoveTrack deletes a ledger entry. Requires manager membership but not a
// live event: managers may clean up ended events (see IsManager).
func (s *Service) RemoveTrack(ctx context.Context, eventID, trackID, userID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if !ev.IsManager(userID) {
			return errForbidden("only the event owner or an editor can remove tracks")
		}
		if _, err := tx.GetTrack(eventID, trackID); err != nil {
			return err
		}
		if err := tx.DeleteTrack(eventID, trackID); err != nil {
			return err
		}
		if err := tx.ClearTrackVotes(eventID, trackID); err != nil {
			return err
		}
		if ev.TrackCount > 0 {
			ev.TrackCount--
		}
		return tx.SetEvent(ev)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Update{Type: UpdateTrackRemoved, EventID: eventID, Payload: map[string]any{
		"trackId": trackID,
		"userId":  userID,
	}})
	return nil
}

// Queue returns the ranked queue as every client would compute it.
func (s *Service) Queue(ctx context.Context, eventID string) ([]TrackEntry, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	tracks, err := s.store.ListTracks(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return RankQueue(tracks), nil
}
