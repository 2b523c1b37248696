package event

import (
	"context"
	"sync"
	"time"
)

// HostLeaseTTL bounds how long a silent host session keeps playback
// ownership. A candidate host takes over with a compare-and-swap once the
// previous lease goes stale.
const HostLeaseTTL = 15 * time.Second

// PlaybackState is what read-only clients render.
type PlaybackState struct {
	EventID          string     `json:"eventId"`
	CurrentTrack     *TrackRef  `json:"currentTrack,omitempty"`
	IsPlaying        bool       `json:"isPlaying"`
	PlayingStartedAt *time.Time `json:"playingStartedAt,omitempty"`
}

func playbackOf(ev *Event) *PlaybackState {
	return &PlaybackState{
		EventID:          ev.ID,
		CurrentTrack:     ev.CurrentTrack,
		IsPlaying:        ev.IsPlaying,
		PlayingStartedAt: ev.PlayingStartedAt,
	}
}

func (s *Service) leaseValid(ev *Event, sessionID string, now time.Time) bool {
	return ev.HostSessionID == sessionID &&
		ev.HostSeenAt != nil &&
		now.Sub(*ev.HostSeenAt) <= HostLeaseTTL
}

// AcquireHost claims (or refreshes) the host lease for sessionID. Only a
// manager may host. A live lease held by another session wins the race and
// the caller gets Conflict; an expired lease is taken over.
func (s *Service) AcquireHost(ctx context.Context, eventID, userID, sessionID string) error {
	if sessionID == "" {
		return errf(KindInvalid, "sessionId is required")
	}
	return s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if !Evaluate(ev, userID, now).CanManage {
			return errForbidden("only the event owner or an editor can host playback")
		}
		if ev.HostSessionID != "" && ev.HostSessionID != sessionID &&
			ev.HostSeenAt != nil && now.Sub(*ev.HostSeenAt) <= HostLeaseTTL {
			return errf(KindConflict, "another session currently holds the host lease")
		}
		ev.HostSessionID = sessionID
		ev.HostSeenAt = &now
		return tx.SetEvent(ev)
	})
}

// ReleaseHost drops the lease if the caller's session holds it. Releasing a
// lease you no longer hold is a no-op, so shutdown paths can call it
// unconditionally.
func (s *Service) ReleaseHost(ctx context.Context, eventID, sessionID string) error {
	return s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		if ev.HostSessionID != sessionID {
			return nil
		}
		ev.HostSessionID = ""
		ev.HostSeenAt = nil
		return tx.SetEvent(ev)
	})
}

func (s *Service) requireHost(ev *Event, userID, sessionID string, now time.Time) error {
	if !Evaluate(ev, userID, now).CanManage {
		return errForbidden("only the event owner or an editor can control playback")
	}
	if !s.leaseValid(ev, sessionID, now) {
		return errf(KindConflict, "playback is controlled by another host session")
	}
	return nil
}

// StartPlayback moves Idle -> Playing with the top of the ranked queue.
func (s *Service) StartPlayback(ctx context.Context, eventID, userID, sessionID string) (*PlaybackState, error) {
	var state *PlaybackState
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if err := s.requireHost(ev, userID, sessionID, now); err != nil {
			return err
		}
		if ev.CurrentTrack != nil {
			return errf(KindInvalid, "playback already started")
		}
		tracks, err := tx.ListTracks(eventID)
		if err != nil {
			return err
		}
		next := NextTrack(tracks, "")
		if next == nil {
			return errf(KindInvalid, "the queue is empty")
		}
		tr := next.Track
		ev.CurrentTrack = &tr
		ev.IsPlaying = true
		ev.PlayingStartedAt = &now
		ev.HostSeenAt = &now
		if err := tx.SetEvent(ev); err != nil {
			return err
		}
		state = playbackOf(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Update{Type: UpdatePlayback, EventID: eventID, Payload: map[string]any{"playback": state}})
	return state, nil
}

// SetPlaying toggles Playing <-> Paused. CurrentTrack stays untouched.
func (s *Service) SetPlaying(ctx context.Context, eventID, userID, sessionID string, playing bool) (*PlaybackState, error) {
	var state *PlaybackState
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if err := s.requireHost(ev, userID, sessionID, now); err != nil {
			return err
		}
		if ev.CurrentTrack == nil {
			return errf(KindInvalid, "nothing is playing")
		}
		ev.IsPlaying = playing
		ev.HostSeenAt = &now
		if err := tx.SetEvent(ev); err != nil {
			return err
		}
		state = playbackOf(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Update{Type: UpdatePlayback, EventID: eventID, Payload: map[string]any{"playback": state}})
	return state, nil
}

// FinishTrack handles both natural completion and an explicit skip: it
// records that finishedTrackID is done and advances to the head of the
// re-ranked queue, excluding the finished track so mid-playback votes
// cannot resurrect it immediately. The call is idempotent: a duplicate
// completion signal (finishedTrackID no longer current) is a no-op.
func (s *Service) FinishTrack(ctx context.Context, eventID, userID, sessionID, finishedTrackID string) (*PlaybackState, error) {
	var state *PlaybackState
	var advanced bool
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if err := s.requireHost(ev, userID, sessionID, now); err != nil {
			return err
		}
		if ev.CurrentTrack == nil || ev.CurrentTrack.TrackID != finishedTrackID {
			// Duplicate or stale completion signal.
			state, advanced = playbackOf(ev), false
			return nil
		}
		if err := s.advanceTx(tx, ev, finishedTrackID, now); err != nil {
			return err
		}
		state, advanced = playbackOf(ev), true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if advanced {
		s.publish(ctx, Update{Type: UpdatePlayback, EventID: eventID, Payload: map[string]any{"playback": state}})
	}
	return state, nil
}

// Skip is a host-triggered finish of whatever is current.
func (s *Service) Skip(ctx context.Context, eventID, userID, sessionID string) (*PlaybackState, error) {
	var state *PlaybackState
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.Ended(now) {
			return errEnded()
		}
		if err := s.requireHost(ev, userID, sessionID, now); err != nil {
			return err
		}
		if ev.CurrentTrack == nil {
			return errf(KindInvalid, "nothing is playing")
		}
		if err := s.advanceTx(tx, ev, ev.CurrentTrack.TrackID, now); err != nil {
			return err
		}
		state = playbackOf(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Update{Type: UpdatePlayback, EventID: eventID, Payload: map[string]any{"playback": state}})
	return state, nil
}

// advanceTx mutates ev in place to the next queue head (or Idle) inside an
// open transaction.
func (s *Service) advanceTx(tx Tx, ev *Event, finishedTrackID string, now time.Time) error {
	tracks, err := tx.ListTracks(ev.ID)
	if err != nil {
		return err
	}
	if next := NextTrack(tracks, finishedTrackID); next != nil {
		tr := next.Track
		ev.CurrentTrack = &tr
		ev.IsPlaying = true
		ev.PlayingStartedAt = &now
	} else {
		ev.CurrentTrack = nil
		ev.IsPlaying = false
		ev.PlayingStartedAt = nil
	}
	return tx.SetEvent(ev)
}

// Playback returns the state read-only clients render.
func (s *Service) Playback(ctx context.Context, eventID string) (*PlaybackState, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return playbackOf(ev), nil
}

// Coordinator is the per-process host helper: it owns the host session id
// and guards against double-advance when the audio layer reports the same
// completion twice in quick succession.
type Coordinator struct {
	svc       *Service
	sessionID string

	mu       sync.Mutex
	inFlight map[string]bool // eventID -> advance in progress
}

func NewCoordinator(svc *Service, sessionID string) *Coordinator {
	return &Coordinator{svc: svc, sessionID: sessionID, inFlight: map[string]bool{}}
}

func (c *Coordinator) SessionID() string { return c.sessionID }

// TrackFinished is the completion callback. Exactly one finish transition
// per event may be in flight; overlapping signals return the current state
// without advancing twice. The store-level current-track check catches
// duplicates that arrive after the first advance committed.
func (c *Coordinator) TrackFinished(ctx context.Context, eventID, userID, trackID string) (*PlaybackState, error) {
	c.mu.Lock()
	if c.inFlight[eventID] {
		c.mu.Unlock()
		return c.svc.Playback(ctx, eventID)
	}
	c.inFlight[eventID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, eventID)
		c.mu.Unlock()
	}()
	return c.svc.FinishTrack(ctx, eventID, userID, c.sessionID, trackID)
}
