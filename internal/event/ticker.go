package event

import (
	"context"
	"log"
	"time"
)

// advanceGrace is how far past its duration a track may run before the
// server advances it on the host's behalf. Within the grace window the
// host client is expected to report completion itself.
const advanceGrace = 5 * time.Second

// StartTicker starts the background fallback that advances tracks whose
// host never reported completion (crashed client, dropped connection).
func (s *Service) StartTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				s.advanceOverdue(ctx)
			}
		}
	}()
}

func (s *Service) advanceOverdue(ctx context.Context) {
	events, err := s.store.ListPlaying(ctx)
	if err != nil {
		log.Printf("deezeroom: ticker list playing: %v", err)
		return
	}
	now := s.now()
	for _, ev := range events {
		if !overdue(&ev, now) {
			continue
		}
		if err := s.forceAdvance(ctx, ev.ID, ev.CurrentTrack.TrackID); err != nil {
			log.Printf("deezeroom: ticker advance %s: %v", ev.ID, err)
		}
	}
}

func overdue(ev *Event, now time.Time) bool {
	if !ev.IsPlaying || ev.CurrentTrack == nil || ev.PlayingStartedAt == nil {
		return false
	}
	if ev.CurrentTrack.DurationSeconds <= 0 {
		return false
	}
	deadline := ev.PlayingStartedAt.
		Add(time.Duration(ev.CurrentTrack.DurationSeconds) * time.Second).
		Add(advanceGrace)
	return now.After(deadline)
}

// forceAdvance is the server-side advance. It bypasses the host lease
// (there is no host session to blame for a crashed host) but re-validates
// overrun and the current track inside the transaction, so a host report
// landing first makes this a no-op.
func (s *Service) forceAdvance(ctx context.Context, eventID, finishedTrackID string) error {
	var state *PlaybackState
	var advanced bool
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(eventID)
		if err != nil {
			return err
		}
		now := s.now()
		if ev.CurrentTrack == nil || ev.CurrentTrack.TrackID != finishedTrackID || !overdue(ev, now) {
			advanced = false
			return nil
		}
		if ev.Ended(now) {
			// Terminated mid-track: just stop.
			ev.CurrentTrack = nil
			ev.IsPlaying = false
			ev.PlayingStartedAt = nil
			if err := tx.SetEvent(ev); err != nil {
				return err
			}
			state, advanced = playbackOf(ev), true
			return nil
		}
		if err := s.advanceTx(tx, ev, finishedTrackID, now); err != nil {
			return err
		}
		state, advanced = playbackOf(ev), true
		return nil
	})
	if err != nil {
		return err
	}
	if advanced {
		s.publish(ctx, Update{Type: UpdatePlayback, EventID: eventID, Payload: map[string]any{"playback": state}})
	}
	return nil
}
