package event

import (
	"context"
	"log"
)

func AutoMigrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS events (
          id                 TEXT PRIMARY KEY,
          name               TEXT NOT NULL,
          description        TEXT NOT NULL DEFAULT '',
          visibility         TEXT NOT NULL DEFAULT 'public',
          license            TEXT NOT NULL DEFAULT 'everyone',
          created_by         TEXT NOT NULL,
          participant_ids    TEXT[] NOT NULL DEFAULT '{}',
          editor_ids         TEXT[] NOT NULL DEFAULT '{}',
          start_at           TIMESTAMPTZ,
          end_at             TIMESTAMPTZ,
          track_count        INT NOT NULL DEFAULT 0,
          is_playing         BOOLEAN NOT NULL DEFAULT FALSE,
          current_track      JSONB,
          playing_started_at TIMESTAMPTZ,
          host_session_id    TEXT NOT NULL DEFAULT '',
          host_seen_at       TIMESTAMPTZ,
          created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `)
	if err != nil {
		log.Printf("deezeroom: migrate events: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS event_tracks (
          event_id         TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
          track_id         TEXT NOT NULL,
          title            TEXT NOT NULL,
          artist           TEXT NOT NULL DEFAULT '',
          duration_seconds INT NOT NULL DEFAULT 0,
          album_cover      TEXT NOT NULL DEFAULT '',
          preview_url      TEXT NOT NULL DEFAULT '',
          explicit         BOOLEAN NOT NULL DEFAULT FALSE,
          added_by         TEXT NOT NULL,
          added_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
          vote_count       INT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
          PRIMARY KEY (event_id, track_id)
      )
    `); err != nil {
		log.Printf("deezeroom: migrate event_tracks: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS event_votes (
          event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
          user_id    TEXT NOT NULL,
          track_id   TEXT NOT NULL,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (event_id, user_id, track_id)
      )
    `); err != nil {
		log.Printf("deezeroom: migrate event_votes: %v", err)
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS event_invitations (
          id         TEXT PRIMARY KEY,
          event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
          user_id    TEXT NOT NULL,
          invited_by TEXT NOT NULL,
          invited_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          status     TEXT NOT NULL DEFAULT 'pending'
      )
    `); err != nil {
		log.Printf("deezeroom: migrate event_invitations: %v", err)
		return err
	}

	// Partial: answered invitations stay as history, so only the pending
	// one per user may be unique or re-inviting a declined user would hit
	// the index.
	if _, err := db.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_event_invitations_pending
      ON event_invitations(event_id, user_id)
      WHERE status = 'pending'
    `); err != nil {
		return err
	}

	return nil
}
