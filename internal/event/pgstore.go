package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	txMaxAttempts = 3
	txTimeout     = 5 * time.Second
)

// DB is the subset of *pgxpool.Pool the store needs, kept as an interface
// so tests can substitute mocks.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PGStore implements Store on Postgres. Writers serialize per event via a
// row lock on the event document; lost serialization races are retried by
// RunTransaction before surfacing as Conflict.
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	var last error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryablePG(err) {
			return err
		}
		last = err
	}
	return errf(KindConflict, "transaction lost the race after %d attempts: %v", txMaxAttempts, last)
}

func (s *PGStore) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return mapPGErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPGErr(err)
	}
	return nil
}

func retryablePG(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func mapPGErr(err error) error {
	if err == nil {
		return nil
	}
	if retryablePG(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errf(KindConflict, "transaction timed out")
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUnavailable, Msg: err.Error()}
}

const eventColumns = `id, name, description, visibility, license, created_by,
       participant_ids, editor_ids, start_at, end_at, track_count,
       is_playing, current_track, playing_started_at,
       host_session_id, host_seen_at, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	var currentTrack []byte
	err := row.Scan(
		&ev.ID, &ev.Name, &ev.Description, &ev.Visibility, &ev.License, &ev.CreatedBy,
		&ev.ParticipantIDs, &ev.EditorIDs, &ev.StartAt, &ev.EndAt, &ev.TrackCount,
		&ev.IsPlaying, &currentTrack, &ev.PlayingStartedAt,
		&ev.HostSessionID, &ev.HostSeenAt, &ev.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("event")
	}
	if err != nil {
		return nil, mapPGErr(err)
	}
	if len(currentTrack) > 0 {
		var tr TrackRef
		if err := json.Unmarshal(currentTrack, &tr); err != nil {
			return nil, &Error{Kind: KindUnavailable, Msg: "corrupt current_track: " + err.Error()}
		}
		ev.CurrentTrack = &tr
	}
	return &ev, nil
}

func (s *PGStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	return scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (s *PGStore) ListEvents(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE visibility = 'public'
		   OR created_by = $1
		   OR $1 = ANY(participant_ids)
		   OR $1 = ANY(editor_ids)
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapPGErr(err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGErr(err)
	}
	return events, nil
}

func (s *PGStore) ListPlaying(ctx context.Context) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE is_playing AND current_track IS NOT NULL
	`)
	if err != nil {
		return nil, mapPGErr(err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGErr(err)
	}
	return events, nil
}

func (s *PGStore) ListTracks(ctx context.Context, eventID string) ([]TrackEntry, error) {
	return listTracksQuery(ctx, s.db, eventID)
}

func (s *PGStore) GetVoteRecord(ctx context.Context, eventID, userID string) (*VoteRecord, error) {
	return voteRecordQuery(ctx, s.db, eventID, userID)
}

func (s *PGStore) ListInvitations(ctx context.Context, eventID string) ([]Invitation, error) {
	return listInvitationsQuery(ctx, s.db, eventID)
}

// querier lets the same read helpers serve the pool and open transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const trackColumns = `event_id, track_id, title, artist, duration_seconds,
       album_cover, preview_url, explicit, added_by, added_at, vote_count`

func listTracksQuery(ctx context.Context, q querier, eventID string) ([]TrackEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT `+trackColumns+`
		FROM event_tracks
		WHERE event_id = $1
		ORDER BY added_at ASC
	`, eventID)
	if err != nil {
		return nil, mapPGErr(err)
	}
	defer rows.Close()

	tracks := make([]TrackEntry, 0)
	for rows.Next() {
		var t TrackEntry
		if err := rows.Scan(
			&t.EventID, &t.Track.TrackID, &t.Track.Title, &t.Track.Artist,
			&t.Track.DurationSeconds, &t.Track.AlbumCover, &t.Track.PreviewURL,
			&t.Track.Explicit, &t.AddedBy, &t.AddedAt, &t.VoteCount,
		); err != nil {
			return nil, mapPGErr(err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGErr(err)
	}
	return tracks, nil
}

func voteRecordQuery(ctx context.Context, q querier, eventID, userID string) (*VoteRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT track_id FROM event_votes WHERE event_id = $1 AND user_id = $2
	`, eventID, userID)
	if err != nil {
		return nil, mapPGErr(err)
	}
	defer rows.Close()

	rec := &VoteRecord{EventID: eventID, UserID: userID, TrackVotes: map[string]bool{}}
	for rows.Next() {
		var trackID string
		if err := rows.Scan(&trackID); err != nil {
			return nil, mapPGErr(err)
		}
		rec.TrackVotes[trackID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGErr(err)
	}
	return rec, nil
}

const inviteColumns = `id, event_id, user_id, invited_by, invited_at, status`

func listInvitationsQuery(ctx context.Context, q querier, eventID string) ([]Invitation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+inviteColumns+`
		FROM event_invitations
		WHERE event_id = $1
		ORDER BY invited_at ASC
	`, eventID)
	if err != nil {
		return nil, mapPGErr(err)
	}
	defer rows.Close()

	invites := make([]Invitation, 0)
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.EventID, &inv.UserID, &inv.InvitedBy, &inv.InvitedAt, &inv.Status); err != nil {
			return nil, mapPGErr(err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPGErr(err)
	}
	return invites, nil
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

// GetEvent takes a row lock on the event document, serializing concurrent
// transactions that touch the same event.
func (t *pgTx) GetEvent(id string) (*Event, error) {
	return scanEvent(t.tx.QueryRow(t.ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SetEvent(ev *Event) error {
	var currentTrack []byte
	if ev.CurrentTrack != nil {
		b, err := json.Marshal(ev.CurrentTrack)
		if err != nil {
			return errf(KindInvalid, "encode current track: %v", err)
		}
		currentTrack = b
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO events (
			id, name, description, visibility, license, created_by,
			participant_ids, editor_ids, start_at, end_at, track_count,
			is_playing, current_track, playing_started_at,
			host_session_id, host_seen_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			visibility = EXCLUDED.visibility,
			license = EXCLUDED.license,
			participant_ids = EXCLUDED.participant_ids,
			editor_ids = EXCLUDED.editor_ids,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			track_count = EXCLUDED.track_count,
			is_playing = EXCLUDED.is_playing,
			current_track = EXCLUDED.current_track,
			playing_started_at = EXCLUDED.playing_started_at,
			host_session_id = EXCLUDED.host_session_id,
			host_seen_at = EXCLUDED.host_seen_at
	`,
		ev.ID, ev.Name, ev.Description, ev.Visibility, ev.License, ev.CreatedBy,
		ev.ParticipantIDs, ev.EditorIDs, ev.StartAt, ev.EndAt, ev.TrackCount,
		ev.IsPlaying, currentTrack, ev.PlayingStartedAt,
		ev.HostSessionID, ev.HostSeenAt, ev.CreatedAt,
	)
	return mapPGErr(err)
}

func (t *pgTx) DeleteEvent(id string) error {
	// Subcollections cascade via foreign keys.
	res, err := t.tx.Exec(t.ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapPGErr(err)
	}
	if res.RowsAffected() == 0 {
		return errNotFound("event")
	}
	return nil
}

func (t *pgTx) GetTrack(eventID, trackID string) (*TrackEntry, error) {
	var tr TrackEntry
	err := t.tx.QueryRow(t.ctx, `
		SELECT `+trackColumns+`
		FROM event_tracks
		WHERE event_id = $1 AND track_id = $2
	`, eventID, trackID).Scan(
		&tr.EventID, &tr.Track.TrackID, &tr.Track.Title, &tr.Track.Artist,
		&tr.Track.DurationSeconds, &tr.Track.AlbumCover, &tr.Track.PreviewURL,
		&tr.Track.Explicit, &tr.AddedBy, &tr.AddedAt, &tr.VoteCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("track")
	}
	if err != nil {
		return nil, mapPGErr(err)
	}
	return &tr, nil
}

func (t *pgTx) ListTracks(eventID string) ([]TrackEntry, error) {
	return listTracksQuery(t.ctx, t.tx, eventID)
}

func (t *pgTx) SetTrack(tr *TrackEntry) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO event_tracks (
			event_id, track_id, title, artist, duration_seconds,
			album_cover, preview_url, explicit, added_by, added_at, vote_count
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (event_id, track_id) DO UPDATE SET
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			duration_seconds = EXCLUDED.duration_seconds,
			album_cover = EXCLUDED.album_cover,
			preview_url = EXCLUDED.preview_url,
			explicit = EXCLUDED.explicit,
			vote_count = EXCLUDED.vote_count
	`,
		tr.EventID, tr.Track.TrackID, tr.Track.Title, tr.Track.Artist,
		tr.Track.DurationSeconds, tr.Track.AlbumCover, tr.Track.PreviewURL,
		tr.Track.Explicit, tr.AddedBy, tr.AddedAt, tr.VoteCount,
	)
	return mapPGErr(err)
}

func (t *pgTx) DeleteTrack(eventID, trackID string) error {
	res, err := t.tx.Exec(t.ctx, `DELETE FROM event_tracks WHERE event_id = $1 AND track_id = $2`, eventID, trackID)
	if err != nil {
		return mapPGErr(err)
	}
	if res.RowsAffected() == 0 {
		return errNotFound("track")
	}
	return nil
}

func (t *pgTx) IncrementVotes(eventID, trackID string, delta int) error {
	res, err := t.tx.Exec(t.ctx, `
		UPDATE event_tracks
		SET vote_count = GREATEST(vote_count + $3, 0)
		WHERE event_id = $1 AND track_id = $2
	`, eventID, trackID, delta)
	if err != nil {
		return mapPGErr(err)
	}
	if res.RowsAffected() == 0 {
		return errNotFound("track")
	}
	return nil
}

func (t *pgTx) GetVoteRecord(eventID, userID string) (*VoteRecord, error) {
	return voteRecordQuery(t.ctx, t.tx, eventID, userID)
}

func (t *pgTx) SetVote(eventID, userID, trackID string) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO event_votes (event_id, user_id, track_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_id, user_id, track_id) DO NOTHING
	`, eventID, userID, trackID)
	return mapPGErr(err)
}

func (t *pgTx) ClearVote(eventID, userID, trackID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM event_votes WHERE event_id = $1 AND user_id = $2 AND track_id = $3
	`, eventID, userID, trackID)
	return mapPGErr(err)
}

func (t *pgTx) ClearTrackVotes(eventID, trackID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM event_votes WHERE event_id = $1 AND track_id = $2
	`, eventID, trackID)
	return mapPGErr(err)
}

func (t *pgTx) GetInvitation(eventID, inviteID string) (*Invitation, error) {
	var inv Invitation
	err := t.tx.QueryRow(t.ctx, `
		SELECT `+inviteColumns+` FROM event_invitations WHERE event_id = $1 AND id = $2
	`, eventID, inviteID).Scan(&inv.ID, &inv.EventID, &inv.UserID, &inv.InvitedBy, &inv.InvitedAt, &inv.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("invitation")
	}
	if err != nil {
		return nil, mapPGErr(err)
	}
	return &inv, nil
}

func (t *pgTx) ListInvitations(eventID string) ([]Invitation, error) {
	return listInvitationsQuery(t.ctx, t.tx, eventID)
}

func (t *pgTx) SetInvitation(inv *Invitation) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO event_invitations (id, event_id, user_id, invited_by, invited_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status
	`, inv.ID, inv.EventID, inv.UserID, inv.InvitedBy, inv.InvitedAt, inv.Status)
	return mapPGErr(err)
}

func (t *pgTx) DeleteInvitation(eventID, inviteID string) error {
	res, err := t.tx.Exec(t.ctx, `DELETE FROM event_invitations WHERE event_id = $1 AND id = $2`, eventID, inviteID)
	if err != nil {
		return mapPGErr(err)
	}
	if res.RowsAffected() == 0 {
		return errNotFound("invitation")
	}
	return nil
}
