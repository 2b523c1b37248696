package event

import "context"

// Tx is the read-then-conditional-write surface available inside a single
// atomic transaction. Reads observe the transaction's snapshot; writes are
// all-or-nothing. Vote flags are addressed individually so backends can
// merge into the per-user record without rewriting the whole map.
type Tx interface {
	GetEvent(id string) (*Event, error)
	SetEvent(ev *Event) error
	DeleteEvent(id string) error

	GetTrack(eventID, trackID string) (*TrackEntry, error)
	ListTracks(eventID string) ([]TrackEntry, error)
	SetTrack(t *TrackEntry) error
	DeleteTrack(eventID, trackID string) error
	// IncrementVotes atomically adjusts a track's counter. The result is
	// floored at zero; the ledger invariant should never reach the floor.
	IncrementVotes(eventID, trackID string, delta int) error

	// GetVoteRecord returns the user's record, empty (never nil) if the
	// user has not voted on this event yet.
	GetVoteRecord(eventID, userID string) (*VoteRecord, error)
	SetVote(eventID, userID, trackID string) error
	ClearVote(eventID, userID, trackID string) error
	// ClearTrackVotes removes the track from every user's record, used
	// when a manager deletes a ledger entry.
	ClearTrackVotes(eventID, trackID string) error

	GetInvitation(eventID, inviteID string) (*Invitation, error)
	ListInvitations(eventID string) ([]Invitation, error)
	SetInvitation(inv *Invitation) error
	DeleteInvitation(eventID, inviteID string) error
}

// Store is the transactional document store the core coordinates through.
// RunTransaction owns the optimistic retry policy: a bounded number of
// automatic retries on write conflicts, then a Conflict error. The
// non-transactional reads serve snapshots and never block writers.
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	GetEvent(ctx context.Context, id string) (*Event, error)
	// ListEvents returns public events plus private events the user
	// belongs to (as participant, editor or creator).
	ListEvents(ctx context.Context, userID string) ([]Event, error)
	// ListPlaying returns events with an active current track; the
	// auto-advance ticker scans these for overruns.
	ListPlaying(ctx context.Context) ([]Event, error)
	ListTracks(ctx context.Context, eventID string) ([]TrackEntry, error)
	GetVoteRecord(ctx context.Context, eventID, userID string) (*VoteRecord, error)
	ListInvitations(ctx context.Context, eventID string) ([]Invitation, error)
}
