package event

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store with the same transactional semantics as
// the Postgres implementation: each transaction runs against a private copy
// of the state and commits atomically, so a failing transaction leaves
// nothing applied. Used by the tests and as a dependency-free backend.
type MemStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	events  map[string]*Event
	tracks  map[string]map[string]*TrackEntry     // eventID -> trackID
	votes   map[string]map[string]map[string]bool // eventID -> userID -> trackID
	invites map[string]map[string]*Invitation     // eventID -> inviteID
}

func NewMemStore() *MemStore {
	return &MemStore{state: &memState{
		events:  map[string]*Event{},
		tracks:  map[string]map[string]*TrackEntry{},
		votes:   map[string]map[string]map[string]bool{},
		invites: map[string]map[string]*Invitation{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		events:  make(map[string]*Event, len(s.events)),
		tracks:  make(map[string]map[string]*TrackEntry, len(s.tracks)),
		votes:   make(map[string]map[string]map[string]bool, len(s.votes)),
		invites: make(map[string]map[string]*Invitation, len(s.invites)),
	}
	for id, ev := range s.events {
		c.events[id] = copyEvent(ev)
	}
	for eid, m := range s.tracks {
		cm := make(map[string]*TrackEntry, len(m))
		for tid, t := range m {
			ct := *t
			cm[tid] = &ct
		}
		c.tracks[eid] = cm
	}
	for eid, users := range s.votes {
		cu := make(map[string]map[string]bool, len(users))
		for uid, flags := range users {
			cf := make(map[string]bool, len(flags))
			for tid, v := range flags {
				cf[tid] = v
			}
			cu[uid] = cf
		}
		c.votes[eid] = cu
	}
	for eid, m := range s.invites {
		cm := make(map[string]*Invitation, len(m))
		for iid, inv := range m {
			ci := *inv
			cm[iid] = &ci
		}
		c.invites[eid] = cm
	}
	return c
}

func copyEvent(ev *Event) *Event {
	c := *ev
	c.ParticipantIDs = append([]string(nil), ev.ParticipantIDs...)
	c.EditorIDs = append([]string(nil), ev.EditorIDs...)
	if ev.CurrentTrack != nil {
		tr := *ev.CurrentTrack
		c.CurrentTrack = &tr
	}
	return &c
}

// RunTransaction serializes writers behind a single mutex, which makes
// every transaction trivially conflict-free: no retries are ever needed.
func (s *MemStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindUnavailable, Msg: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.state.events[id]
	if !ok {
		return nil, errNotFound("event")
	}
	return copyEvent(ev), nil
}

func (s *MemStore) ListEvents(ctx context.Context, userID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.state.events))
	for _, ev := range s.state.events {
		if ev.Visibility == VisibilityPublic || ev.IsParticipant(userID) || ev.IsManager(userID) {
			out = append(out, *copyEvent(ev))
		}
	}
	return out, nil
}

func (s *MemStore) ListPlaying(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range s.state.events {
		if ev.IsPlaying && ev.CurrentTrack != nil {
			out = append(out, *copyEvent(ev))
		}
	}
	return out, nil
}

func (s *MemStore) ListTracks(ctx context.Context, eventID string) ([]TrackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: s.state}).ListTracks(eventID)
}

func (s *MemStore) GetVoteRecord(ctx context.Context, eventID, userID string) (*VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: s.state}).GetVoteRecord(eventID, userID)
}

func (s *MemStore) ListInvitations(ctx context.Context, eventID string) ([]Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{state: s.state}).ListInvitations(eventID)
}

type memTx struct {
	state *memState
}

func (t *memTx) GetEvent(id string) (*Event, error) {
	ev, ok := t.state.events[id]
	if !ok {
		return nil, errNotFound("event")
	}
	return copyEvent(ev), nil
}

func (t *memTx) SetEvent(ev *Event) error {
	t.state.events[ev.ID] = copyEvent(ev)
	return nil
}

func (t *memTx) DeleteEvent(id string) error {
	delete(t.state.events, id)
	delete(t.state.tracks, id)
	delete(t.state.votes, id)
	delete(t.state.invites, id)
	return nil
}

func (t *memTx) GetTrack(eventID, trackID string) (*TrackEntry, error) {
	tr, ok := t.state.tracks[eventID][trackID]
	if !ok {
		return nil, errNotFound("track")
	}
	c := *tr
	return &c, nil
}

func (t *memTx) ListTracks(eventID string) ([]TrackEntry, error) {
	m := t.state.tracks[eventID]
	out := make([]TrackEntry, 0, len(m))
	for _, tr := range m {
		out = append(out, *tr)
	}
	return out, nil
}

func (t *memTx) SetTrack(tr *TrackEntry) error {
	m, ok := t.state.tracks[tr.EventID]
	if !ok {
		m = map[string]*TrackEntry{}
		t.state.tracks[tr.EventID] = m
	}
	c := *tr
	m[tr.Track.TrackID] = &c
	return nil
}

func (t *memTx) DeleteTrack(eventID, trackID string) error {
	delete(t.state.tracks[eventID], trackID)
	return nil
}

func (t *memTx) IncrementVotes(eventID, trackID string, delta int) error {
	tr, ok := t.state.tracks[eventID][trackID]
	if !ok {
		return errNotFound("track")
	}
	tr.VoteCount += delta
	if tr.VoteCount < 0 {
		tr.VoteCount = 0
	}
	return nil
}

func (t *memTx) GetVoteRecord(eventID, userID string) (*VoteRecord, error) {
	rec := &VoteRecord{EventID: eventID, UserID: userID, TrackVotes: map[string]bool{}}
	for tid, v := range t.state.votes[eventID][userID] {
		if v {
			rec.TrackVotes[tid] = true
		}
	}
	return rec, nil
}

func (t *memTx) SetVote(eventID, userID, trackID string) error {
	users, ok := t.state.votes[eventID]
	if !ok {
		users = map[string]map[string]bool{}
		t.state.votes[eventID] = users
	}
	flags, ok := users[userID]
	if !ok {
		flags = map[string]bool{}
		users[userID] = flags
	}
	flags[trackID] = true
	return nil
}

func (t *memTx) ClearVote(eventID, userID, trackID string) error {
	delete(t.state.votes[eventID][userID], trackID)
	return nil
}

func (t *memTx) ClearTrackVotes(eventID, trackID string) error {
	for _, flags := range t.state.votes[eventID] {
		delete(flags, trackID)
	}
	return nil
}

func (t *memTx) GetInvitation(eventID, inviteID string) (*Invitation, error) {
	inv, ok := t.state.invites[eventID][inviteID]
	if !ok {
		return nil, errNotFound("invitation")
	}
	c := *inv
	return &c, nil
}

func (t *memTx) ListInvitations(eventID string) ([]Invitation, error) {
	m := t.state.invites[eventID]
	out := make([]Invitation, 0, len(m))
	for _, inv := range m {
		out = append(out, *inv)
	}
	return out, nil
}

func (t *memTx) SetInvitation(inv *Invitation) error {
	m, ok := t.state.invites[inv.EventID]
	if !ok {
		m = map[string]*Invitation{}
		t.state.invites[inv.EventID] = m
	}
	c := *inv
	m[inv.ID] = &c
	return nil
}

func (t *memTx) DeleteInvitation(eventID, inviteID string) error {
	delete(t.state.invites[eventID], inviteID)
	return nil
}
