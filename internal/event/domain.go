package event

import "time"

// Visibility controls who can discover and open an event.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// VoteLicense controls who is allowed to vote on a public event.
type VoteLicense string

const (
	LicenseEveryone VoteLicense = "everyone"
	LicenseInvited  VoteLicense = "invited"
	LicenseGeofence VoteLicense = "geofence"
)

// InviteStatus is the lifecycle of an invitation.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// Event is the root document of the track queue. Playback state is embedded;
// only the session holding the host lease writes CurrentTrack/IsPlaying.
type Event struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Visibility     Visibility  `json:"visibility"`
	License        VoteLicense `json:"voteLicense"`
	CreatedBy      string      `json:"createdBy"`
	ParticipantIDs []string    `json:"participantIds"`
	EditorIDs      []string    `json:"editorIds"`
	StartAt        *time.Time  `json:"startAt,omitempty"`
	EndAt          *time.Time  `json:"endAt,omitempty"`
	TrackCount     int         `json:"trackCount"`

	IsPlaying        bool       `json:"isPlaying"`
	CurrentTrack     *TrackRef  `json:"currentTrack,omitempty"`
	PlayingStartedAt *time.Time `json:"playingStartedAt,omitempty"`

	HostSessionID string     `json:"hostSessionId,omitempty"`
	HostSeenAt    *time.Time `json:"hostSeenAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Ended reports whether the event has terminated. EndAt is the sole source
// of truth; a nil EndAt means the event never ends on its own.
func (e *Event) Ended(now time.Time) bool {
	return e.EndAt != nil && now.After(*e.EndAt)
}

// IsParticipant reports membership in the participant set.
func (e *Event) IsParticipant(userID string) bool {
	for _, id := range e.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsManager reports owner/editor membership, ignoring the event lifecycle.
// Management deletion is allowed even on ended events, so callers that need
// the ended gate use Evaluate().CanManage instead.
func (e *Event) IsManager(userID string) bool {
	if userID == e.CreatedBy {
		return true
	}
	for _, id := range e.EditorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TrackRef is the catalog metadata cached at insertion time so the display
// stays stable even if the catalog entry changes later.
type TrackRef struct {
	TrackID         string `json:"trackId"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"durationSeconds"`
	AlbumCover      string `json:"albumCover,omitempty"`
	PreviewURL      string `json:"previewUrl,omitempty"`
	Explicit        bool   `json:"explicit"`
}

// TrackEntry is a Track Ledger row. VoteCount always equals the number of
// distinct users holding an affirmative VoteRecord entry for this track.
type TrackEntry struct {
	EventID   string    `json:"eventId"`
	Track     TrackRef  `json:"track"`
	AddedBy   string    `json:"addedBy"`
	AddedAt   time.Time `json:"addedAt"`
	VoteCount int       `json:"voteCount"`
}

// VoteRecord is a Vote Ledger row keyed by (eventID, userID).
type VoteRecord struct {
	EventID    string          `json:"eventId"`
	UserID     string          `json:"userId"`
	TrackVotes map[string]bool `json:"trackVotes"`
}

// Voted reports whether the record holds an affirmative vote for trackID.
func (v *VoteRecord) Voted(trackID string) bool {
	return v != nil && v.TrackVotes[trackID]
}

// Invitation lives under an event and notifies the invited user.
type Invitation struct {
	ID        string       `json:"id"`
	EventID   string       `json:"eventId"`
	UserID    string       `json:"userId"`
	InvitedBy string       `json:"invitedBy"`
	InvitedAt time.Time    `json:"invitedAt"`
	Status    InviteStatus `json:"status"`
}

// ParseVisibility validates a wire value.
func ParseVisibility(s string) (Visibility, bool) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPrivate:
		return Visibility(s), true
	}
	return "", false
}

// ParseLicense validates a wire value.
func ParseLicense(s string) (VoteLicense, bool) {
	switch VoteLicense(s) {
	case LicenseEveryone, LicenseInvited, LicenseGeofence:
		return VoteLicense(s), true
	}
	return "", false
}
