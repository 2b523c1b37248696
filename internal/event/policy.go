package event

import "time"

// Access is the full permission set for one user on one event. Every
// mutating operation goes through Evaluate; nothing re-implements the
// matrix ad hoc.
type Access struct {
	CanView     bool
	CanAddTrack bool
	CanVote     bool
	CanManage   bool
}

// Evaluate computes the access matrix for userID on ev at time now.
//
// Private events require participant membership for everything beyond
// discovery. The geofence license falls back to participant membership:
// location enforcement is not implemented, so an invite is the gate.
func Evaluate(ev *Event, userID string, now time.Time) Access {
	ended := ev.Ended(now)
	member := ev.IsParticipant(userID) || ev.IsManager(userID)

	var a Access

	a.CanView = ev.Visibility == VisibilityPublic || member

	a.CanManage = !ended && ev.IsManager(userID)

	if !ended {
		switch ev.Visibility {
		case VisibilityPrivate:
			a.CanAddTrack = member
		case VisibilityPublic:
			if ev.License == LicenseInvited {
				a.CanAddTrack = member
			} else {
				a.CanAddTrack = userID != ""
			}
		}

		switch {
		case ev.Visibility == VisibilityPrivate:
			a.CanVote = member
		default:
			switch ev.License {
			case LicenseEveryone:
				a.CanVote = userID != ""
			case LicenseInvited, LicenseGeofence:
				a.CanVote = member
			}
		}
	}

	return a
}
