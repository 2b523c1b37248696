package event

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// requireSession writes the 400 itself and returns "" when the host
// session header is missing.
func requireSession(w http.ResponseWriter, r *http.Request) string {
	sid := sessionID(r)
	if sid == "" {
		writeError(w, http.StatusBadRequest, "invalid", "missing X-Session-Id header")
	}
	return sid
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Playback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAcquireHost(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	sid := requireSession(w, r)
	if sid == "" {
		return
	}
	if err := s.svc.AcquireHost(r.Context(), chi.URLParam(r, "id"), uid, sid); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "host", "sessionId": sid})
}

func (s *Server) handleReleaseHost(w http.ResponseWriter, r *http.Request) {
	sid := requireSession(w, r)
	if sid == "" {
		return
	}
	if err := s.svc.ReleaseHost(r.Context(), chi.URLParam(r, "id"), sid); err != nil {
		writeServiceError(w, err)
		return
	}
	s.dropCoordinator(sid)
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	sid := requireSession(w, r)
	if sid == "" {
		return
	}
	state, err := s.svc.StartPlayback(r.Context(), chi.URLParam(r, "id"), uid, sid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleSetPlaying(w, r, false)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleSetPlaying(w, r, true)
}

func (s *Server) handleSetPlaying(w http.ResponseWriter, r *http.Request, playing bool) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	sid := requireSession(w, r)
	if sid == "" {
		return
	}
	state, err := s.svc.SetPlaying(r.Context(), chi.URLParam(r, "id"), uid, sid, playing)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	sid := requireSession(w, r)
	if sid == "" {
		return
	}
	state, err := s.svc.Skip(r.Context(), chi.URLParam(r, "id"), uid, sid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleTrackFinished(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	sid := requireSession(w, r)
	if sid == "" {
		return
	}

	var body struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid JSON body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "invalid", "trackId is required")
		return
	}

	state, err := s.coordinator(sid).TrackFinished(r.Context(), chi.URLParam(r, "id"), uid, body.TrackID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
