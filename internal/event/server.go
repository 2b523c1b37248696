package event

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Server exposes the ledger and coordinator over HTTP. The identity
// provider in front of this service is trusted: X-User-Id carries the
// authenticated user, X-Session-Id the host client's session.
type Server struct {
	svc *Service

	mu     sync.Mutex
	coords map[string]*Coordinator // host sessionID -> coordinator
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc, coords: map[string]*Coordinator{}}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Get("/events", s.handleListEvents)
	r.Post("/events", s.handleCreateEvent)
	r.Get("/events/{id}", s.handleGetEvent)
	r.Patch("/events/{id}", s.handlePatchEvent)
	r.Delete("/events/{id}", s.handleDeleteEvent)

	r.Get("/events/{id}/queue", s.handleGetQueue)
	r.Post("/events/{id}/tracks", s.handleAddTrack)
	r.Delete("/events/{id}/tracks/{trackId}", s.handleRemoveTrack)
	r.Post("/events/{id}/tracks/{trackId}/vote", s.handleVote)
	r.Delete("/events/{id}/tracks/{trackId}/vote", s.handleUnvote)

	r.Get("/events/{id}/invitations", s.handleListInvitations)
	r.Post("/events/{id}/invitations", s.handleCreateInvitation)
	r.Post("/events/{id}/invitations/{inviteId}/respond", s.handleRespondInvitation)
	r.Delete("/events/{id}/invitations/{inviteId}", s.handleRevokeInvitation)

	r.Get("/events/{id}/playback", s.handleGetPlayback)
	r.Post("/events/{id}/host", s.handleAcquireHost)
	r.Delete("/events/{id}/host", s.handleReleaseHost)
	r.Post("/events/{id}/playback/start", s.handleStartPlayback)
	r.Post("/events/{id}/playback/pause", s.handlePause)
	r.Post("/events/{id}/playback/resume", s.handleResume)
	r.Post("/events/{id}/playback/skip", s.handleSkip)
	r.Post("/events/{id}/playback/finished", s.handleTrackFinished)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "deezeroom",
	})
}

// coordinator returns the per-session coordinator, creating it on first
// use, so each host session gets its own double-advance guard.
func (s *Server) coordinator(sessionID string) *Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coords[sessionID]
	if !ok {
		c = NewCoordinator(s.svc, sessionID)
		s.coords[sessionID] = c
	}
	return c
}

// dropCoordinator forgets a session's coordinator once the session gives up
// hosting, so the map does not accumulate an entry per session ever seen.
func (s *Server) dropCoordinator(sessionID string) {
	s.mu.Lock()
	delete(s.coords, sessionID)
	s.mu.Unlock()
}

func userID(r *http.Request) string    { return r.Header.Get("X-User-Id") }
func sessionID(r *http.Request) string { return r.Header.Get("X-Session-Id") }

// requireUser writes the 401 itself and returns "" when the identity
// header is missing.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing user context")
	}
	return uid
}
