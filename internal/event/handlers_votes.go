package event

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	entry, err := s.svc.Vote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "trackId"), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voteCount": entry.VoteCount})
}

func (s *Server) handleUnvote(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	entry, err := s.svc.Unvote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "trackId"), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voteCount": entry.VoteCount})
}
