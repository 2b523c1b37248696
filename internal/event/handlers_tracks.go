package event

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.svc.Queue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}

	var body struct {
		TrackID         string `json:"trackId"`
		Title           string `json:"title"`
		Artist          string `json:"artist"`
		DurationSeconds int    `json:"durationSeconds"`
		AlbumCover      string `json:"albumCover"`
		PreviewURL      string `json:"previewUrl"`
		Explicit        bool   `json:"explicit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid JSON body")
		return
	}

	body.TrackID = strings.TrimSpace(body.TrackID)
	body.Title = strings.TrimSpace(body.Title)
	body.Artist = strings.TrimSpace(body.Artist)
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "invalid", "trackId is required")
		return
	}
	if len(body.Title) > 300 {
		writeError(w, http.StatusBadRequest, "invalid", "title must be at most 300 characters")
		return
	}
	if len(body.Artist) > 200 {
		writeError(w, http.StatusBadRequest, "invalid", "artist is too long")
		return
	}

	entry, created, err := s.svc.AddTrack(r.Context(), chi.URLParam(r, "id"), TrackRef{
		TrackID:         body.TrackID,
		Title:           body.Title,
		Artist:          body.Artist,
		DurationSeconds: body.DurationSeconds,
		AlbumCover:      body.AlbumCover,
		PreviewURL:      body.PreviewURL,
		Explicit:        body.Explicit,
	}, uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"track": entry, "created": created})
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	err := s.svc.RemoveTrack(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "trackId"), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
