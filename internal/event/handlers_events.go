package event

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.ListEvents(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}

	var body struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Visibility  string     `json:"visibility"`
		VoteLicense string     `json:"voteLicense"`
		StartAt     *time.Time `json:"startAt"`
		EndAt       *time.Time `json:"endAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid JSON body")
		return
	}

	p := CreateEventParams{
		Name:        body.Name,
		Description: body.Description,
		StartAt:     body.StartAt,
		EndAt:       body.EndAt,
	}
	if body.Visibility != "" {
		v, ok := ParseVisibility(body.Visibility)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid", "visibility must be \"public\" or \"private\"")
			return
		}
		p.Visibility = v
	}
	if body.VoteLicense != "" {
		l, ok := ParseLicense(body.VoteLicense)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid", "voteLicense must be \"everyone\", \"invited\" or \"geofence\"")
			return
		}
		p.License = l
	}

	ev, err := s.svc.CreateEvent(r.Context(), uid, p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetView(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}

	var body struct {
		Name        *string    `json:"name"`
		Description *string    `json:"description"`
		Visibility  *string    `json:"visibility"`
		VoteLicense *string    `json:"voteLicense"`
		StartAt     *time.Time `json:"startAt"`
		EndAt       *time.Time `json:"endAt"`
		EditorIDs   *[]string  `json:"editorIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid JSON body")
		return
	}

	p := UpdateEventParams{
		Name:        body.Name,
		Description: body.Description,
		StartAt:     body.StartAt,
		EndAt:       body.EndAt,
		EditorIDs:   body.EditorIDs,
	}
	if body.Visibility != nil {
		v, ok := ParseVisibility(*body.Visibility)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid", "visibility must be \"public\" or \"private\"")
			return
		}
		p.Visibility = &v
	}
	if body.VoteLicense != nil {
		l, ok := ParseLicense(*body.VoteLicense)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid", "voteLicense must be \"everyone\", \"invited\" or \"geofence\"")
			return
		}
		p.License = &l
	}

	ev, err := s.svc.UpdateEvent(r.Context(), chi.URLParam(r, "id"), uid, p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	uid := requireUser(w, r)
	if uid == "" {
		return
	}
	if err := s.svc.DeleteEvent(r.Context(), chi.URLParam(r, "id"), uid); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
