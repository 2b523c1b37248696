package event

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeServiceError is the single place error kinds become HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		log.Printf("deezeroom: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	var status int
	switch e.Kind {
	case KindInvalid:
		status = http.StatusBadRequest
	case KindNotFound:
		status = http.StatusNotFound
	case KindForbidden:
		status = http.StatusForbidden
	case KindEventEnded, KindAlreadyVoted, KindNotVoted, KindConflict:
		status = http.StatusConflict
	case KindUnavailable:
		status = http.StatusServiceUnavailable
	default:
		log.Printf("deezeroom: unclassified error: %v", err)
		status = http.StatusInternalServerError
	}
	writeError(w, status, e.Kind.String(), e.Msg)
}
