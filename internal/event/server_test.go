package event

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *MemStore) {
	t.Helper()
	store := NewMemStore()
	svc := NewService(store, NewMemChannel(), nil, nil)
	ts := httptest.NewServer(NewServer(svc).Router())
	t.Cleanup(ts.Close)
	return ts, store
}

// doReq issues a request with the trusted identity headers and decodes the
// JSON response body into a generic map.
func doReq(t *testing.T, ts *httptest.Server, method, path, uid, sid string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if uid != "" {
		req.Header.Set("X-User-Id", uid)
	}
	if sid != "" {
		req.Header.Set("X-Session-Id", sid)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	status, body := doReq(t, ts, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := doReq(t, ts, http.MethodPost, "/events", "", "",
		map[string]string{"name": "party"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", body["code"])
}

func TestEventEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "Launch party", "visibility": "public", "voteLicense": "everyone"})
	require.Equal(t, http.StatusCreated, status)
	eventID, _ := body["id"].(string)
	require.NotEmpty(t, eventID)

	status, body = doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "bad", "visibility": "sorta-public"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid", body["code"])

	status, body = doReq(t, ts, http.MethodGet, "/events/"+eventID, "guest", "", nil)
	require.Equal(t, http.StatusOK, status)
	ev, _ := body["event"].(map[string]any)
	require.NotNil(t, ev)
	assert.Equal(t, "Launch party", ev["name"])

	status, body = doReq(t, ts, http.MethodGet, "/events/nope", "guest", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])

	status, _ = doReq(t, ts, http.MethodPatch, "/events/"+eventID, "stranger", "",
		map[string]string{"name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doReq(t, ts, http.MethodDelete, "/events/"+eventID, "owner", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestTrackAndVoteEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	_, created := doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "Session"})
	eventID := created["id"].(string)

	addBody := map[string]any{"trackId": "t1", "title": "One", "artist": "A", "durationSeconds": 180}
	status, body := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks", "userA", "", addBody)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["created"])

	// Same track from another user is a vote, not an insertion.
	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks", "userB", "", addBody)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["created"])

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks/t1/vote", "userC", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["voteCount"])

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks/t1/vote", "userC", "", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_voted", body["code"])

	status, body = doReq(t, ts, http.MethodDelete, "/events/"+eventID+"/tracks/t1/vote", "userC", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["voteCount"])

	status, _ = doReq(t, ts, http.MethodDelete, "/events/"+eventID+"/tracks/t1", "userA", "", nil)
	assert.Equal(t, http.StatusForbidden, status, "non-manager cannot remove")

	status, _ = doReq(t, ts, http.MethodDelete, "/events/"+eventID+"/tracks/t1", "owner", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = doReq(t, ts, http.MethodGet, "/events/"+eventID+"/queue", "userA", "", nil)
	require.Equal(t, http.StatusOK, status)
	queue, _ := body["queue"].([]any)
	assert.Empty(t, queue)

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks", "userA", "",
		map[string]any{"title": "No id"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "trackId is required", body["error"])
}

func TestPlaybackEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	_, created := doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "Live set"})
	eventID := created["id"].(string)

	for _, tr := range []map[string]any{
		{"trackId": "t1", "title": "One", "durationSeconds": 120},
		{"trackId": "t2", "title": "Two", "durationSeconds": 90},
	} {
		status, _ := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks", "owner", "", tr)
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks/t1/vote", "fan", "", nil)
	require.Equal(t, http.StatusOK, status)

	// Host session header is mandatory on control endpoints.
	status, body := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/host", "owner", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing X-Session-Id header", body["error"])

	status, _ = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/host", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/host", "owner", "sess2", nil)
	assert.Equal(t, http.StatusConflict, status, "live lease")

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/start", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	current, _ := body["currentTrack"].(map[string]any)
	require.NotNil(t, current)
	assert.Equal(t, "t1", current["trackId"])

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/pause", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["isPlaying"])

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/resume", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isPlaying"])

	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/finished", "owner", "sess1",
		map[string]string{"trackId": "t1"})
	require.Equal(t, http.StatusOK, status)
	current, _ = body["currentTrack"].(map[string]any)
	require.NotNil(t, current)
	assert.Equal(t, "t2", current["trackId"])

	// The read endpoint needs no identity.
	status, body = doReq(t, ts, http.MethodGet, "/events/"+eventID+"/playback", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	current, _ = body["currentTrack"].(map[string]any)
	require.NotNil(t, current)
	assert.Equal(t, "t2", current["trackId"])

	// Skipping excludes only the current track; t1 is still on the
	// ledger and wins the re-rank.
	status, body = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/skip", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	current, _ = body["currentTrack"].(map[string]any)
	require.NotNil(t, current)
	assert.Equal(t, "t1", current["trackId"])

	status, _ = doReq(t, ts, http.MethodDelete, "/events/"+eventID+"/host", "owner", "sess1", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestReleaseHostEvictsCoordinator(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, NewMemChannel(), nil, nil)
	srv := NewServer(svc)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	coordCount := func() int {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.coords)
	}

	_, created := doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "Set"})
	eventID := created["id"].(string)

	status, _ := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/tracks", "owner", "",
		map[string]any{"trackId": "t1", "title": "One", "durationSeconds": 120})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/host", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/start", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = doReq(t, ts, http.MethodPost, "/events/"+eventID+"/playback/finished", "owner", "sess1",
		map[string]string{"trackId": "t1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, coordCount(), "finish instantiates the session's coordinator")

	status, _ = doReq(t, ts, http.MethodDelete, "/events/"+eventID+"/host", "owner", "sess1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, coordCount(), "release forgets the coordinator")
}

func TestInvitationEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	_, created := doReq(t, ts, http.MethodPost, "/events", "owner", "",
		map[string]string{"name": "Closed party", "visibility": "private"})
	eventID := created["id"].(string)

	status, body := doReq(t, ts, http.MethodPost, "/events/"+eventID+"/invitations", "owner", "",
		map[string]string{"userId": "guest"})
	require.Equal(t, http.StatusCreated, status)
	inviteID := body["id"].(string)

	status, _ = doReq(t, ts, http.MethodGet, "/events/"+eventID+"/invitations", "guest", "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = doReq(t, ts, http.MethodPost,
		"/events/"+eventID+"/invitations/"+inviteID+"/respond", "guest", "",
		map[string]bool{"accept": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(InviteAccepted), body["status"])

	// The accepted guest can now see the private event.
	status, _ = doReq(t, ts, http.MethodGet, "/events/"+eventID, "guest", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
