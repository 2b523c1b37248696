package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesuisstan/deezeroom/internal/event"
)

func newFakeDeezer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/track/3135556", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 3135556,
			"title": "Harder, Better, Faster, Stronger",
			"duration": 224,
			"preview": "https://cdn.example/preview.mp3",
			"explicit_lyrics": false,
			"artist": {"name": "Daft Punk"},
			"album": {"cover_medium": "https://cdn.example/cover.jpg"}
		}`))
	})
	mux.HandleFunc("/track/0", func(w http.ResponseWriter, r *http.Request) {
		// Deezer answers 200 with an error object for unknown ids.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": {"type": "DataException", "code": 800}}`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "daft punk", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [
			{"id": 3135556, "title": "One", "duration": 200, "artist": {"name": "Daft Punk"}},
			{"id": 3135557, "title": "Two", "duration": 180, "artist": {"name": "Daft Punk"}}
		]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestTrackLookup(t *testing.T) {
	ctx := context.Background()
	ts := newFakeDeezer(t)
	c := NewClient(ts.URL)

	ref, err := c.Track(ctx, "3135556")
	require.NoError(t, err)
	assert.Equal(t, "3135556", ref.TrackID)
	assert.Equal(t, "Harder, Better, Faster, Stronger", ref.Title)
	assert.Equal(t, "Daft Punk", ref.Artist)
	assert.Equal(t, 224, ref.DurationSeconds)
	assert.Equal(t, "https://cdn.example/cover.jpg", ref.AlbumCover)
}

func TestTrackLookupErrorObject(t *testing.T) {
	ctx := context.Background()
	ts := newFakeDeezer(t)
	c := NewClient(ts.URL)

	_, err := c.Track(ctx, "0")
	assert.Equal(t, event.KindNotFound, event.KindOf(err))
}

func TestTrackLookupUnreachable(t *testing.T) {
	ctx := context.Background()
	ts := newFakeDeezer(t)
	ts.Close()
	c := NewClient(ts.URL)

	_, err := c.Track(ctx, "3135556")
	assert.Equal(t, event.KindUnavailable, event.KindOf(err))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	ts := newFakeDeezer(t)
	c := NewClient(ts.URL)

	refs, err := c.Search(ctx, "daft punk", 10)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "One", refs[0].Title)
	assert.Equal(t, "3135557", refs[1].TrackID)
}
