// Package catalog is the read-only client for the track metadata provider.
// The core caches whatever this returns at insertion time; it never writes
// back.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jesuisstan/deezeroom/internal/event"
)

const DefaultBaseURL = "https://api.deezer.com"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type dzTrack struct {
	ID             json.Number `json:"id"`
	Title          string      `json:"title"`
	Duration       int         `json:"duration"`
	Preview        string      `json:"preview"`
	ExplicitLyrics bool        `json:"explicit_lyrics"`
	Artist         struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		CoverMedium string `json:"cover_medium"`
	} `json:"album"`
	Error *struct {
		Code int `json:"code"`
	} `json:"error"`
}

func (t *dzTrack) toRef() *event.TrackRef {
	return &event.TrackRef{
		TrackID:         t.ID.String(),
		Title:           t.Title,
		Artist:          t.Artist.Name,
		DurationSeconds: t.Duration,
		AlbumCover:      t.Album.CoverMedium,
		PreviewURL:      t.Preview,
		Explicit:        t.ExplicitLyrics,
	}
}

// Track resolves one track by catalog id.
func (c *Client) Track(ctx context.Context, trackID string) (*event.TrackRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/track/"+url.PathEscape(trackID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: "catalog: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &event.Error{Kind: event.KindNotFound, Msg: "track not found in catalog"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: fmt.Sprintf("catalog status %d", resp.StatusCode)}
	}

	var t dzTrack
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: "catalog: " + err.Error()}
	}
	// Deezer reports lookup failures as 200 with an error object.
	if t.Error != nil {
		return nil, &event.Error{Kind: event.KindNotFound, Msg: "track not found in catalog"}
	}
	if t.Title == "" {
		return nil, &event.Error{Kind: event.KindNotFound, Msg: "track not found in catalog"}
	}
	return t.toRef(), nil
}

// Search queries the catalog. Used by clients to pick tracks before adding
// them to an event queue.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]event.TrackRef, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	val := url.Values{}
	val.Set("q", query)
	val.Set("limit", fmt.Sprint(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+val.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: "catalog: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: fmt.Sprintf("catalog status %d", resp.StatusCode)}
	}

	var out struct {
		Data []dzTrack `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &event.Error{Kind: event.KindUnavailable, Msg: "catalog: " + err.Error()}
	}

	refs := make([]event.TrackRef, 0, len(out.Data))
	for i := range out.Data {
		refs = append(refs, *out.Data[i].toRef())
	}
	return refs, nil
}
