package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDataServer(t *testing.T, handler http.HandlerFunc) *DataClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewDataClient("test-key", srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	return c
}

func TestMetadata(t *testing.T) {
	c := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "abcdefghijk", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"abcdefghijk",
			"snippet":{"title":"Go Concurrency","channelTitle":"Gopher TV","description":"All about channels","publishedAt":"2024-01-02T03:04:05Z","tags":["go"]},
			"statistics":{"viewCount":"12345","likeCount":"678"},
			"contentDetails":{"duration":"PT4M13S"}}]}`))
	})

	meta, err := c.Metadata(context.Background(), "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, "Go Concurrency", meta.Title)
	assert.Equal(t, "Gopher TV", meta.ChannelTitle)
	assert.Equal(t, "All about channels", meta.Description)
	assert.Equal(t, "2024-01-02T03:04:05Z", meta.PublishedAt)
	assert.Equal(t, uint64(12345), meta.ViewCount)
	assert.Equal(t, uint64(678), meta.LikeCount)
	assert.Equal(t, "PT4M13S", meta.Duration)
	assert.Equal(t, []string{"go"}, meta.Tags)
}

func TestMetadataNotFound(t *testing.T) {
	c := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	})

	_, err := c.Metadata(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestMetadataQuotaExceeded(t *testing.T) {
	c := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","message":"quota"}]}}`))
	})

	_, err := c.Metadata(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestMissingKey(t *testing.T) {
	c, err := NewDataClient("", nil, "")
	require.NoError(t, err)
	assert.False(t, c.Configured())

	_, err = c.Metadata(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = c.CaptionTracks(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCaptionTracksFiltersEnglish(t *testing.T) {
	c := newDataServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/captions", r.URL.Path)
		assert.Equal(t, "abcdefghijk", r.URL.Query().Get("videoId"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"c1","snippet":{"language":"en","trackKind":"standard","name":""}},
			{"id":"c2","snippet":{"language":"de","trackKind":"standard"}},
			{"id":"c3","snippet":{"language":"en-GB","trackKind":"ASR"}}]}`))
	})

	tracks, err := c.CaptionTracks(context.Background(), "abcdefghijk")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "en", tracks[0].Language)
	assert.Equal(t, "en-GB", tracks[1].Language)
	assert.Equal(t, "asr", tracks[1].Kind)
}
