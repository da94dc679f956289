package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/z-wentao/tubenotes/pkg/models"
)

var (
	ErrMissingAPIKey = errors.New("youtube api key not configured")
	ErrVideoNotFound = errors.New("video not found")
	ErrQuotaExceeded = errors.New("youtube api quota exceeded")
)

// CaptionTrack is a caption track listed by the Data API.
type CaptionTrack struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Name     string `json:"name"`
	Kind     string `json:"kind"` // standard, asr, forced
}

// DataClient wraps the YouTube Data API v3. The api key is sent per call
// so the underlying service never looks for Google credentials.
type DataClient struct {
	apiKey string
	svc    *ytapi.Service
}

// NewDataClient builds a Data API client. endpoint may be empty to use the
// public API.
func NewDataClient(apiKey string, httpClient *http.Client, endpoint string) (*DataClient, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := ytapi.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &DataClient{apiKey: apiKey, svc: svc}, nil
}

// Configured reports whether an api key is present.
func (c *DataClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Metadata fetches snippet, statistics and content details for one video.
func (c *DataClient) Metadata(ctx context.Context, videoID string) (*models.VideoMetadata, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	resp, err := c.svc.Videos.
		List([]string{"snippet", "statistics", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("videos.list %s: %w", videoID, classify(err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	v := resp.Items[0]
	meta := &models.VideoMetadata{VideoID: videoID}
	if v.Snippet != nil {
		meta.Title = v.Snippet.Title
		meta.ChannelTitle = v.Snippet.ChannelTitle
		meta.Description = v.Snippet.Description
		meta.PublishedAt = v.Snippet.PublishedAt
		meta.Tags = v.Snippet.Tags
	}
	if v.Statistics != nil {
		meta.ViewCount = v.Statistics.ViewCount
		meta.LikeCount = v.Statistics.LikeCount
	}
	if v.ContentDetails != nil {
		meta.Duration = v.ContentDetails.Duration
	}
	return meta, nil
}

// CaptionTracks lists the English caption tracks of a video. It only
// proves captions exist; the Data API does not hand out caption bodies to
// api-key callers.
func (c *DataClient) CaptionTracks(ctx context.Context, videoID string) ([]CaptionTrack, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	resp, err := c.svc.Captions.
		List([]string{"snippet"}, videoID).
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("captions.list %s: %w", videoID, classify(err))
	}

	tracks := make([]CaptionTrack, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || !isEnglish(item.Snippet.Language) {
			continue
		}
		tracks = append(tracks, CaptionTrack{
			ID:       item.Id,
			Language: item.Snippet.Language,
			Name:     item.Snippet.Name,
			Kind:     strings.ToLower(item.Snippet.TrackKind),
		})
	}
	return tracks, nil
}

func isEnglish(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "en")
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			for _, item := range apiErr.Errors {
				if strings.Contains(item.Reason, "quota") {
					return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
				}
			}
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrVideoNotFound, apiErr.Message)
		}
	}
	return err
}
