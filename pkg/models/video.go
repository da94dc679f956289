package models

// VideoMetadata is what the Data API tells us about a video.
type VideoMetadata struct {
	VideoID      string   `json:"video_id"`
	Title        string   `json:"title"`
	ChannelTitle string   `json:"channel_title"`
	Description  string   `json:"description"`
	PublishedAt  string   `json:"published_at"`
	ViewCount    uint64   `json:"view_count"`
	LikeCount    uint64   `json:"like_count"`
	Duration     string   `json:"duration"`
	Tags         []string `json:"tags,omitempty"`
}

// Segment is one timed caption cue. Start and Duration are seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}
