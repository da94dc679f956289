package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/retry"
)

const (
	playerURL      = "https://www.youtube.com/youtubei/v1/player"
	watchPageURL   = "https://www.youtube.com/watch"
	androidVersion = "20.10.38"
	androidUA      = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	playerResponseMarker = "ytInitialPlayerResponse = "
)

var (
	ErrNoCaptions          = errors.New("no captions for video")
	ErrLanguageUnavailable = errors.New("no caption track in requested language")
	ErrPoTokenRequired     = errors.New("all caption tracks require a po token")
)

// CaptionClient downloads caption tracks without an api key, either
// through the innertube player endpoint or by scraping the watch page.
type CaptionClient struct {
	httpClient *http.Client
	retry      retry.Config
	playerURL  string
	watchURL   string
}

func NewCaptionClient(httpClient *http.Client) *CaptionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CaptionClient{
		httpClient: httpClient,
		retry:      retry.Default,
		playerURL:  playerURL,
		watchURL:   watchPageURL,
	}
}

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	Context        playerContext `json:"context"`
	RacyCheckOk    bool          `json:"racyCheckOk"`
	ContentCheckOk bool          `json:"contentCheckOk"`
}

type playerContext struct {
	Client playerClient `json:"client"`
}

type playerClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	Captions *struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

func (r *playerResponse) tracks() ([]captionTrack, error) {
	if r.Captions == nil {
		if r.PlayabilityStatus != nil && r.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoCaptions, r.PlayabilityStatus.Reason)
		}
		return nil, ErrNoCaptions
	}
	tracks := r.Captions.Renderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, ErrNoCaptions
	}
	return tracks, nil
}

// FetchCaptions loads captions through the innertube player endpoint.
// An empty lang takes the video's default track; otherwise a track with
// exactly that language code is required.
func (c *CaptionClient) FetchCaptions(ctx context.Context, videoID, lang string) ([]models.Segment, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{Client: playerClient{
			ClientName:        "ANDROID",
			ClientVersion:     androidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := retry.HTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.playerURL+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", androidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", androidVersion)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr("player request", resp)
	}

	var player playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	tracks, err := player.tracks()
	if err != nil {
		return nil, err
	}

	var track captionTrack
	if lang == "" {
		track, err = defaultTrack(tracks)
	} else {
		track, err = exactTrack(tracks, lang)
	}
	if err != nil {
		return nil, err
	}
	return c.fetchTimedText(ctx, track.BaseURL)
}

// ScrapeCaptions reads ytInitialPlayerResponse from the watch page and
// downloads the track closest to the lang hint.
func (c *CaptionClient) ScrapeCaptions(ctx context.Context, videoID, lang string) ([]models.Segment, error) {
	pageURL := c.watchURL + "?v=" + videoID + "&hl=en"
	resp, err := retry.HTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr("watch page", resp)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}
	idx := bytes.Index(page, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}

	// the decoder stops at the end of the first JSON value, ignoring the trailing script
	var player playerResponse
	if err := json.NewDecoder(bytes.NewReader(page[idx+len(playerResponseMarker):])).Decode(&player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	tracks, err := player.tracks()
	if err != nil {
		return nil, err
	}
	track, err := preferredTrack(tracks, lang)
	if err != nil {
		return nil, err
	}
	return c.fetchTimedText(ctx, track.BaseURL)
}

// needsPoToken reports whether a track URL only works inside a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func usable(tracks []captionTrack) ([]captionTrack, error) {
	out := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, ErrPoTokenRequired
	}
	return out, nil
}

// defaultTrack prefers the first manual track, then whatever comes first.
func defaultTrack(tracks []captionTrack) (captionTrack, error) {
	ok, err := usable(tracks)
	if err != nil {
		return captionTrack{}, err
	}
	for _, t := range ok {
		if t.Kind != "asr" {
			return t, nil
		}
	}
	return ok[0], nil
}

// exactTrack requires a track whose language code equals lang.
func exactTrack(tracks []captionTrack, lang string) (captionTrack, error) {
	ok, err := usable(tracks)
	if err != nil {
		return captionTrack{}, err
	}
	var asr *captionTrack
	for i, t := range ok {
		if !strings.EqualFold(t.LanguageCode, lang) {
			continue
		}
		if t.Kind != "asr" {
			return t, nil
		}
		if asr == nil {
			asr = &ok[i]
		}
	}
	if asr != nil {
		return *asr, nil
	}
	return captionTrack{}, fmt.Errorf("%w: %s", ErrLanguageUnavailable, lang)
}

// preferredTrack treats lang as a hint: exact match, then same base
// language, then the default track.
func preferredTrack(tracks []captionTrack, lang string) (captionTrack, error) {
	if lang != "" {
		if t, err := exactTrack(tracks, lang); err == nil {
			return t, nil
		}
		ok, err := usable(tracks)
		if err != nil {
			return captionTrack{}, err
		}
		base := strings.ToLower(strings.SplitN(lang, "-", 2)[0])
		for _, t := range ok {
			if strings.HasPrefix(strings.ToLower(t.LanguageCode), base) {
				return t, nil
			}
		}
	}
	return defaultTrack(tracks)
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

func (c *CaptionClient) fetchTimedText(ctx context.Context, baseURL string) ([]models.Segment, error) {
	resp, err := retry.HTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserUA)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr("fetch timedtext", resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]models.Segment, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty timedtext response")
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext: %w", err)
	}

	segments := make([]models.Segment, 0, len(tt.Texts))
	for _, line := range tt.Texts {
		// bodies are entity-escaped twice (&amp;#39;)
		text := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		segments = append(segments, models.Segment{Text: text, Start: start, Duration: dur})
	}
	return segments, nil
}

func statusErr(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, bytes.TrimSpace(snippet))
}
