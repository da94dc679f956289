package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// pathPrefixes lists youtube.com paths whose next segment is the video id.
var pathPrefixes = []string{"/embed/", "/shorts/", "/v/", "/live/"}

// ExtractVideoID pulls the 11 character video id out of any of the common
// YouTube URL shapes. A bare id is accepted as well. ok is false when no id
// can be found.
func ExtractVideoID(raw string) (id string, ok bool) {
	raw = strings.TrimSpace(raw)
	if videoIDRE.MatchString(raw) {
		return raw, true
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtu.be":
		return validID(firstSegment(u.Path))
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			return validID(v)
		}
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				return validID(firstSegment(strings.TrimPrefix(u.Path, prefix)))
			}
		}
	}
	return "", false
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

func validID(s string) (string, bool) {
	if videoIDRE.MatchString(s) {
		return s, true
	}
	return "", false
}

// ShortURL is the canonical share link for a video id.
func ShortURL(videoID string) string {
	return "https://youtu.be/" + videoID
}

// WatchURL is the canonical watch page for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
