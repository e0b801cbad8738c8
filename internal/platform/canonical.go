// Package platform turns raw social links into a stable canonical form.
package platform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/timmy/trackr/internal/domain"
)

// Link is the normalized identity of a social post URL.
type Link struct {
	Platform     domain.Platform
	CanonicalURL string
	ExternalID   string
}

// Key returns the per-campaign dedup key of the link.
func (l Link) Key() string {
	return domain.PostKey(l.Platform, l.CanonicalURL)
}

var (
	tiktokVideo   = regexp.MustCompile(`^/(@[^/]+)/(?:video|photo)/(\d+)`)
	tiktokShort   = regexp.MustCompile(`^/(?:t/)?([A-Za-z0-9]+)$`)
	instagramPost = regexp.MustCompile(`^/(?:[^/]+/)?(p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	youtubeShorts = regexp.MustCompile(`^/(?:shorts|live|embed)/([A-Za-z0-9_-]{6,})`)
	youtuBe       = regexp.MustCompile(`^/([A-Za-z0-9_-]{6,})`)
	tweetStatus   = regexp.MustCompile(`^/([^/]+)/status(?:es)?/(\d+)`)
	facebookVideo = regexp.MustCompile(`^/([^/]+)/(?:videos|posts)/(?:[^/]+/)?(\d+)`)
)

var trackingParams = []string{"utm_", "igshid", "igsh", "si", "feature", "is_from_webapp", "sender_device", "_r", "_t", "fbclid", "ref", "s"}

// Canonicalize derives the platform and canonical URL of a raw post link.
// A URL on an unrecognized host is kept with platform unknown; a value that
// is not an http(s) URL at all is a validation error.
func Canonicalize(raw string) (Link, error) {
	u, err := parse(raw)
	if err != nil {
		return Link{}, err
	}

	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "mobile.", "web."} {
		host = strings.TrimPrefix(host, prefix)
	}
	path := strings.TrimRight(u.EscapedPath(), "/")

	switch {
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return tiktok(host, path), nil
	case host == "instagram.com" || host == "instagr.am":
		return instagram(path), nil
	case host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com":
		if l, ok := youtube(host, path, u.Query()); ok {
			return l, nil
		}
	case host == "twitter.com" || host == "x.com":
		if m := tweetStatus.FindStringSubmatch(path); m != nil {
			return Link{
				Platform:     domain.PlatformTwitter,
				CanonicalURL: "https://x.com/" + m[1] + "/status/" + m[2],
				ExternalID:   m[2],
			}, nil
		}
		return Link{Platform: domain.PlatformTwitter, CanonicalURL: "https://x.com" + path}, nil
	case host == "facebook.com" || host == "fb.watch" || host == "fb.com":
		return facebook(host, path, u.Query()), nil
	}

	return Link{Platform: domain.PlatformUnknown, CanonicalURL: generic(host, path, u.Query())}, nil
}

func parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.NewValidationError("url", "is required")
	}
	if strings.HasPrefix(raw, domain.PlaceholderScheme) {
		return nil, domain.NewValidationError("url", "placeholder links cannot be canonicalized")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, domain.NewValidationError("url", "is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, domain.NewValidationError("url", "must use http or https")
	}
	if u.Hostname() == "" || !strings.Contains(u.Hostname(), ".") {
		return nil, domain.NewValidationError("url", "has no valid host")
	}
	return u, nil
}

func tiktok(host, path string) Link {
	if m := tiktokVideo.FindStringSubmatch(path); m != nil {
		return Link{
			Platform:     domain.PlatformTikTok,
			CanonicalURL: "https://www.tiktok.com/" + m[1] + "/video/" + m[2],
			ExternalID:   m[2],
		}
	}
	// vm./vt. short links resolve server side; keep them stable as given
	if host != "tiktok.com" {
		if m := tiktokShort.FindStringSubmatch(path); m != nil {
			return Link{Platform: domain.PlatformTikTok, CanonicalURL: "https://" + host + "/" + m[1]}
		}
	}
	return Link{Platform: domain.PlatformTikTok, CanonicalURL: "https://www.tiktok.com" + path}
}

func instagram(path string) Link {
	if m := instagramPost.FindStringSubmatch(path); m != nil {
		kind := m[1]
		if kind == "reels" {
			kind = "reel"
		}
		return Link{
			Platform:     domain.PlatformInstagram,
			CanonicalURL: "https://www.instagram.com/" + kind + "/" + m[2],
			ExternalID:   m[2],
		}
	}
	return Link{Platform: domain.PlatformInstagram, CanonicalURL: "https://www.instagram.com" + path}
}

func youtube(host, path string, q url.Values) (Link, bool) {
	var id string
	switch {
	case host == "youtu.be":
		if m := youtuBe.FindStringSubmatch(path); m != nil {
			id = m[1]
		}
	case path == "/watch":
		id = q.Get("v")
	default:
		if m := youtubeShorts.FindStringSubmatch(path); m != nil {
			id = m[1]
		}
	}
	if id == "" {
		return Link{}, false
	}
	return Link{
		Platform:     domain.PlatformYouTube,
		CanonicalURL: "https://www.youtube.com/watch?v=" + id,
		ExternalID:   id,
	}, true
}

func facebook(host, path string, q url.Values) Link {
	if host == "fb.watch" {
		return Link{Platform: domain.PlatformFacebook, CanonicalURL: "https://fb.watch" + path}
	}
	if v := q.Get("v"); path == "/watch" && v != "" {
		return Link{
			Platform:     domain.PlatformFacebook,
			CanonicalURL: "https://www.facebook.com/watch?v=" + v,
			ExternalID:   v,
		}
	}
	if m := facebookVideo.FindStringSubmatch(path); m != nil {
		return Link{
			Platform:     domain.PlatformFacebook,
			CanonicalURL: "https://www.facebook.com/" + m[1] + "/videos/" + m[2],
			ExternalID:   m[2],
		}
	}
	return Link{Platform: domain.PlatformFacebook, CanonicalURL: "https://www.facebook.com" + path}
}

func generic(host, path string, q url.Values) string {
	for key := range q {
		if isTracking(key) {
			q.Del(key)
		}
	}
	out := "https://" + host + path
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	return out
}

func isTracking(key string) bool {
	key = strings.ToLower(key)
	for _, p := range trackingParams {
		if key == p || (strings.HasSuffix(p, "_") && strings.HasPrefix(key, p)) {
			return true
		}
	}
	return false
}
