package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/timmy/trackr/internal/domain"
)

// HTMLFetcher reads public engagement counters from a post page. It
// understands schema.org interactionStatistic in JSON-LD and microdata.
type HTMLFetcher struct {
	client *resty.Client
}

// NewHTMLFetcher creates a page fetcher sending userAgent.
func NewHTMLFetcher(userAgent string, timeout time.Duration) *HTMLFetcher {
	client := resty.New()
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetHeader("Accept-Language", "en-US,en;q=0.8")
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &HTMLFetcher{client: client}
}

// Fetch downloads the page and extracts its counters.
func (f *HTMLFetcher) Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Metrics{}, fmt.Errorf("%w: %v", domain.ErrFetchTimeout, err)
		}
		return domain.Metrics{}, failure("get %s: %v", url, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return domain.Metrics{}, failure("get %s: HTTP %d", url, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return domain.Metrics{}, failure("parse %s: %v", url, err)
	}

	m, found := ParseEngagement(doc)
	if !found {
		return domain.Metrics{}, failure("no engagement data on %s page %s", platform, url)
	}
	return m, nil
}

// ParseEngagement extracts interaction counters from a parsed page.
// found is false when the page carries no recognizable counter.
func ParseEngagement(doc *goquery.Document) (domain.Metrics, bool) {
	var m domain.Metrics
	found := false

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		for _, stat := range jsonLDStatistics([]byte(sel.Text())) {
			if apply(&m, stat.kind, stat.count) {
				found = true
			}
		}
	})

	doc.Find(`[itemprop="interactionStatistic"]`).Each(func(_ int, sel *goquery.Selection) {
		kind, _ := sel.Find(`[itemprop="interactionType"]`).Attr("content")
		if kind == "" {
			kind, _ = sel.Find(`[itemprop="interactionType"]`).Attr("href")
		}
		raw, _ := sel.Find(`[itemprop="userInteractionCount"]`).Attr("content")
		count, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return
		}
		if apply(&m, kind, count) {
			found = true
		}
	})

	return m, found
}

type statistic struct {
	kind  string
	count int64
}

type ldInteraction struct {
	InteractionType      json.RawMessage `json:"interactionType"`
	UserInteractionCount json.Number     `json:"userInteractionCount"`
}

type ldNode struct {
	InteractionStatistic json.RawMessage `json:"interactionStatistic"`
	Graph                []ldNode        `json:"@graph"`
}

func jsonLDStatistics(raw []byte) []statistic {
	var nodes []ldNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		var single ldNode
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		nodes = []ldNode{single}
	}

	var out []statistic
	for len(nodes) > 0 {
		node := nodes[0]
		nodes = append(nodes[1:], node.Graph...)

		var stats []ldInteraction
		if err := json.Unmarshal(node.InteractionStatistic, &stats); err != nil {
			var one ldInteraction
			if err := json.Unmarshal(node.InteractionStatistic, &one); err != nil {
				continue
			}
			stats = []ldInteraction{one}
		}
		for _, s := range stats {
			count, err := s.UserInteractionCount.Int64()
			if err != nil {
				continue
			}
			out = append(out, statistic{kind: interactionKind(s.InteractionType), count: count})
		}
	}
	return out
}

// interactionKind accepts "LikeAction", "http://schema.org/LikeAction" or
// {"@type": "LikeAction"}.
func interactionKind(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Type
	}
	return ""
}

func apply(m *domain.Metrics, kind string, count int64) bool {
	if count < 0 {
		return false
	}
	if idx := strings.LastIndex(kind, "/"); idx != -1 {
		kind = kind[idx+1:]
	}
	switch kind {
	case "WatchAction", "ViewAction":
		m.Views = count
	case "LikeAction":
		m.Likes = count
	case "CommentAction":
		m.Comments = count
	case "ShareAction":
		m.Shares = count
	default:
		return false
	}
	return true
}
