package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

// RSSSource implements ports.FeedSource with gofeed.
type RSSSource struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ ports.FeedSource = (*RSSSource)(nil)

// NewRSSSource builds a feed reader. A nil client gets a 20s timeout.
func NewRSSSource(client *http.Client, userAgent string, logger *slog.Logger) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := gofeed.NewParser()
	p.Client = client
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	return &RSSSource{parser: p, logger: logger}
}

// Fetch downloads and parses one feed.
func (s *RSSSource) Fetch(ctx context.Context, feedURL string) (domain.Feed, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	out := domain.Feed{
		Title:   strings.TrimSpace(feed.Title),
		Entries: make([]domain.FeedEntry, 0, len(feed.Items)),
	}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := domain.FeedEntry{
			Link:     strings.TrimSpace(item.Link),
			Title:    strings.TrimSpace(item.Title),
			ImageURL: itemImage(item),
		}
		switch {
		case item.PublishedParsed != nil:
			entry.PublishedAt = item.PublishedParsed
		case item.UpdatedParsed != nil:
			entry.PublishedAt = item.UpdatedParsed
		}
		out.Entries = append(out.Entries, entry)
	}

	s.logger.Debug("feed parsed", "feed", feedURL, "entries", len(out.Entries))
	return out, nil
}

// itemImage picks the first image the entry carries: image enclosures,
// then media:content, then media:thumbnail, then the item image field.
func itemImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			return enc.URL
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		if u := mediaURL(media["content"], true); u != "" {
			return u
		}
		if u := mediaURL(media["thumbnail"], false); u != "" {
			return u
		}
		// media:group wraps content/thumbnail on some feeds
		for _, group := range media["group"] {
			if u := mediaURL(group.Children["content"], true); u != "" {
				return u
			}
			if u := mediaURL(group.Children["thumbnail"], false); u != "" {
				return u
			}
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return ""
}

func mediaURL(elems []ext.Extension, requireImage bool) string {
	for _, el := range elems {
		u := el.Attrs["url"]
		if u == "" {
			continue
		}
		if requireImage && !isImageMedia(el.Attrs) {
			continue
		}
		return u
	}
	return ""
}

func isImageMedia(attrs map[string]string) bool {
	if medium := strings.ToLower(attrs["medium"]); medium != "" {
		return medium == "image"
	}
	if typ := strings.ToLower(attrs["type"]); typ != "" {
		return strings.HasPrefix(typ, "image/")
	}
	return true
}
