package domain

import "time"

// Feed is a parsed RSS/Atom document.
type Feed struct {
	Title   string
	Entries []FeedEntry
}

// FeedEntry is one item of a feed. ImageURL is the best image the feed itself supplies.
type FeedEntry struct {
	Link        string
	Title       string
	PublishedAt *time.Time
	ImageURL    string
}

// Page is the extracted content of a fetched article page.
type Page struct {
	Text     string
	ImageURL string
	Title    string
}
