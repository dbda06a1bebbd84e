package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Sample Wire</title>
    <link>https://wire.example.org</link>
    <item>
      <title>Enclosure wins</title>
      <link>https://wire.example.org/a</link>
      <pubDate>Tue, 13 Oct 2026 10:00:00 GMT</pubDate>
      <enclosure url="https://cdn.example.org/a.jpg" type="image/jpeg" length="1"/>
      <media:content url="https://cdn.example.org/a-media.jpg" medium="image"/>
    </item>
    <item>
      <title>Media content</title>
      <link>https://wire.example.org/b</link>
      <media:content url="https://cdn.example.org/b.mp4" medium="video"/>
      <media:content url="https://cdn.example.org/b.jpg" type="image/jpeg"/>
      <media:thumbnail url="https://cdn.example.org/b-thumb.jpg"/>
    </item>
    <item>
      <title>Thumbnail only</title>
      <link>https://wire.example.org/c</link>
      <media:thumbnail url="https://cdn.example.org/c-thumb.jpg"/>
    </item>
    <item>
      <link>https://wire.example.org/d</link>
    </item>
  </channel>
</rss>`

func TestRSSSourceFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(srv.Close)

	src := NewRSSSource(srv.Client(), "", nil)
	feed, err := src.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if feed.Title != "Sample Wire" {
		t.Fatalf("unexpected title %q", feed.Title)
	}
	if len(feed.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(feed.Entries))
	}

	want := []string{
		"https://cdn.example.org/a.jpg",
		"https://cdn.example.org/b.jpg",
		"https://cdn.example.org/c-thumb.jpg",
		"",
	}
	for i, w := range want {
		if feed.Entries[i].ImageURL != w {
			t.Fatalf("entry %d image = %q, want %q", i, feed.Entries[i].ImageURL, w)
		}
	}

	first := feed.Entries[0]
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time %v", first.PublishedAt)
	}
	if feed.Entries[3].Title != "" || feed.Entries[3].PublishedAt != nil {
		t.Fatalf("missing fields should stay empty: %+v", feed.Entries[3])
	}
}

func TestRSSSourceFetchRejectsGarbage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not a feed"))
	}))
	t.Cleanup(srv.Close)

	if _, err := NewRSSSource(srv.Client(), "", nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected parse error")
	}
}
