package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

const (
	untitled        = "No Title"
	manualAddSource = "Manual Add"
)

// IngestDeps wires the collaborators of the ingestion stage.
type IngestDeps struct {
	Repository ports.ArticleRepository
	Feeds      ports.FeedSource
	Fetcher    ports.ContentFetcher
	// PageLimiter spaces page downloads. Nil means no delay.
	PageLimiter *rate.Limiter
	Recorder    Recorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// Ingestor pulls new articles from feeds into storage.
type Ingestor struct {
	repo     ports.ArticleRepository
	feeds    ports.FeedSource
	fetcher  ports.ContentFetcher
	limiter  *rate.Limiter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// IngestStats summarises one ingestion run.
type IngestStats struct {
	Feeds      int
	FeedErrors int
	Entries    int
	Existing   int
	Added      int
	Skipped    int
}

// NewIngestor builds the ingestion stage.
func NewIngestor(deps IngestDeps) *Ingestor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		repo:     deps.Repository,
		feeds:    deps.Feeds,
		fetcher:  deps.Fetcher,
		limiter:  deps.PageLimiter,
		recorder: recorderOrNop(deps.Recorder),
		logger:   loggerOrDefault(deps.Logger),
		now:      now,
	}
}

// Run ingests every feed of a profile. Only storage faults end the run early.
func (i *Ingestor) Run(ctx context.Context, profile string, feedURLs []string) (IngestStats, error) {
	logger := runLogger(ctx, i.logger).With("stage", StageIngest, "profile", profile)
	stats := IngestStats{Feeds: len(feedURLs)}

	for _, feedURL := range feedURLs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		feed, err := i.feeds.Fetch(ctx, feedURL)
		if err != nil {
			stats.FeedErrors++
			i.recorder.ItemSkipped(StageIngest, reasonFeed)
			logger.Warn("feed fetch failed", "feed", feedURL, "error", err)
			continue
		}
		logger.Debug("feed parsed", "feed", feedURL, "entries", len(feed.Entries))

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = feedURL
		}
		for _, entry := range feed.Entries {
			if entry.Link == "" {
				continue
			}
			stats.Entries++
			added, err := i.ingestEntry(ctx, logger, profile, source, entry)
			if err != nil {
				return stats, err
			}
			switch added {
			case entryAdded:
				stats.Added++
			case entryExisting:
				stats.Existing++
			case entrySkipped:
				stats.Skipped++
			}
		}
	}

	logger.Info("ingestion finished", "feeds", stats.Feeds, "feed_errors", stats.FeedErrors,
		"entries", stats.Entries, "added", stats.Added, "existing", stats.Existing, "skipped", stats.Skipped)
	return stats, nil
}

type entryResult int

const (
	entryAdded entryResult = iota
	entryExisting
	entrySkipped
)

func (i *Ingestor) ingestEntry(ctx context.Context, logger *slog.Logger, profile, source string, entry domain.FeedEntry) (entryResult, error) {
	exists, err := i.repo.ArticleExists(ctx, entry.Link)
	if err != nil {
		return entrySkipped, fmt.Errorf("check article exists: %w", err)
	}
	if exists {
		return entryExisting, nil
	}

	if err := i.pace(ctx); err != nil {
		return entrySkipped, err
	}
	page, err := i.fetcher.Fetch(ctx, entry.Link)
	if err != nil {
		if ctx.Err() != nil {
			return entrySkipped, ctx.Err()
		}
		i.recorder.ItemSkipped(StageIngest, reasonFetch)
		logger.Warn("article fetch failed", "url", entry.Link, "error", err)
		return entrySkipped, nil
	}
	if strings.TrimSpace(page.Text) == "" {
		i.recorder.ItemSkipped(StageIngest, reasonEmpty)
		logger.Warn("article has no content", "url", entry.Link)
		return entrySkipped, nil
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = untitled
	}
	published := i.now()
	if entry.PublishedAt != nil {
		published = *entry.PublishedAt
	}
	image := entry.ImageURL
	if image == "" {
		image = page.ImageURL
	}

	_, inserted, err := i.repo.AddArticle(ctx, domain.NewArticle{
		URL:         entry.Link,
		Title:       title,
		PublishedAt: published,
		Source:      source,
		RawContent:  page.Text,
		ImageURL:    image,
		Profile:     profile,
	})
	if err != nil {
		return entrySkipped, fmt.Errorf("add article: %w", err)
	}
	if !inserted {
		return entryExisting, nil
	}
	i.recorder.ArticleIngested(profile)
	logger.Debug("article added", "url", entry.Link, "title", title)
	return entryAdded, nil
}

// AddURLResult reports the outcome of a manual add.
type AddURLResult struct {
	ID       int64
	Inserted bool
	Title    string
}

// AddURL fetches one page and stores it under profile with the manual source name.
// An already stored URL is reported with Inserted false.
func (i *Ingestor) AddURL(ctx context.Context, url, profile string) (AddURLResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return AddURLResult{}, errors.New("url is required")
	}
	logger := runLogger(ctx, i.logger).With("stage", stageAddURL, "profile", profile)

	page, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		i.recorder.ItemSkipped(stageAddURL, reasonFetch)
		return AddURLResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = untitled
	}

	id, inserted, err := i.repo.AddArticle(ctx, domain.NewArticle{
		URL:         url,
		Title:       title,
		PublishedAt: i.now(),
		Source:      manualAddSource,
		RawContent:  page.Text,
		ImageURL:    page.ImageURL,
		Profile:     profile,
	})
	if err != nil {
		return AddURLResult{}, fmt.Errorf("add article: %w", err)
	}
	if inserted {
		i.recorder.ArticleIngested(profile)
	}
	logger.Info("manual article handled", "url", url, "id", id, "inserted", inserted)
	return AddURLResult{ID: id, Inserted: inserted, Title: title}, nil
}

func (i *Ingestor) pace(ctx context.Context) error {
	if i.limiter == nil {
		return nil
	}
	return i.limiter.Wait(ctx)
}
