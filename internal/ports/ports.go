package ports

import (
	"context"
	"time"

	"Meridiano/internal/domain"
)

// ArticleRepository is the storage service every pipeline stage reads from and writes to.
type ArticleRepository interface {
	ArticleExists(ctx context.Context, url string) (bool, error)
	// AddArticle returns inserted == false when the URL is already stored.
	AddArticle(ctx context.Context, article domain.NewArticle) (id int64, inserted bool, err error)
	GetUnprocessed(ctx context.Context, profile string, limit int) ([]domain.Article, error)
	GetUnrated(ctx context.Context, profile string, limit int) ([]domain.Article, error)
	// UpdateProcessing writes summary, embedding and processing time in one statement.
	UpdateProcessing(ctx context.Context, id int64, summary string, embedding []float64) error
	UpdateRating(ctx context.Context, id int64, score int) error
	GetForBriefing(ctx context.Context, profile string, lookback time.Duration) ([]domain.Article, error)
	SaveBrief(ctx context.Context, markdown string, articleIDs []int64, profile string) (int64, error)
}

// BriefReader exposes stored briefs and profiles to the CLI.
type BriefReader interface {
	ListBriefs(ctx context.Context, profile string) ([]domain.Brief, error)
	GetBrief(ctx context.Context, id int64) (domain.Brief, error)
	Profiles(ctx context.Context) ([]string, error)
}

// FeedSource parses a single RSS/Atom feed.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) (domain.Feed, error)
}

// ContentFetcher downloads a page and extracts its main text.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Page, error)
}

// ChatClient sends one prompt to a chat-completion model.
type ChatClient interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Notifier streams a finished brief to a chat channel.
type Notifier interface {
	PublishBrief(ctx context.Context, brief domain.Brief) error
}

// EventPublisher announces finished briefs to downstream consumers.
type EventPublisher interface {
	BriefCreated(ctx context.Context, brief domain.Brief) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
