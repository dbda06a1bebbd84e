package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups of a single article or brief.
	ErrNotFound = errors.New("not found")
	// ErrEmptyResponse marks a model call that returned no usable text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNoContent marks a page fetch that produced no extractable text.
	ErrNoContent = errors.New("no extractable content")
)

// Article is a news item tracked through ingestion, enrichment and scoring.
// Optional attributes are nil until the owning stage sets them.
type Article struct {
	ID          int64
	URL         string
	Title       string
	PublishedAt time.Time
	Source      string
	FetchedAt   time.Time
	RawContent  string
	Summary     *string
	Embedding   []float64
	ProcessedAt *time.Time
	ClusterID   *int
	ImpactScore *int
	ImageURL    *string
	Profile     string
}

// HasEmbedding reports whether the article carries a non-empty vector.
func (a Article) HasEmbedding() bool {
	return len(a.Embedding) > 0
}

// SummaryText returns the summary or an empty string.
func (a Article) SummaryText() string {
	if a.Summary == nil {
		return ""
	}
	return *a.Summary
}

// NewArticle holds the fields Ingestion knows when it first stores an article.
type NewArticle struct {
	URL         string
	Title       string
	PublishedAt time.Time
	Source      string
	RawContent  string
	ImageURL    string
	Profile     string
}

// Brief is a synthesized digest for one profile and time window.
type Brief struct {
	ID                     int64
	GeneratedAt            time.Time
	Markdown               string
	ContributingArticleIDs []int64
	Profile                string
}

// BriefOutcome names the terminal state of one synthesis run.
type BriefOutcome string

const (
	OutcomePersisted            BriefOutcome = "persisted"
	OutcomeInsufficientArticles BriefOutcome = "insufficient-articles"
	OutcomeInsufficientClusters BriefOutcome = "insufficient-clusters"
	OutcomeNoClustersSurvived   BriefOutcome = "no-clusters-survived"
	OutcomeSynthesisFailed      BriefOutcome = "synthesis-failed"
)

// Produced reports whether the run stored a brief.
func (o BriefOutcome) Produced() bool {
	return o == OutcomePersisted
}
