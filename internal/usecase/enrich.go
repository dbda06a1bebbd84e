package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
	"Meridiano/internal/prompts"
)

// EnrichDeps wires the summarize-and-embed stage.
type EnrichDeps struct {
	Repository ports.ArticleRepository
	Chat       ports.ChatClient
	Embedder   ports.Embedder
	Recorder   Recorder
	Logger     *slog.Logger
	// BatchSize caps articles per run.
	BatchSize int
	// ContentBudget caps characters of raw text sent to the model.
	ContentBudget int
}

// Enricher summarises pending articles and embeds the summaries.
type Enricher struct {
	repo     ports.ArticleRepository
	chat     ports.ChatClient
	embedder ports.Embedder
	recorder Recorder
	logger   *slog.Logger
	batch    int
	budget   int
}

// NewEnricher builds the enrichment stage.
func NewEnricher(deps EnrichDeps) *Enricher {
	return &Enricher{
		repo:     deps.Repository,
		chat:     deps.Chat,
		embedder: deps.Embedder,
		recorder: recorderOrNop(deps.Recorder),
		logger:   loggerOrDefault(deps.Logger),
		batch:    deps.BatchSize,
		budget:   deps.ContentBudget,
	}
}

// Run processes up to one batch of the profile's unprocessed articles.
func (e *Enricher) Run(ctx context.Context, profile string, book prompts.Book) (StageStats, error) {
	logger := runLogger(ctx, e.logger).With("stage", StageEnrich, "profile", profile)

	articles, err := e.repo.GetUnprocessed(ctx, profile, e.batch)
	if err != nil {
		return StageStats{}, fmt.Errorf("load unprocessed articles: %w", err)
	}
	stats := StageStats{Candidates: len(articles)}
	if len(articles) == 0 {
		logger.Info("no articles to process")
		return stats, nil
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ok, err := e.enrichOne(ctx, logger, book, article)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Updated++
		e.recorder.ArticleEnriched(profile)
	}

	logger.Info("processing finished", "candidates", stats.Candidates, "processed", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

func (e *Enricher) enrichOne(ctx context.Context, logger *slog.Logger, book prompts.Book, article domain.Article) (bool, error) {
	prompt := book.ArticleSummary(truncateRunes(article.RawContent, e.budget))
	summary, err := e.chat.Complete(ctx, prompt, "")
	if err == nil && strings.TrimSpace(summary) == "" {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.recorder.ItemSkipped(StageEnrich, reasonChat)
		logger.Warn("summarization failed", "article_id", article.ID, "error", err)
		return false, nil
	}

	summary = strings.TrimSpace(summary) + fmt.Sprintf("\n\nSource: [%s](%s)", article.Title, article.URL)

	embedding, err := e.embedder.Embed(ctx, summary)
	if err == nil && len(embedding) == 0 {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.recorder.ItemSkipped(StageEnrich, reasonEmbed)
		logger.Warn("embedding failed", "article_id", article.ID, "error", err)
		return false, nil
	}

	if err := e.repo.UpdateProcessing(ctx, article.ID, summary, embedding); err != nil {
		return false, fmt.Errorf("update processing for article %d: %w", article.ID, err)
	}
	logger.Debug("article processed", "article_id", article.ID, "dims", len(embedding))
	return true, nil
}

// truncateRunes keeps at most limit characters. A non-positive limit keeps everything.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
