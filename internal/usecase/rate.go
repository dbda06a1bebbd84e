package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"Meridiano/internal/ports"
	"Meridiano/internal/prompts"
)

const (
	minImpact = 1
	maxImpact = 10
)

// RateDeps wires the impact scoring stage.
type RateDeps struct {
	Repository ports.ArticleRepository
	Chat       ports.ChatClient
	Recorder   Recorder
	Logger     *slog.Logger
	BatchSize  int
}

// Rater asks the chat model for a 1-10 impact score per processed article.
type Rater struct {
	repo     ports.ArticleRepository
	chat     ports.ChatClient
	recorder Recorder
	logger   *slog.Logger
	batch    int
}

// NewRater builds the scoring stage.
func NewRater(deps RateDeps) *Rater {
	return &Rater{
		repo:     deps.Repository,
		chat:     deps.Chat,
		recorder: recorderOrNop(deps.Recorder),
		logger:   loggerOrDefault(deps.Logger),
		batch:    deps.BatchSize,
	}
}

// Run scores up to one batch of the profile's unrated articles.
// Articles with an unusable answer stay unrated for the next run.
func (r *Rater) Run(ctx context.Context, profile string, book prompts.Book) (StageStats, error) {
	logger := runLogger(ctx, r.logger).With("stage", StageRate, "profile", profile)

	articles, err := r.repo.GetUnrated(ctx, profile, r.batch)
	if err != nil {
		return StageStats{}, fmt.Errorf("load unrated articles: %w", err)
	}
	stats := StageStats{Candidates: len(articles)}
	if len(articles) == 0 {
		logger.Info("no articles to rate")
		return stats, nil
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		summary := article.SummaryText()
		if summary == "" {
			stats.Skipped++
			continue
		}

		answer, err := r.chat.Complete(ctx, book.ImpactRating(summary), "")
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Skipped++
			r.recorder.ItemSkipped(StageRate, reasonChat)
			logger.Warn("rating request failed", "article_id", article.ID, "error", err)
			continue
		}
		score, ok := ParseImpactScore(answer)
		if !ok {
			stats.Skipped++
			r.recorder.ItemSkipped(StageRate, reasonRating)
			logger.Warn("unusable rating", "article_id", article.ID, "response", answer)
			continue
		}

		if err := r.repo.UpdateRating(ctx, article.ID, score); err != nil {
			return stats, fmt.Errorf("update rating for article %d: %w", article.ID, err)
		}
		stats.Updated++
		r.recorder.ArticleRated(profile)
		logger.Debug("article rated", "article_id", article.ID, "score", score)
	}

	logger.Info("rating finished", "candidates", stats.Candidates, "rated", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

// ParseImpactScore reads the first whitespace-separated token of a model answer
// as an integer and accepts it only within 1..10.
func ParseImpactScore(answer string) (int, bool) {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return 0, false
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil || score < minImpact || score > maxImpact {
		return 0, false
	}
	return score, true
}
