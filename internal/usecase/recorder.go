package usecase

import (
	"context"
	"log/slog"
)

// Recorder receives pipeline counters. Implemented by the Prometheus adapter.
type Recorder interface {
	ArticleIngested(profile string)
	ArticleEnriched(profile string)
	ArticleRated(profile string)
	ItemSkipped(stage, reason string)
	BriefOutcome(profile, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ArticleIngested(string)      {}
func (nopRecorder) ArticleEnriched(string)      {}
func (nopRecorder) ArticleRated(string)         {}
func (nopRecorder) ItemSkipped(string, string)  {}
func (nopRecorder) BriefOutcome(string, string) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Stage names used in logs and skip counters.
const (
	StageIngest  = "ingest"
	StageEnrich  = "enrich"
	StageRate    = "rate"
	StageBrief   = "brief"
	stageAddURL  = "add_url"
	reasonFetch  = "fetch_failed"
	reasonFeed   = "feed_failed"
	reasonChat   = "chat_failed"
	reasonEmbed  = "embed_failed"
	reasonRating = "invalid_rating"
	reasonEmpty  = "empty"
)

// StageStats summarises one per-article stage run.
type StageStats struct {
	Candidates int
	Updated    int
	Skipped    int
}

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// runLogger tags logger with the run ID carried by ctx, if any.
func runLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return logger.With("run_id", id)
	}
	return logger
}
