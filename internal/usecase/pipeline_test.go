package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
)

func newTestPipeline(repo *fakeRepo, chat *scriptedChat, feeds fakeFeeds, fetcher *fakeFetcher) *Pipeline {
	cfg := config.Config{
		Pipeline: config.PipelineConfig{ProcessBatch: 100, RatingBatch: 100, ContentBudget: 4000, LookbackHours: 24, MinArticlesToBrief: 3},
		Profiles: map[string]config.Profile{
			"tech":  {Feeds: []string{"https://feeds.example/tech"}},
			"empty": {},
		},
	}
	return NewPipeline(PipelineDeps{
		Ingestor: newTestIngestor(repo, feeds, fetcher, nil),
		Enricher: NewEnricher(EnrichDeps{Repository: repo, Chat: chat, Embedder: &fakeEmbedder{}, BatchSize: 100}),
		Rater:    NewRater(RateDeps{Repository: repo, Chat: chat, BatchSize: 100}),
		Briefer:  newTestBriefer(repo, chat, nil),
		Profiles: cfg,
		Settings: cfg.Pipeline,
	})
}

func TestPipelineRunsSelectedStagesInOrder(t *testing.T) {
	t.Parallel()

	feeds := fakeFeeds{feeds: map[string]domain.Feed{
		"https://feeds.example/tech": {Title: "Tech", Entries: []domain.FeedEntry{{Link: "https://news.example/1", Title: "One"}}},
	}}
	fetcher := &fakeFetcher{pages: map[string]domain.Page{"https://news.example/1": {Text: "body"}}}
	repo := newFakeRepo()
	chat := &scriptedChat{reply: func(prompt, _ string) (string, error) {
		if strings.Contains(prompt, "Output ONLY the integer") {
			return "6", nil
		}
		return "A summary.", nil
	}}
	p := newTestPipeline(repo, chat, feeds, fetcher)

	report, err := p.Run(context.Background(), "tech", Stages{Scrape: true, Process: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" || report.Ingest == nil || report.Enrich == nil || report.Rate != nil || report.Brief != nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Ingest.Added != 1 || report.Enrich.Updated != 1 {
		t.Fatalf("scrape then process should handle the new article: %+v %+v", report.Ingest, report.Enrich)
	}

	report, err = p.Run(context.Background(), "tech", Stages{})
	if err != nil {
		t.Fatalf("Run all: %v", err)
	}
	if report.Rate == nil || report.Rate.Updated != 1 {
		t.Fatalf("empty selection must include rating, got %+v", report.Rate)
	}
	if report.Brief == nil || report.Brief.Outcome != domain.OutcomeInsufficientArticles {
		t.Fatalf("expected benign brief outcome, got %+v", report.Brief)
	}
	if a := repo.articles[1]; a.ImpactScore == nil || *a.ImpactScore != 6 {
		t.Fatalf("article not rated: %+v", a)
	}
}

func TestPipelineUnknownProfile(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(newFakeRepo(), &scriptedChat{reply: func(string, string) (string, error) { return "", nil }}, fakeFeeds{}, &fakeFetcher{})
	if _, err := p.Run(context.Background(), "sports", AllStages()); err == nil {
		t.Fatalf("expected unknown profile error")
	}

	reports, err := p.RunAll(context.Background(), []string{"sports", "empty"}, Stages{Scrape: true})
	if err == nil || len(reports) != 2 {
		t.Fatalf("RunAll should continue past failures and report the first error, got %d reports err=%v", len(reports), err)
	}
	if reports[1].Ingest != nil {
		t.Fatalf("profile without feeds must skip scraping")
	}
}

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (f *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	f.job = job
	return nil
}

func (f *fakeDriver) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func TestSchedulerRunsAllProfiles(t *testing.T) {
	t.Parallel()

	feeds := fakeFeeds{feeds: map[string]domain.Feed{
		"https://feeds.example/tech": {Entries: []domain.FeedEntry{{Link: "https://news.example/1"}}},
	}}
	fetcher := &fakeFetcher{pages: map[string]domain.Page{"https://news.example/1": {Text: "body"}}}
	repo := newFakeRepo()
	p := newTestPipeline(repo, &scriptedChat{reply: func(string, string) (string, error) { return "3", nil }}, feeds, fetcher)

	driver := &fakeDriver{}
	s := NewScheduler(driver, p, []string{"tech"}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if driver.job == nil {
		t.Fatalf("job not registered")
	}
	driver.job(fixedNow)
	if len(repo.articles) != 1 {
		t.Fatalf("scheduled run did not ingest, articles=%d", len(repo.articles))
	}
	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop: %v", err)
	}
}
