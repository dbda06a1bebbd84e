package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/prompts"
)

func TestEnrichPersistsSummaryWithSource(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	a := repo.add(domain.Article{URL: "https://news.example/a", Title: "Chip export rules", RawContent: strings.Repeat("ç", 50), Profile: "tech"})
	repo.add(domain.Article{URL: "https://news.example/other", RawContent: "other profile", Profile: "brasil"})

	chat := &scriptedChat{reply: func(string, string) (string, error) { return "  New export rules announced. \n", nil }}
	emb := &fakeEmbedder{}
	rec := newCountingRecorder()
	e := NewEnricher(EnrichDeps{Repository: repo, Chat: chat, Embedder: emb, Recorder: rec, BatchSize: 10, ContentBudget: 20})

	stats, err := e.Run(context.Background(), "tech", prompts.NewBook(config.PromptSet{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Candidates != 1 || stats.Updated != 1 || rec.enriched != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	want := "New export rules announced.\n\nSource: [Chip export rules](https://news.example/a)"
	if got := a.SummaryText(); got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
	if len(emb.inputs) != 1 || emb.inputs[0] != want {
		t.Fatalf("embedding must be computed from the summary with source, got %q", emb.inputs)
	}
	if a.ProcessedAt == nil || !a.HasEmbedding() {
		t.Fatalf("processing fields not written: %+v", a)
	}
	if !strings.Contains(chat.calls[0].prompt, strings.Repeat("ç", 20)) || strings.Contains(chat.calls[0].prompt, strings.Repeat("ç", 21)) {
		t.Fatalf("raw content not truncated to the budget")
	}
}

func TestEnrichSkipsWithoutPartialWrites(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    func(string, string) (string, error)
		embedErr error
		reason   string
	}{
		{"chat error", func(string, string) (string, error) { return "", errors.New("timeout") }, nil, "enrich/chat_failed"},
		{"empty summary", func(string, string) (string, error) { return "   ", nil }, nil, "enrich/chat_failed"},
		{"embed error", func(string, string) (string, error) { return "ok", nil }, errors.New("503"), "enrich/embed_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeRepo()
			a := repo.add(domain.Article{URL: "https://news.example/a", RawContent: "body", Profile: "default"})
			rec := newCountingRecorder()
			e := NewEnricher(EnrichDeps{
				Repository: repo,
				Chat:       &scriptedChat{reply: tt.reply},
				Embedder:   &fakeEmbedder{err: tt.embedErr},
				Recorder:   rec,
				BatchSize:  10,
			})

			stats, err := e.Run(context.Background(), "default", prompts.NewBook(config.PromptSet{}))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if stats.Skipped != 1 || stats.Updated != 0 {
				t.Fatalf("unexpected stats %+v", stats)
			}
			if a.Summary != nil || a.Embedding != nil || a.ProcessedAt != nil {
				t.Fatalf("article partially updated: %+v", a)
			}
			if rec.skips[tt.reason] != 1 {
				t.Fatalf("expected skip %s, got %v", tt.reason, rec.skips)
			}
		})
	}
}

func TestEnrichStorageFault(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.add(domain.Article{URL: "u", RawContent: "body", Profile: "default"})
	repo.updateErr = errors.New("disk full")
	e := NewEnricher(EnrichDeps{
		Repository: repo,
		Chat:       &scriptedChat{reply: func(string, string) (string, error) { return "ok", nil }},
		Embedder:   &fakeEmbedder{},
	})
	if _, err := e.Run(context.Background(), "default", prompts.NewBook(config.PromptSet{})); err == nil {
		t.Fatalf("expected storage fault")
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("truncateRunes = %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Fatalf("short input changed: %q", got)
	}
	if got := truncateRunes("abc", 0); got != "abc" {
		t.Fatalf("zero budget must keep input: %q", got)
	}
}
