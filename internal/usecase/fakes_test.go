package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"Meridiano/internal/domain"
)

type savedBrief struct {
	id       int64
	markdown string
	ids      []int64
	profile  string
}

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	articles map[int64]*domain.Article
	byURL    map[string]int64
	briefs   []savedBrief
	briefing []domain.Article

	existsErr error
	updateErr error
	ratings   map[int64]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{articles: map[int64]*domain.Article{}, byURL: map[string]int64{}, ratings: map[int64]int{}}
}

func (f *fakeRepo) ArticleExists(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byURL[url]
	return ok, nil
}

func (f *fakeRepo) AddArticle(_ context.Context, a domain.NewArticle) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byURL[a.URL]; ok {
		return id, false, nil
	}
	f.nextID++
	img := a.ImageURL
	f.articles[f.nextID] = &domain.Article{
		ID: f.nextID, URL: a.URL, Title: a.Title, PublishedAt: a.PublishedAt, Source: a.Source,
		RawContent: a.RawContent, ImageURL: &img, Profile: a.Profile, FetchedAt: time.Now(),
	}
	f.byURL[a.URL] = f.nextID
	return f.nextID, true, nil
}

func (f *fakeRepo) selectArticles(pred func(*domain.Article) bool, limit int) []domain.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Article
	for _, a := range f.articles {
		if pred(a) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Article) int { return int(b.ID - a.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRepo) GetUnprocessed(_ context.Context, profile string, limit int) ([]domain.Article, error) {
	return f.selectArticles(func(a *domain.Article) bool {
		return a.Profile == profile && a.RawContent != "" && a.ProcessedAt == nil
	}, limit), nil
}

func (f *fakeRepo) GetUnrated(_ context.Context, profile string, limit int) ([]domain.Article, error) {
	return f.selectArticles(func(a *domain.Article) bool {
		return a.Profile == profile && a.Summary != nil && a.ProcessedAt != nil && a.ImpactScore == nil
	}, limit), nil
}

func (f *fakeRepo) UpdateProcessing(_ context.Context, id int64, summary string, embedding []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.articles[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	a.Summary, a.Embedding, a.ProcessedAt = &summary, embedding, &now
	return nil
}

func (f *fakeRepo) UpdateRating(_ context.Context, id int64, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.articles[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.ImpactScore = &score
	f.ratings[id] = score
	return nil
}

func (f *fakeRepo) GetForBriefing(context.Context, string, time.Duration) ([]domain.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.briefing), nil
}

func (f *fakeRepo) SaveBrief(_ context.Context, markdown string, ids []int64, profile string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.briefs) + 1)
	f.briefs = append(f.briefs, savedBrief{id: id, markdown: markdown, ids: slices.Clone(ids), profile: profile})
	return id, nil
}

func (f *fakeRepo) add(a domain.Article) *domain.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	f.articles[a.ID] = &a
	f.byURL[a.URL] = a.ID
	return f.articles[a.ID]
}

type fakeFeeds struct {
	feeds map[string]domain.Feed
	errs  map[string]error
}

func (f fakeFeeds) Fetch(_ context.Context, url string) (domain.Feed, error) {
	if err, ok := f.errs[url]; ok {
		return domain.Feed{}, err
	}
	return f.feeds[url], nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]domain.Page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return domain.Page{}, errors.New("connection reset")
	}
	if page.Text == "" {
		return domain.Page{}, domain.ErrNoContent
	}
	return page, nil
}

type chatCall struct {
	prompt string
	system string
}

type scriptedChat struct {
	mu    sync.Mutex
	calls []chatCall
	reply func(prompt, system string) (string, error)
}

func (s *scriptedChat) Complete(_ context.Context, prompt, system string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, chatCall{prompt: prompt, system: system})
	s.mu.Unlock()
	return s.reply(prompt, system)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float64{float64(len(text)), 1}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	ingested int
	enriched int
	rated    int
	skips    map[string]int
	outcomes []string
}

func newCountingRecorder() *countingRecorder { return &countingRecorder{skips: map[string]int{}} }

func (c *countingRecorder) ArticleIngested(string) { c.mu.Lock(); c.ingested++; c.mu.Unlock() }
func (c *countingRecorder) ArticleEnriched(string) { c.mu.Lock(); c.enriched++; c.mu.Unlock() }
func (c *countingRecorder) ArticleRated(string)    { c.mu.Lock(); c.rated++; c.mu.Unlock() }

func (c *countingRecorder) ItemSkipped(stage, reason string) {
	c.mu.Lock()
	c.skips[stage+"/"+reason]++
	c.mu.Unlock()
}

func (c *countingRecorder) BriefOutcome(_, outcome string) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, outcome)
	c.mu.Unlock()
}

type fakeNotifier struct {
	err  error
	sent []domain.Brief
}

func (f *fakeNotifier) PublishBrief(_ context.Context, b domain.Brief) error {
	f.sent = append(f.sent, b)
	return f.err
}

type fakeEvents struct{ sent []domain.Brief }

func (f *fakeEvents) BriefCreated(_ context.Context, b domain.Brief) error {
	f.sent = append(f.sent, b)
	return nil
}

func ptr[T any](v T) *T { return &v }
