package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"Meridiano/internal/cluster"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
	"Meridiano/internal/prompts"
)

// smallClusterSize is the largest cluster an "unrelated" answer can drop.
const smallClusterSize = 2

// BriefDeps wires the synthesis stage.
type BriefDeps struct {
	Repository ports.ArticleRepository
	Chat       ports.ChatClient
	// Notifier and Events are optional delivery channels.
	Notifier ports.Notifier
	Events   ports.EventPublisher
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// BriefSettings are the per-run knobs of synthesis.
type BriefSettings struct {
	Lookback       time.Duration
	MinArticles    int
	TargetClusters int
	ClusterSample  int
	TopClusters    int
	// UnrelatedMarkers are matched case-insensitively against cluster analyses.
	UnrelatedMarkers []string
}

// BriefResult is the outcome of one synthesis run. BriefID is set only when persisted.
type BriefResult struct {
	Outcome  domain.BriefOutcome
	BriefID  int64
	Articles int
	Clusters int
	Analyzed int
}

// ClusterAnalysis is a surviving cluster with its model analysis.
type ClusterAnalysis struct {
	Label    int
	Size     int
	Analysis string
}

// Briefer clusters recent articles and synthesises a digest.
type Briefer struct {
	repo     ports.ArticleRepository
	chat     ports.ChatClient
	notifier ports.Notifier
	events   ports.EventPublisher
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewBriefer builds the synthesis stage.
func NewBriefer(deps BriefDeps) *Briefer {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Briefer{
		repo:     deps.Repository,
		chat:     deps.Chat,
		notifier: deps.Notifier,
		events:   deps.Events,
		recorder: recorderOrNop(deps.Recorder),
		logger:   loggerOrDefault(deps.Logger),
		now:      now,
	}
}

// Run walks collecting, clustering, analyzing, ranking and synthesizing.
// Preconditions that are not met end in a benign outcome with a nil error;
// the error is reserved for storage faults and cancellation.
func (b *Briefer) Run(ctx context.Context, profile string, book prompts.Book, s BriefSettings) (BriefResult, error) {
	logger := runLogger(ctx, b.logger).With("stage", StageBrief, "profile", profile)
	res, err := b.run(ctx, logger, profile, book, s)
	if err != nil {
		return res, err
	}
	b.recorder.BriefOutcome(profile, string(res.Outcome))
	if res.Outcome.Produced() {
		logger.Info("brief generated", "outcome", res.Outcome, "brief_id", res.BriefID,
			"articles", res.Articles, "clusters", res.Clusters, "analyzed", res.Analyzed)
	} else {
		logger.Info("brief not generated", "outcome", res.Outcome,
			"articles", res.Articles, "clusters", res.Clusters, "analyzed", res.Analyzed)
	}
	return res, nil
}

func (b *Briefer) run(ctx context.Context, logger *slog.Logger, profile string, book prompts.Book, s BriefSettings) (BriefResult, error) {
	var res BriefResult

	articles, err := b.repo.GetForBriefing(ctx, profile, s.Lookback)
	if err != nil {
		return res, fmt.Errorf("load articles for briefing: %w", err)
	}
	res.Articles = len(articles)
	if len(articles) < s.MinArticles {
		res.Outcome = domain.OutcomeInsufficientArticles
		return res, nil
	}

	embedded := embeddedSubset(articles)
	if len(embedded) != len(articles) {
		logger.Warn("articles without usable embedding dropped", "dropped", len(articles)-len(embedded))
	}
	res.Articles = len(embedded)
	if len(embedded) < s.MinArticles {
		res.Outcome = domain.OutcomeInsufficientArticles
		return res, nil
	}

	k := min(s.TargetClusters, len(embedded)/2)
	if k < 2 {
		res.Outcome = domain.OutcomeInsufficientClusters
		return res, nil
	}
	res.Clusters = k

	points := make([][]float64, len(embedded))
	for i, a := range embedded {
		points[i] = a.Embedding
	}
	km, err := cluster.KMeans(points, cluster.DefaultOptions(k))
	if err != nil {
		return res, fmt.Errorf("cluster articles: %w", err)
	}
	logger.Debug("articles clustered", "k", k, "inertia", km.Inertia, "sizes", km.Sizes())

	analyses, err := b.analyze(ctx, logger, profile, book, s, embedded, km.Labels, k)
	if err != nil {
		return res, err
	}
	res.Analyzed = len(analyses)
	if len(analyses) == 0 {
		res.Outcome = domain.OutcomeNoClustersSurvived
		return res, nil
	}

	rankClusters(analyses)
	top := analyses[:min(len(analyses), max(s.TopClusters, 1))]

	markdown, err := b.chat.Complete(ctx, book.BriefSynthesis(formatAnalyses(top), profile), "")
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Warn("brief synthesis failed", "error", err)
		res.Outcome = domain.OutcomeSynthesisFailed
		return res, nil
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		res.Outcome = domain.OutcomeSynthesisFailed
		return res, nil
	}

	ids := make([]int64, len(embedded))
	for i, a := range embedded {
		ids[i] = a.ID
	}
	id, err := b.repo.SaveBrief(ctx, markdown, ids, profile)
	if err != nil {
		return res, fmt.Errorf("save brief: %w", err)
	}
	res.BriefID = id
	res.Outcome = domain.OutcomePersisted

	b.deliver(ctx, logger, domain.Brief{
		ID:                     id,
		GeneratedAt:            b.now().UTC(),
		Markdown:               markdown,
		ContributingArticleIDs: ids,
		Profile:                profile,
	})
	return res, nil
}

// analyze asks the model to describe every non-empty cluster, label order first.
func (b *Briefer) analyze(ctx context.Context, logger *slog.Logger, profile string, book prompts.Book,
	s BriefSettings, articles []domain.Article, labels []int, k int) ([]ClusterAnalysis, error) {

	members := make([][]domain.Article, k)
	for i, l := range labels {
		members[l] = append(members[l], articles[i])
	}

	var out []ClusterAnalysis
	for label, group := range members {
		if len(group) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt := book.ClusterAnalysis(formatSummaries(group, s.ClusterSample), profile)
		analysis, err := b.chat.Complete(ctx, prompt, prompts.AnalystSystemPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.recorder.ItemSkipped(StageBrief, reasonChat)
			logger.Warn("cluster analysis failed", "cluster", label, "size", len(group), "error", err)
			continue
		}
		analysis = strings.TrimSpace(analysis)
		if analysis == "" {
			b.recorder.ItemSkipped(StageBrief, reasonEmpty)
			continue
		}
		if len(group) <= smallClusterSize && mentionsAny(analysis, s.UnrelatedMarkers) {
			b.recorder.ItemSkipped(StageBrief, "unrelated")
			logger.Debug("unrelated cluster dropped", "cluster", label, "size", len(group))
			continue
		}
		out = append(out, ClusterAnalysis{Label: label, Size: len(group), Analysis: analysis})
	}
	return out, nil
}

func (b *Briefer) deliver(ctx context.Context, logger *slog.Logger, brief domain.Brief) {
	if b.notifier != nil {
		if err := b.notifier.PublishBrief(ctx, brief); err != nil {
			logger.Warn("brief notification failed", "brief_id", brief.ID, "error", err)
		}
	}
	if b.events != nil {
		if err := b.events.BriefCreated(ctx, brief); err != nil {
			logger.Warn("brief event failed", "brief_id", brief.ID, "error", err)
		}
	}
}

// embeddedSubset keeps articles whose vector has the most common dimension.
// On a tie the dimension that reached the count first wins.
func embeddedSubset(articles []domain.Article) []domain.Article {
	counts := make(map[int]int)
	dim := 0
	for _, a := range articles {
		if !a.HasEmbedding() {
			continue
		}
		n := len(a.Embedding)
		counts[n]++
		if dim == 0 || counts[n] > counts[dim] {
			dim = n
		}
	}
	out := make([]domain.Article, 0, counts[dim])
	for _, a := range articles {
		if a.HasEmbedding() && len(a.Embedding) == dim {
			out = append(out, a)
		}
	}
	return out
}

// rankClusters orders by size descending, keeping label order among equals.
func rankClusters(c []ClusterAnalysis) {
	slices.SortStableFunc(c, func(a, b ClusterAnalysis) int { return b.Size - a.Size })
}

func formatSummaries(group []domain.Article, sample int) string {
	if sample > 0 && len(group) > sample {
		group = group[:sample]
	}
	lines := make([]string, 0, len(group))
	for _, a := range group {
		lines = append(lines, "- "+a.SummaryText())
	}
	return strings.Join(lines, "\n\n")
}

func formatAnalyses(ranked []ClusterAnalysis) string {
	var sb strings.Builder
	for i, c := range ranked {
		fmt.Fprintf(&sb, "--- Cluster %d (%d articles) ---\nAnalysis: %s\n\n", i+1, c.Size, c.Analysis)
	}
	return sb.String()
}

func mentionsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
