package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/infrastructure/events"
	"Meridiano/internal/infrastructure/llm"
	"Meridiano/internal/infrastructure/metrics"
	"Meridiano/internal/infrastructure/parser"
	"Meridiano/internal/infrastructure/scheduler"
	"Meridiano/internal/infrastructure/storage"
	"Meridiano/internal/infrastructure/telegram"
	"Meridiano/internal/logging"
	"Meridiano/internal/ports"
	"Meridiano/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	repo     *storage.SQLRepository
	ingestor *usecase.Ingestor
	pipeline *usecase.Pipeline
	metrics  *metrics.Recorder
	events   *events.KafkaPublisher
}

// New opens storage and builds every stage from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(ctx, storage.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		DefaultProfile: cfg.Pipeline.DefaultProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, repo: repo, metrics: metrics.New()}
	if err := a.wire(); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire() error {
	cfg, logger := a.cfg, a.logger

	httpClient := &http.Client{Timeout: cfg.Fetcher.Timeout}
	feeds := parser.NewRSSSource(httpClient, cfg.Fetcher.UserAgent, logger.With("component", "parser.rss"))
	fetcher := parser.NewHTMLFetcher(httpClient, cfg.Fetcher.UserAgent, logger.With("component", "parser.html"))

	chatClient, err := llm.NewChatClient(cfg.LLM)
	if err != nil {
		return err
	}
	// chat and embedding calls share one budget
	modelLimiter := llm.NewLimiter(cfg.LLM.CallDelay)
	chat := llm.NewGuardedChat(chatClient, modelLimiter, a.metrics)
	embedder := llm.NewGuardedEmbedder(llm.NewOpenAIEmbedder(cfg.Embedding), modelLimiter, a.metrics)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		n, err := telegram.NewNotifier(cfg.Notifications.Telegram, logger.With("component", "telegram"))
		if err != nil {
			return fmt.Errorf("telegram notifier: %w", err)
		}
		notifier = n
	}
	var publisher ports.EventPublisher
	if cfg.Events.Kafka.Enabled() {
		a.events = events.NewKafkaPublisher(cfg.Events.Kafka, logger.With("component", "events.kafka"))
		publisher = a.events
	}

	a.ingestor = usecase.NewIngestor(usecase.IngestDeps{
		Repository:  a.repo,
		Feeds:       feeds,
		Fetcher:     fetcher,
		PageLimiter: pageLimiter(cfg.Fetcher.Delay),
		Recorder:    a.metrics,
		Logger:      logger.With("component", "ingest"),
	})
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Ingestor: a.ingestor,
		Enricher: usecase.NewEnricher(usecase.EnrichDeps{
			Repository:    a.repo,
			Chat:          chat,
			Embedder:      embedder,
			Recorder:      a.metrics,
			Logger:        logger.With("component", "enrich"),
			BatchSize:     cfg.Pipeline.ProcessBatch,
			ContentBudget: cfg.Pipeline.ContentBudget,
		}),
		Rater: usecase.NewRater(usecase.RateDeps{
			Repository: a.repo,
			Chat:       chat,
			Recorder:   a.metrics,
			Logger:     logger.With("component", "rate"),
			BatchSize:  cfg.Pipeline.RatingBatch,
		}),
		Briefer: usecase.NewBriefer(usecase.BriefDeps{
			Repository: a.repo,
			Chat:       chat,
			Notifier:   notifier,
			Events:     publisher,
			Recorder:   a.metrics,
			Logger:     logger.With("component", "brief"),
		}),
		Profiles: cfg,
		Settings: cfg.Pipeline,
		Logger:   logger.With("component", "pipeline"),
	})
	return nil
}

func pageLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Run executes the selected stages for each profile; no profile means the default one.
func (a *Application) Run(ctx context.Context, profiles []string, stages usecase.Stages) ([]usecase.RunReport, error) {
	if len(profiles) == 0 {
		profiles = []string{a.cfg.Pipeline.DefaultProfile}
	}
	return a.pipeline.RunAll(ctx, profiles, stages)
}

// Schedule runs the full pipeline for every feed profile on the cron schedule
// until ctx is cancelled, serving metrics alongside when enabled.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"))
	if err != nil {
		return err
	}
	profiles := a.cfg.FeedProfiles()
	if len(profiles) == 0 {
		return errors.New("no profile has feeds configured")
	}
	sched := usecase.NewScheduler(driver, a.pipeline, profiles, a.logger.With("component", "scheduler"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	if a.cfg.Metrics.Enabled {
		srv := a.metrics.NewServer(a.cfg.Metrics.Addr)
		g.Go(func() error {
			a.logger.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// AddURL stores one page under profile, or under the manual profile when empty.
func (a *Application) AddURL(ctx context.Context, url, profile string) (usecase.AddURLResult, error) {
	if profile == "" {
		profile = a.cfg.Pipeline.ManualProfile
	}
	return a.ingestor.AddURL(ctx, url, profile)
}

// ListBriefs returns stored briefs, newest first. An empty profile lists all.
func (a *Application) ListBriefs(ctx context.Context, profile string) ([]domain.Brief, error) {
	return a.repo.ListBriefs(ctx, profile)
}

// GetBrief loads one brief by id.
func (a *Application) GetBrief(ctx context.Context, id int64) (domain.Brief, error) {
	return a.repo.GetBrief(ctx, id)
}

// GetArticle loads one stored article by id.
func (a *Application) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	return a.repo.GetArticle(ctx, id)
}

// Profiles lists profiles present in storage.
func (a *Application) Profiles(ctx context.Context) ([]string, error) {
	return a.repo.Profiles(ctx)
}

// Migrate copies every article and brief from another store into the configured one.
func (a *Application) Migrate(ctx context.Context, fromDriver, fromDSN string) (storage.CopyStats, error) {
	src, err := storage.Open(ctx, storage.Options{Driver: fromDriver, DSN: fromDSN, DefaultProfile: a.cfg.Pipeline.DefaultProfile})
	if err != nil {
		return storage.CopyStats{}, fmt.Errorf("open source store: %w", err)
	}
	defer src.Close()
	return storage.Copy(ctx, src, a.repo, a.logger.With("component", "migrate"))
}

// Close releases storage and flushes the event writer.
func (a *Application) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	errs = append(errs, a.repo.Close())
	return errors.Join(errs...)
}
