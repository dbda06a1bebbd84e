package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"Meridiano/internal/config"
	"Meridiano/internal/prompts"
)

// ProfileResolver looks up a profile with its defaults applied. config.Config implements it.
type ProfileResolver interface {
	Profile(name string) (config.Profile, bool)
}

// Stages selects which parts of the pipeline run.
type Stages struct {
	Scrape   bool
	Process  bool
	Rate     bool
	Generate bool
}

// AllStages runs scrape, process, rate and generate.
func AllStages() Stages {
	return Stages{Scrape: true, Process: true, Rate: true, Generate: true}
}

// Any reports whether at least one stage is selected.
func (s Stages) Any() bool {
	return s.Scrape || s.Process || s.Rate || s.Generate
}

// PipelineDeps wires all stages into the orchestration pipeline.
type PipelineDeps struct {
	Ingestor *Ingestor
	Enricher *Enricher
	Rater    *Rater
	Briefer  *Briefer
	Profiles ProfileResolver
	Settings config.PipelineConfig
	Logger   *slog.Logger
}

// Pipeline runs the selected stages for one profile in fixed order.
type Pipeline struct {
	ingestor *Ingestor
	enricher *Enricher
	rater    *Rater
	briefer  *Briefer
	profiles ProfileResolver
	settings config.PipelineConfig
	logger   *slog.Logger
}

// RunReport collects per-stage results of one profile run.
type RunReport struct {
	RunID    string
	Profile  string
	Ingest   *IngestStats
	Enrich   *StageStats
	Rate     *StageStats
	Brief    *BriefResult
	Duration time.Duration
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		ingestor: deps.Ingestor,
		enricher: deps.Enricher,
		rater:    deps.Rater,
		briefer:  deps.Briefer,
		profiles: deps.Profiles,
		settings: deps.Settings,
		logger:   loggerOrDefault(deps.Logger),
	}
}

// Run executes stages for profile. An empty selection runs all of them.
// A stage error stops the remaining stages.
func (p *Pipeline) Run(ctx context.Context, profileName string, stages Stages) (RunReport, error) {
	if !stages.Any() {
		stages = AllStages()
	}
	report := RunReport{RunID: uuid.NewString(), Profile: profileName}
	started := time.Now()

	profile, ok := p.profiles.Profile(profileName)
	if !ok {
		return report, fmt.Errorf("unknown profile %q", profileName)
	}
	book := prompts.NewBook(profile.Prompts)
	logger := p.logger.With("run_id", report.RunID, "profile", profileName)
	ctx = withRunID(ctx, report.RunID)
	logger.Info("pipeline run started", "scrape", stages.Scrape, "process", stages.Process,
		"rate", stages.Rate, "generate", stages.Generate)

	if stages.Scrape && p.ingestor != nil {
		if len(profile.Feeds) == 0 {
			logger.Info("profile has no feeds, skipping scrape")
		} else {
			stats, err := p.ingestor.Run(ctx, profileName, profile.Feeds)
			report.Ingest = &stats
			if err != nil {
				return report, fmt.Errorf("scrape %s: %w", profileName, err)
			}
		}
	}
	if stages.Process && p.enricher != nil {
		stats, err := p.enricher.Run(ctx, profileName, book)
		report.Enrich = &stats
		if err != nil {
			return report, fmt.Errorf("process %s: %w", profileName, err)
		}
	}
	if stages.Rate && p.rater != nil {
		stats, err := p.rater.Run(ctx, profileName, book)
		report.Rate = &stats
		if err != nil {
			return report, fmt.Errorf("rate %s: %w", profileName, err)
		}
	}
	if stages.Generate && p.briefer != nil {
		res, err := p.briefer.Run(ctx, profileName, book, p.briefSettings(profile))
		report.Brief = &res
		if err != nil {
			return report, fmt.Errorf("generate brief %s: %w", profileName, err)
		}
	}

	report.Duration = time.Since(started)
	logger.Info("pipeline run finished", "elapsed", report.Duration.Round(time.Millisecond))
	return report, nil
}

// RunAll runs stages for every listed profile, continuing past failures.
func (p *Pipeline) RunAll(ctx context.Context, profiles []string, stages Stages) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(profiles))
	var firstErr error
	for _, name := range profiles {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := p.Run(ctx, name, stages)
		reports = append(reports, report)
		if err != nil {
			p.logger.Error("pipeline run failed", "profile", name, "run_id", report.RunID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return reports, firstErr
}

func (p *Pipeline) briefSettings(profile config.Profile) BriefSettings {
	return BriefSettings{
		Lookback:         p.settings.Lookback(),
		MinArticles:      p.settings.MinArticlesToBrief,
		TargetClusters:   profile.TargetClusters,
		ClusterSample:    profile.ClusterSample,
		TopClusters:      profile.TopClusters,
		UnrelatedMarkers: profile.UnrelatedMarkers,
	}
}
