package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"Meridiano/internal/app"
	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/logging"
	"Meridiano/internal/usecase"
)

var rootCmd = &cobra.Command{
	Use:           "meridiano",
	Short:         "meridiano - RSS news briefings clustered and written by an LLM",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline stages once (all stages when none is selected)",
	RunE:  runStages,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the full pipeline for every feed profile on the configured cron schedule",
	RunE:  runSchedule,
}

var addURLCmd = &cobra.Command{
	Use:   "add-url <url>",
	Short: "Fetch one article page and store it",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddURL,
}

var briefsCmd = &cobra.Command{
	Use:   "briefs",
	Short: "Read stored briefs",
}

var briefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List briefs, newest first",
	RunE:  runBriefsList,
}

var briefsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one brief as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runBriefsShow,
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Read stored articles",
}

var articlesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one article with its summary and rating",
	Args:  cobra.ExactArgs(1),
	RunE:  runArticlesShow,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profiles that have articles or briefs",
	RunE:  runProfiles,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy articles and briefs from another store into the configured one",
	RunE:  runMigrate,
}

var (
	profileFlags []string
	stageFlags   usecase.Stages
	allFlag      bool
	addProfile   string
	listProfile  string
	fromDriver   string
	fromDSN      string
)

func init() {
	runCmd.Flags().StringSliceVarP(&profileFlags, "profile", "p", nil, "profile to run (repeatable; default profile when omitted)")
	runCmd.Flags().BoolVar(&stageFlags.Scrape, "scrape", false, "fetch new articles from feeds")
	runCmd.Flags().BoolVar(&stageFlags.Process, "process", false, "summarize and embed fetched articles")
	runCmd.Flags().BoolVar(&stageFlags.Rate, "rate", false, "rate the impact of processed articles")
	runCmd.Flags().BoolVar(&stageFlags.Generate, "generate", false, "cluster recent articles and write a brief")
	runCmd.Flags().BoolVar(&allFlag, "all", false, "run every stage")

	addURLCmd.Flags().StringVar(&addProfile, "profile", "", "profile to store the article under (manual profile by default)")
	briefsListCmd.Flags().StringVar(&listProfile, "profile", "", "only list briefs of this profile")
	migrateCmd.Flags().StringVar(&fromDriver, "from-driver", "sqlite", "source database driver")
	migrateCmd.Flags().StringVar(&fromDSN, "from-dsn", "meridian.db", "source database DSN")

	briefsCmd.AddCommand(briefsListCmd, briefsShowCmd)
	articlesCmd.AddCommand(articlesShowCmd)
	rootCmd.AddCommand(runCmd, scheduleCmd, addURLCmd, briefsCmd, articlesCmd, profilesCmd, migrateCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.Application, cfg config.Config, logger *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := cmd.Context()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()
	return fn(ctx, application, cfg, logger)
}

func selectedStages() usecase.Stages {
	if allFlag {
		return usecase.AllStages()
	}
	return stageFlags
}

func runStages(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, logger *slog.Logger) error {
		reports, err := application.Run(ctx, profileFlags, selectedStages())
		for _, r := range reports {
			printReport(cmd.OutOrStdout(), r)
		}
		return err
	})
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, cfg config.Config, logger *slog.Logger) error {
		logger.Info("starting scheduler", "cron", cfg.Scheduler.CronExpression, "timezone", cfg.Scheduler.Timezone,
			"profiles", cfg.FeedProfiles(), "metrics", cfg.Metrics.Enabled)
		return application.Schedule(ctx)
	})
}

func runAddURL(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		res, err := application.AddURL(ctx, args[0], addProfile)
		if err != nil {
			return err
		}
		if res.Inserted {
			fmt.Fprintf(cmd.OutOrStdout(), "added article %d: %s\n", res.ID, res.Title)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "article already stored as %d\n", res.ID)
		}
		return nil
	})
}

func runBriefsList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		briefs, err := application.ListBriefs(ctx, listProfile)
		if err != nil {
			return err
		}
		printBriefs(cmd.OutOrStdout(), briefs)
		return nil
	})
}

func runBriefsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid brief id %q", args[0])
	}
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		brief, err := application.GetBrief(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# Brief %d (%s, %s)\n\n%s\n", brief.ID, brief.Profile,
			brief.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), brief.Markdown)
		return nil
	})
}

func runArticlesShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid article id %q", args[0])
	}
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		article, err := application.GetArticle(ctx, id)
		if err != nil {
			return err
		}
		printArticle(cmd.OutOrStdout(), article)
		return nil
	})
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		profiles, err := application.Profiles(ctx)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ config.Config, _ *slog.Logger) error {
		stats, err := application.Migrate(ctx, fromDriver, fromDSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "articles: %d copied, %d skipped\nbriefs: %d copied, %d skipped\n",
			stats.ArticlesCopied, stats.ArticlesSkipped, stats.BriefsCopied, stats.BriefsSkipped)
		return nil
	})
}

func printReport(w io.Writer, r usecase.RunReport) {
	fmt.Fprintf(w, "profile %s (run %s)\n", r.Profile, r.RunID)
	if r.Ingest != nil {
		fmt.Fprintf(w, "  scrape:   %d added, %d already stored, %d skipped, %d feed errors\n",
			r.Ingest.Added, r.Ingest.Existing, r.Ingest.Skipped, r.Ingest.FeedErrors)
	}
	if r.Enrich != nil {
		fmt.Fprintf(w, "  process:  %d of %d processed\n", r.Enrich.Updated, r.Enrich.Candidates)
	}
	if r.Rate != nil {
		fmt.Fprintf(w, "  rate:     %d of %d rated\n", r.Rate.Updated, r.Rate.Candidates)
	}
	if r.Brief != nil {
		if r.Brief.Outcome.Produced() {
			fmt.Fprintf(w, "  generate: brief %d from %d articles\n", r.Brief.BriefID, r.Brief.Articles)
		} else {
			fmt.Fprintf(w, "  generate: skipped (%s)\n", r.Brief.Outcome)
		}
	}
}

func printBriefs(w io.Writer, briefs []domain.Brief) {
	if len(briefs) == 0 {
		fmt.Fprintln(w, "no briefs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROFILE\tGENERATED\tARTICLES")
	for _, b := range briefs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", b.ID, b.Profile, b.GeneratedAt.UTC().Format("2006-01-02 15:04"), len(b.ContributingArticleIDs))
	}
	_ = tw.Flush()
}

func printArticle(w io.Writer, a domain.Article) {
	fmt.Fprintf(w, "# %s\n\n", a.Title)
	fmt.Fprintf(w, "id:        %d\nprofile:   %s\nsource:    %s\nurl:       %s\npublished: %s\n",
		a.ID, a.Profile, a.Source, a.URL, a.PublishedAt.UTC().Format("2006-01-02 15:04"))
	if a.ImpactScore != nil {
		fmt.Fprintf(w, "impact:    %d\n", *a.ImpactScore)
	}
	if a.ProcessedAt == nil {
		fmt.Fprintln(w, "\nnot processed yet")
		return
	}
	fmt.Fprintf(w, "\n%s\n", a.SummaryText())
}
