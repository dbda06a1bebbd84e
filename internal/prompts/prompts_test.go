package prompts

import (
	"strings"
	"testing"

	"Meridiano/internal/config"
)

func TestNewBookFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	book := NewBook(config.PromptSet{ImpactRating: "Rate: {summary}"})

	got := book.ArticleSummary("body text")
	if !strings.HasSuffix(got, "Article:\nbody text") || strings.Contains(got, ArticleContent) {
		t.Fatalf("default summary template not rendered: %q", got)
	}
	if got := book.ImpactRating("a summary"); got != "Rate: a summary" {
		t.Fatalf("override not used: %q", got)
	}
}

func TestBlankOverrideCountsAsMissing(t *testing.T) {
	t.Parallel()

	book := NewBook(config.PromptSet{ArticleSummary: "  \n"})
	if !strings.Contains(book.ArticleSummary("x"), "Summarize the key points") {
		t.Fatalf("blank override should fall back to default")
	}
}

func TestClusterAnalysisSubstitutesProfile(t *testing.T) {
	t.Parallel()

	got := NewBook(config.PromptSet{}).ClusterAnalysis("- one\n\n- two", "tech")
	if !strings.Contains(got, "from a 'tech' context") {
		t.Fatalf("profile not substituted: %q", got)
	}
	if !strings.Contains(got, "- one\n\n- two") {
		t.Fatalf("summaries not substituted: %q", got)
	}
}

func TestSynthesisAppendsContentWhenPlaceholderMissing(t *testing.T) {
	t.Parallel()

	book := NewBook(config.PromptSet{BriefSynthesis: "Write a brief for {feed_profile}.\n"})
	got := book.BriefSynthesis("--- Cluster 1 (3 articles) ---\nAnalysis: x\n\n", "infosec")
	want := "Write a brief for infosec.\n\n--- Cluster 1 (3 articles) ---\nAnalysis: x\n\n"
	if got != want {
		t.Fatalf("unexpected render:\n%q\nwant\n%q", got, want)
	}
}

func TestArticlePromptsAppendContentWhenPlaceholderMissing(t *testing.T) {
	t.Parallel()

	book := NewBook(config.PromptSet{
		ArticleSummary: "Summarize for {feed_profile}.",
		ImpactRating:   "Rate this from 1 to 10.\n",
	})
	if got, want := book.ArticleSummary("Chip plant opens."), "Summarize for {feed_profile}.\n\nChip plant opens."; got != want {
		t.Fatalf("ArticleSummary = %q, want %q", got, want)
	}
	if got, want := book.ImpactRating("Storm hits coast."), "Rate this from 1 to 10.\n\nStorm hits coast."; got != want {
		t.Fatalf("ImpactRating = %q, want %q", got, want)
	}
}

func TestBuiltinProfilesRenderCleanly(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	for _, name := range cfg.FeedProfiles() {
		p, _ := cfg.Profile(name)
		book := NewBook(p.Prompts)
		rendered := []string{
			book.ArticleSummary("content"),
			book.ImpactRating("summary"),
			book.ClusterAnalysis("summaries", name),
			book.BriefSynthesis("analyses", name),
		}
		for _, r := range rendered {
			for _, ph := range []string{ArticleContent, Summary, ClusterSummariesText, ClusterAnalysesText, FeedProfile} {
				if strings.Contains(r, ph) {
					t.Fatalf("profile %s left placeholder %s in %q", name, ph, r)
				}
			}
		}
	}
}
