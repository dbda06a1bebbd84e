// Package prompts holds the default model templates and renders them with
// per-profile overrides.
package prompts

import (
	"strings"

	"Meridiano/internal/config"
)

// Placeholders recognised inside templates.
const (
	ArticleContent       = "{article_content}"
	Summary              = "{summary}"
	ClusterSummariesText = "{cluster_summaries_text}"
	ClusterAnalysesText  = "{cluster_analyses_text}"
	FeedProfile          = "{feed_profile}"
)

// AnalystSystemPrompt is sent with every cluster analysis request.
const AnalystSystemPrompt = "You are an intelligence analyst identifying key news themes."

const defaultArticleSummary = `Summarize the key points of this news article objectively in 2-4 sentences.
Identify the main topics covered.

Article:
{article_content}`

const defaultImpactRating = `Analyze the following news summary and estimate its overall impact. Consider factors like geographic scope (local vs global), number of people affected, severity, and potential long-term consequences.

Rate the impact on a scale of 1 to 10, where:
1-2: Minor, niche, or local interest.
3-4: Notable event for a specific region or community.
5-6: Significant event with broader regional or moderate international implications.
7-8: Major event with significant international importance or wide-reaching effects.
9-10: Critical global event with severe, widespread, or potentially historic implications.

Summary:
"{summary}"

Output ONLY the integer number representing your rating (1-10).`

const defaultClusterAnalysis = `These are summaries of potentially related news articles from a '{feed_profile}' context:

{cluster_summaries_text}

What is the core event or topic discussed? Summarize the key developments and significance in 3-5 sentences based *only* on the provided text. If the articles seem unrelated, state that clearly.`

const defaultBriefSynthesis = `You are an AI assistant writing a Presidential-style daily intelligence briefing using Markdown, specifically for the '{feed_profile}' category.
Synthesize the following analyzed news clusters into a coherent, high-level executive summary.
Start with the 2-3 most critical overarching themes globally or within this category based *only* on these inputs.
Then, provide concise bullet points summarizing key developments within the most significant clusters (roughly 3-5 clusters).
Maintain an objective, analytical tone relevant to the '{feed_profile}' context. Avoid speculation.

Analyzed News Clusters (Most significant first):
{cluster_analyses_text}`

// Book is the resolved template set of one profile.
type Book struct {
	articleSummary  string
	impactRating    string
	clusterAnalysis string
	briefSynthesis  string
}

// NewBook resolves each template as override else default.
func NewBook(overrides config.PromptSet) Book {
	return Book{
		articleSummary:  pick(overrides.ArticleSummary, defaultArticleSummary),
		impactRating:    pick(overrides.ImpactRating, defaultImpactRating),
		clusterAnalysis: pick(overrides.ClusterAnalysis, defaultClusterAnalysis),
		briefSynthesis:  pick(overrides.BriefSynthesis, defaultBriefSynthesis),
	}
}

// ArticleSummary renders the summarization prompt; content is appended when
// the template has no slot for it.
func (b Book) ArticleSummary(content string) string {
	return strings.NewReplacer(ArticleContent, content).Replace(withSlot(b.articleSummary, ArticleContent))
}

// ImpactRating renders the 1-10 rating prompt; the summary is appended when
// the template has no slot for it.
func (b Book) ImpactRating(summary string) string {
	return strings.NewReplacer(Summary, summary).Replace(withSlot(b.impactRating, Summary))
}

// ClusterAnalysis renders the per-cluster prompt; summaries are appended when
// the template has no slot for them.
func (b Book) ClusterAnalysis(summaries, profile string) string {
	return renderWithContent(b.clusterAnalysis, ClusterSummariesText, summaries, profile)
}

// BriefSynthesis renders the final digest prompt; analyses are appended when
// the template has no slot for them.
func (b Book) BriefSynthesis(analyses, profile string) string {
	return renderWithContent(b.briefSynthesis, ClusterAnalysesText, analyses, profile)
}

func renderWithContent(tmpl, placeholder, content, profile string) string {
	return strings.NewReplacer(placeholder, content, FeedProfile, profile).Replace(withSlot(tmpl, placeholder))
}

func withSlot(tmpl, placeholder string) string {
	if strings.Contains(tmpl, placeholder) {
		return tmpl
	}
	return strings.TrimRight(tmpl, "\n") + "\n\n" + placeholder
}

func pick(override, fallback string) string {
	if strings.TrimSpace(override) == "" {
		return fallback
	}
	return override
}
