package config

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

const (
	defaultTargetClusters = 10
	defaultClusterSample  = 10
	defaultTopClusters    = 10
)

// Profile is a named feed set with its prompt overrides and clustering knobs.
type Profile struct {
	Feeds   []string  `yaml:"feeds"`
	Prompts PromptSet `yaml:"prompts"`
	// TargetClusters caps k before the n/2 floor is applied.
	TargetClusters int `yaml:"target_clusters"`
	// ClusterSample is how many member summaries go into one cluster analysis.
	ClusterSample int `yaml:"cluster_sample"`
	// TopClusters is how many ranked clusters reach the synthesis prompt.
	TopClusters      int      `yaml:"top_clusters"`
	UnrelatedMarkers []string `yaml:"unrelated_markers"`
}

// PromptSet holds optional template overrides; empty fields fall back to the defaults.
type PromptSet struct {
	ArticleSummary  string `yaml:"article_summary"`
	ImpactRating    string `yaml:"impact_rating"`
	ClusterAnalysis string `yaml:"cluster_analysis"`
	BriefSynthesis  string `yaml:"brief_synthesis"`
}

func (p Profile) withDefaults() Profile {
	if p.TargetClusters <= 0 {
		p.TargetClusters = defaultTargetClusters
	}
	if p.ClusterSample <= 0 {
		p.ClusterSample = defaultClusterSample
	}
	if p.TopClusters <= 0 {
		p.TopClusters = defaultTopClusters
	}
	if len(p.UnrelatedMarkers) == 0 {
		p.UnrelatedMarkers = []string{defaultUnrelatedWord}
	}
	return p
}

func builtinProfiles() (map[string]Profile, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("read builtin profiles: %w", err)
	}

	profiles := make(map[string]Profile, len(entries))
	for _, entry := range entries {
		raw, err := profileFS.ReadFile(path.Join("profiles", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read profile %s: %w", entry.Name(), err)
		}
		var p Profile
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", entry.Name(), err)
		}
		profiles[strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))] = p
	}
	return profiles, nil
}
