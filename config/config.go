// Package config loads and validates the tuning knobs of the analytics
// core: engine parameters, trend aggregation settings and the scoring
// breaker. Sources are layered lowest to highest priority: built-in
// defaults, a YAML file, then environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pulsegraph/analysis"
	apperrors "pulsegraph/pkg/errors"
	"pulsegraph/scoring"
	"pulsegraph/trends"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "PULSEGRAPH_"

// Config is the full configuration of the analytics core.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Trends   TrendsConfig   `yaml:"trends"`
	Scoring  ScoringConfig  `yaml:"scoring"`
}

// AnalysisConfig tunes the metrics engine.
type AnalysisConfig struct {
	Damping              float64 `yaml:"damping"`
	Tolerance            float64 `yaml:"tolerance"`
	MaxIterations        int     `yaml:"max_iterations"`
	Workers              int     `yaml:"workers"`
	WeightedPaths        bool    `yaml:"weighted_paths"`
	WeightedDegree       bool    `yaml:"weighted_degree"`
	NormalizeBetweenness bool    `yaml:"normalize_betweenness"`
	CommunityMaxSweeps   int     `yaml:"community_max_sweeps"`
	Seed                 int64   `yaml:"seed"`
}

// TrendsConfig tunes the trend aggregator.
type TrendsConfig struct {
	BucketWidth time.Duration `yaml:"bucket_width"`
	MinVolume   int           `yaml:"min_volume"`
	TopAuthors  int           `yaml:"top_authors"`
	TopPosts    int           `yaml:"top_posts"`

	// Sources lists the token sources: "hashtags", "keywords".
	Sources []string `yaml:"sources"`
}

// ScoringConfig tunes the circuit breaker around the scoring boundary.
type ScoringConfig struct {
	BreakerName      string        `yaml:"breaker_name"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// Default returns the built-in configuration: the defaults of each
// package, spelled out so a dumped config file documents itself.
func Default() Config {
	return Config{
		Analysis: AnalysisConfig{
			Damping:            0.85,
			Tolerance:          1e-6,
			MaxIterations:      100,
			CommunityMaxSweeps: 50,
			Seed:               1,
		},
		Trends: TrendsConfig{
			BucketWidth: time.Hour,
			MinVolume:   5,
			TopAuthors:  10,
			TopPosts:    10,
			Sources:     []string{"hashtags", "keywords"},
		},
		Scoring: ScoringConfig{
			BreakerName:      "scoring",
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path if
// it exists, and environment variables, then validates the result. An
// empty path skips the file layer entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults + env
		case err != nil:
			return nil, apperrors.Wrap(err, "read config file")
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, apperrors.NewValidationf("parse config file %s: %v", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables, the highest-priority source.
func applyEnv(cfg *Config) {
	if v, ok := envFloat("ANALYSIS_DAMPING"); ok {
		cfg.Analysis.Damping = v
	}
	if v, ok := envFloat("ANALYSIS_TOLERANCE"); ok {
		cfg.Analysis.Tolerance = v
	}
	if v, ok := envInt("ANALYSIS_MAX_ITERATIONS"); ok {
		cfg.Analysis.MaxIterations = v
	}
	if v, ok := envInt("ANALYSIS_WORKERS"); ok {
		cfg.Analysis.Workers = v
	}
	if v, ok := envBool("ANALYSIS_WEIGHTED_PATHS"); ok {
		cfg.Analysis.WeightedPaths = v
	}
	if v, ok := envBool("ANALYSIS_WEIGHTED_DEGREE"); ok {
		cfg.Analysis.WeightedDegree = v
	}
	if v, ok := envBool("ANALYSIS_NORMALIZE_BETWEENNESS"); ok {
		cfg.Analysis.NormalizeBetweenness = v
	}
	if v, ok := envInt("ANALYSIS_COMMUNITY_MAX_SWEEPS"); ok {
		cfg.Analysis.CommunityMaxSweeps = v
	}

	if v, ok := envDuration("TRENDS_BUCKET_WIDTH"); ok {
		cfg.Trends.BucketWidth = v
	}
	if v, ok := envInt("TRENDS_MIN_VOLUME"); ok {
		cfg.Trends.MinVolume = v
	}
	if v, ok := envInt("TRENDS_TOP_AUTHORS"); ok {
		cfg.Trends.TopAuthors = v
	}
	if v, ok := envInt("TRENDS_TOP_POSTS"); ok {
		cfg.Trends.TopPosts = v
	}
	if v := os.Getenv(envPrefix + "TRENDS_SOURCES"); v != "" {
		cfg.Trends.Sources = strings.Split(v, ",")
	}

	if v, ok := envDuration("SCORING_TIMEOUT"); ok {
		cfg.Scoring.Timeout = v
	}
	if v, ok := envFloat("SCORING_FAILURE_THRESHOLD"); ok {
		cfg.Scoring.FailureThreshold = v
	}
}

// Validate rejects values the packages would silently ignore, so a bad
// config file fails loudly instead of falling back to defaults.
func (c *Config) Validate() error {
	if c.Analysis.Damping <= 0 || c.Analysis.Damping >= 1 {
		return apperrors.NewValidationf("analysis.damping must be in (0,1), got %v", c.Analysis.Damping)
	}
	if c.Analysis.Tolerance <= 0 {
		return apperrors.NewValidationf("analysis.tolerance must be positive, got %v", c.Analysis.Tolerance)
	}
	if c.Analysis.MaxIterations <= 0 {
		return apperrors.NewValidationf("analysis.max_iterations must be positive, got %d", c.Analysis.MaxIterations)
	}
	if c.Analysis.CommunityMaxSweeps <= 0 {
		return apperrors.NewValidationf("analysis.community_max_sweeps must be positive, got %d", c.Analysis.CommunityMaxSweeps)
	}
	if c.Trends.BucketWidth <= 0 {
		return apperrors.NewValidationf("trends.bucket_width must be positive, got %v", c.Trends.BucketWidth)
	}
	if c.Trends.MinVolume < 0 {
		return apperrors.NewValidationf("trends.min_volume must not be negative, got %d", c.Trends.MinVolume)
	}
	if _, err := c.Trends.sources(); err != nil {
		return err
	}
	if c.Scoring.FailureThreshold <= 0 || c.Scoring.FailureThreshold > 1 {
		return apperrors.NewValidationf("scoring.failure_threshold must be in (0,1], got %v", c.Scoring.FailureThreshold)
	}
	return nil
}

// EngineOptions converts the analysis section into engine options.
func (c AnalysisConfig) EngineOptions() []analysis.Option {
	opts := []analysis.Option{
		analysis.WithDamping(c.Damping),
		analysis.WithTolerance(c.Tolerance),
		analysis.WithMaxIterations(c.MaxIterations),
		analysis.WithWeightedPaths(c.WeightedPaths),
		analysis.WithNormalizedBetweenness(c.NormalizeBetweenness),
		analysis.WithCommunitySweeps(c.CommunityMaxSweeps),
		analysis.WithSeed(c.Seed),
	}
	if c.Workers > 0 {
		opts = append(opts, analysis.WithWorkers(c.Workers))
	}
	if c.WeightedDegree {
		opts = append(opts, analysis.WithDegreeMode(analysis.DegreeWeighted))
	}
	return opts
}

// AggregatorOptions converts the trends section into aggregator options.
func (c TrendsConfig) AggregatorOptions() ([]trends.Option, error) {
	source, err := c.sources()
	if err != nil {
		return nil, err
	}
	return []trends.Option{
		trends.WithBucketWidth(c.BucketWidth),
		trends.WithMinVolume(c.MinVolume),
		trends.WithTopAuthors(c.TopAuthors),
		trends.WithTopPosts(c.TopPosts),
		trends.WithSources(source),
	}, nil
}

func (c TrendsConfig) sources() (trends.Source, error) {
	var source trends.Source
	for _, name := range c.Sources {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "hashtags":
			source |= trends.SourceHashtags
		case "keywords":
			source |= trends.SourceKeywords
		case "":
		default:
			return 0, apperrors.NewValidationf("trends.sources: unknown source %q", name)
		}
	}
	if source == 0 {
		return 0, apperrors.NewValidation("trends.sources must name at least one of hashtags, keywords")
	}
	return source, nil
}

// GuardConfig converts the scoring section into a breaker config.
func (c ScoringConfig) GuardConfig() scoring.GuardConfig {
	return scoring.GuardConfig{
		Name:             c.BreakerName,
		MaxRequests:      c.MaxRequests,
		Interval:         c.Interval,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
		MinRequests:      c.MinRequests,
	}
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	return v, err == nil
}

func envDuration(key string) (time.Duration, bool) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	return v, err == nil
}
