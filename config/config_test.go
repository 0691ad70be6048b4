package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pulsegraph/pkg/errors"
	"pulsegraph/trends"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.Analysis.Damping, 1e-9)
	assert.Equal(t, 100, cfg.Analysis.MaxIterations)
	assert.Equal(t, time.Hour, cfg.Trends.BucketWidth)
	assert.Equal(t, 5, cfg.Trends.MinVolume)
	assert.Equal(t, uint32(5), cfg.Scoring.MinRequests)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.InDelta(t, 0.85, cfg.Analysis.Damping, 1e-9)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
analysis:
  damping: 0.9
  max_iterations: 200
trends:
  bucket_width: 30m
  min_volume: 3
  sources: [hashtags]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cfg.Analysis.Damping, 1e-9)
	assert.Equal(t, 200, cfg.Analysis.MaxIterations)
	assert.Equal(t, 30*time.Minute, cfg.Trends.BucketWidth)
	assert.Equal(t, 3, cfg.Trends.MinVolume)
	assert.Equal(t, []string{"hashtags"}, cfg.Trends.Sources)

	// file-untouched sections keep defaults
	assert.Equal(t, 1e-6, cfg.Analysis.Tolerance)
	assert.Equal(t, 10, cfg.Trends.TopAuthors)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "analysis:\n  damping: 0.9\n")
	t.Setenv("PULSEGRAPH_ANALYSIS_DAMPING", "0.7")
	t.Setenv("PULSEGRAPH_TRENDS_MIN_VOLUME", "2")
	t.Setenv("PULSEGRAPH_TRENDS_SOURCES", "keywords")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.Analysis.Damping, 1e-9)
	assert.Equal(t, 2, cfg.Trends.MinVolume)
	assert.Equal(t, []string{"keywords"}, cfg.Trends.Sources)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"damping out of range", "analysis:\n  damping: 1.5\n"},
		{"negative min volume", "trends:\n  min_volume: -1\n"},
		{"unknown source", "trends:\n  sources: [emoji]\n"},
		{"zero bucket width", "trends:\n  bucket_width: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "analysis: ["))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAggregatorOptionsSources(t *testing.T) {
	cfg := Default()
	cfg.Trends.Sources = []string{"hashtags", "keywords"}
	source, err := cfg.Trends.sources()
	require.NoError(t, err)
	assert.Equal(t, trends.SourceHashtags|trends.SourceKeywords, source)

	opts, err := cfg.Trends.AggregatorOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 5)
}

func TestEngineOptionsApply(t *testing.T) {
	cfg := Default()
	cfg.Analysis.Workers = 4
	cfg.Analysis.WeightedDegree = true
	assert.Len(t, cfg.Analysis.EngineOptions(), 9)
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, "analysis:\n  damping: 0.8\n")

	watcher, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.InDelta(t, 0.8, watcher.Current().Analysis.Damping, 1e-9)

	changed := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) { changed <- cfg })

	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  damping: 0.6\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.InDelta(t, 0.6, cfg.Analysis.Damping, 1e-9)
		assert.InDelta(t, 0.6, watcher.Current().Analysis.Damping, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not invoked")
	}
}

func TestWatcherKeepsPreviousOnInvalidReload(t *testing.T) {
	path := writeConfig(t, "analysis:\n  damping: 0.8\n")

	watcher, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  damping: 7\n"), 0o644))

	// give the debounced reload time to run and be rejected
	time.Sleep(2 * debounceDelay)
	assert.InDelta(t, 0.8, watcher.Current().Analysis.Damping, 1e-9)
}
