// Package trends turns batches of posts into ranked trend records:
// time-bucketed token statistics, growth against the preceding window,
// velocity between the two most recent buckets and an
// active/declining/ended lifecycle. Tokens come from hashtags, caller
// attached keywords, or both.
package trends

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pulsegraph/domain"
	apperrors "pulsegraph/pkg/errors"
	"pulsegraph/pkg/observability"
)

// Source selects which post fields feed tokens into detection.
type Source int

const (
	SourceHashtags Source = 1 << iota
	SourceKeywords
)

// Aggregator computes trend statistics over post batches. It keeps no
// state between Detect calls and is safe for concurrent use.
type Aggregator struct {
	logger    *zap.Logger
	collector *observability.Collector
	tracer    trace.Tracer

	bucketWidth time.Duration
	minVolume   int
	topAuthors  int
	topPosts    int
	sources     Source
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBucketWidth sets the time-series bucket width; the default is one
// hour.
func WithBucketWidth(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.bucketWidth = d
		}
	}
}

// WithMinVolume sets the minimum window volume a token needs to become a
// trend. Tokens exactly at the threshold are kept.
func WithMinVolume(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.minVolume = n
		}
	}
}

// WithTopAuthors caps the TopAuthors list per trend.
func WithTopAuthors(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.topAuthors = n
		}
	}
}

// WithTopPosts caps the TopPosts list per trend.
func WithTopPosts(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.topPosts = n
		}
	}
}

// WithSources selects the token sources, e.g. SourceHashtags alone or
// SourceHashtags|SourceKeywords.
func WithSources(s Source) Option {
	return func(a *Aggregator) {
		if s != 0 {
			a.sources = s
		}
	}
}

// WithAggregatorLogger sets the logger; the default is a no-op logger.
func WithAggregatorLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAggregatorCollector attaches Prometheus instrumentation.
func WithAggregatorCollector(c *observability.Collector) Option {
	return func(a *Aggregator) {
		a.collector = c
	}
}

// NewAggregator creates an aggregator with the defaults: one-hour
// buckets, minimum volume 5, ten top authors and posts, hashtags and
// keywords as token sources.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("pulsegraph/trends"),
		bucketWidth: time.Hour,
		minVolume:   5,
		topAuthors:  10,
		topPosts:    10,
		sources:     SourceHashtags | SourceKeywords,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report describes one detection run: how many posts were read and which
// records were skipped, each with the reason.
type Report struct {
	PostsProcessed int
	Skipped        []apperrors.RecordError
}

func (r *Report) skip(recordID string, err error) {
	r.Skipped = append(r.Skipped, apperrors.RecordError{RecordID: recordID, Err: err})
}

// tokenStats accumulates per-token counts during one detection run.
type tokenStats struct {
	volume     int
	prevVolume int
	buckets    map[time.Time]int
	sentiment  map[string]int
	authors    map[string]int
	posts      []postRef
}

type postRef struct {
	id string
	at time.Time
}

// Detect computes ranked trends for the window. Posts outside the window
// and its immediately preceding window of equal length are ignored;
// malformed posts are skipped into the report. Tokens below the minimum
// volume are dropped silently. The returned slice is ordered by volume
// descending, then growth rate descending, then name ascending.
func (a *Aggregator) Detect(ctx context.Context, posts []domain.Post, window domain.Window) ([]domain.Trend, *Report, error) {
	started := time.Now()
	if err := window.Validate(); err != nil {
		return nil, nil, err
	}

	_, span := a.tracer.Start(ctx, "Detect",
		trace.WithAttributes(attribute.Int("posts", len(posts))))
	defer span.End()

	report := &Report{}
	previous := window.Previous()
	stats := make(map[string]*tokenStats)

	for _, post := range posts {
		if err := post.Validate(); err != nil {
			report.skip(post.ID, err)
			continue
		}
		report.PostsProcessed++

		inWindow := window.Contains(post.PostedAt)
		inPrevious := previous.Contains(post.PostedAt)
		if !inWindow && !inPrevious {
			continue
		}

		for _, token := range a.tokensOf(post) {
			ts := stats[token]
			if ts == nil {
				ts = &tokenStats{
					buckets:   make(map[time.Time]int),
					sentiment: make(map[string]int),
					authors:   make(map[string]int),
				}
				stats[token] = ts
			}
			if inPrevious {
				ts.prevVolume++
				continue
			}
			ts.volume++
			ts.buckets[a.bucketStart(window, post.PostedAt)]++
			ts.authors[post.AuthorID]++
			ts.posts = append(ts.posts, postRef{id: post.ID, at: post.PostedAt})
			if post.SentimentLabel != "" {
				ts.sentiment[post.SentimentLabel]++
			}
		}
	}

	trends := make([]domain.Trend, 0, len(stats))
	for token, ts := range stats {
		if ts.volume < a.minVolume || ts.volume == 0 {
			continue
		}
		trends = append(trends, a.assemble(token, ts, window))
	}

	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Volume != trends[j].Volume {
			return trends[i].Volume > trends[j].Volume
		}
		if trends[i].GrowthRate != trends[j].GrowthRate {
			return trends[i].GrowthRate > trends[j].GrowthRate
		}
		return trends[i].Name < trends[j].Name
	})

	a.collector.ObserveTrendRun(len(trends), len(report.Skipped))
	a.logger.Info("trend detection finished",
		zap.Int("posts", report.PostsProcessed),
		zap.Int("trends", len(trends)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return trends, report, nil
}

// assemble builds one Trend from accumulated stats.
func (a *Aggregator) assemble(token string, ts *tokenStats, window domain.Window) domain.Trend {
	series := a.series(window, ts.buckets)

	peak := series[0]
	for _, p := range series[1:] {
		if p.Count > peak.Count {
			peak = p
		}
	}

	velocity := 0.0
	if len(series) >= 2 {
		last := series[len(series)-1].Count
		prior := series[len(series)-2].Count
		velocity = float64(last-prior) / a.bucketWidth.Hours()
	}

	growth := float64(ts.volume-ts.prevVolume) / float64(max(ts.prevVolume, 1))

	var sentiment map[string]float64
	labeled := 0
	for _, count := range ts.sentiment {
		labeled += count
	}
	if labeled > 0 {
		sentiment = make(map[string]float64, len(ts.sentiment))
		for label, count := range ts.sentiment {
			sentiment[label] = float64(count) / float64(labeled)
		}
	}

	return domain.Trend{
		ID:                    uuid.NewString(),
		Name:                  token,
		Volume:                ts.volume,
		GrowthRate:            growth,
		Velocity:              velocity,
		PeakTime:              peak.BucketStart,
		SentimentDistribution: sentiment,
		TimeSeries:            series,
		TopAuthors:            topAuthors(ts.authors, a.topAuthors),
		TopPosts:              topPosts(ts.posts, a.topPosts),
		Status:                domain.TrendStatusActive,
	}
}

// series expands the bucket counts into the full ascending time series of
// the window, zero-count buckets included.
func (a *Aggregator) series(window domain.Window, buckets map[time.Time]int) []domain.TrendPoint {
	var points []domain.TrendPoint
	for start := window.Start; start.Before(window.End); start = start.Add(a.bucketWidth) {
		points = append(points, domain.TrendPoint{BucketStart: start, Count: buckets[start]})
	}
	return points
}

// bucketStart aligns a timestamp to its bucket within the window.
func (a *Aggregator) bucketStart(window domain.Window, t time.Time) time.Time {
	offset := t.Sub(window.Start)
	return window.Start.Add(offset - offset%a.bucketWidth)
}

// tokensOf extracts the normalized, deduplicated tokens of a post from
// the configured sources.
func (a *Aggregator) tokensOf(post domain.Post) []string {
	var raw []string
	if a.sources&SourceHashtags != 0 {
		raw = append(raw, post.Hashtags...)
	}
	if a.sources&SourceKeywords != 0 {
		raw = append(raw, post.Keywords...)
	}
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, tag := range raw {
		token := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

func topAuthors(counts map[string]int, limit int) []domain.AuthorActivity {
	if len(counts) == 0 || limit == 0 {
		return nil
	}
	activity := make([]domain.AuthorActivity, 0, len(counts))
	for id, count := range counts {
		activity = append(activity, domain.AuthorActivity{AuthorID: id, PostCount: count})
	}
	sort.Slice(activity, func(i, j int) bool {
		if activity[i].PostCount != activity[j].PostCount {
			return activity[i].PostCount > activity[j].PostCount
		}
		return activity[i].AuthorID < activity[j].AuthorID
	})
	if len(activity) > limit {
		activity = activity[:limit]
	}
	return activity
}

func topPosts(refs []postRef, limit int) []string {
	if len(refs) == 0 || limit == 0 {
		return nil
	}
	sorted := make([]postRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].at.Equal(sorted[j].at) {
			return sorted[i].at.After(sorted[j].at)
		}
		return sorted[i].id < sorted[j].id
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	ids := make([]string, len(sorted))
	for i, ref := range sorted {
		ids[i] = ref.id
	}
	return ids
}
