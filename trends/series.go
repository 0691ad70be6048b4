package trends

import (
	"sort"
	"time"

	"pulsegraph/domain"
)

// TokenCount is a token with its post count in a window.
type TokenCount struct {
	Name  string
	Count int
}

// TrendingTokens returns the most frequent tokens of the window, ranked
// by count descending then name ascending, capped at limit. Unlike
// Detect it applies no minimum volume: single-occurrence tokens show up.
// Malformed posts are skipped silently.
func (a *Aggregator) TrendingTokens(posts []domain.Post, window domain.Window, limit int) ([]TokenCount, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, post := range posts {
		if post.Validate() != nil || !window.Contains(post.PostedAt) {
			continue
		}
		for _, token := range a.tokensOf(post) {
			counts[token]++
		}
	}

	ranked := make([]TokenCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, TokenCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SentimentPoint is one bucket of per-label post counts.
type SentimentPoint struct {
	BucketStart time.Time
	Counts      map[string]int
}

// SentimentSeries buckets the window posts by sentiment label. Posts
// without a label are not counted. Buckets without labeled posts carry
// an empty map.
func (a *Aggregator) SentimentSeries(posts []domain.Post, window domain.Window) ([]SentimentPoint, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	byBucket := make(map[time.Time]map[string]int)
	for _, post := range posts {
		if post.Validate() != nil || !window.Contains(post.PostedAt) || post.SentimentLabel == "" {
			continue
		}
		bucket := a.bucketStart(window, post.PostedAt)
		if byBucket[bucket] == nil {
			byBucket[bucket] = make(map[string]int)
		}
		byBucket[bucket][post.SentimentLabel]++
	}

	var points []SentimentPoint
	for start := window.Start; start.Before(window.End); start = start.Add(a.bucketWidth) {
		counts := byBucket[start]
		if counts == nil {
			counts = map[string]int{}
		}
		points = append(points, SentimentPoint{BucketStart: start, Counts: counts})
	}
	return points, nil
}

// VolumeSeries buckets the window's total post counts, token-independent.
func (a *Aggregator) VolumeSeries(posts []domain.Post, window domain.Window) ([]domain.TrendPoint, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]int)
	for _, post := range posts {
		if post.Validate() != nil || !window.Contains(post.PostedAt) {
			continue
		}
		buckets[a.bucketStart(window, post.PostedAt)]++
	}
	return a.series(window, buckets), nil
}
