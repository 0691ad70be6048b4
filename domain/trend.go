package domain

import "time"

// TrendStatus is the lifecycle state of a detected trend.
type TrendStatus string

const (
	TrendStatusActive    TrendStatus = "active"
	TrendStatusDeclining TrendStatus = "declining"
	TrendStatusEnded     TrendStatus = "ended"
)

// TrendPoint is one bucket of a trend's time series.
type TrendPoint struct {
	BucketStart time.Time
	Count       int
}

// AuthorActivity is an author's contribution to a trend within the window.
type AuthorActivity struct {
	AuthorID  string
	PostCount int
}

// Trend is a scored trending token (hashtag or keyword) over a window.
// Trends are owned by the caller once returned; the core keeps no state
// across detection runs.
type Trend struct {
	ID   string
	Name string

	// Volume is the total post count in the window.
	Volume int
	// GrowthRate is the relative change versus the previous window.
	GrowthRate float64
	// Velocity is the change between the two most recent buckets,
	// expressed per hour.
	Velocity float64
	// PeakTime is the start of the bucket with the highest count;
	// ties go to the earliest bucket.
	PeakTime time.Time

	// SentimentDistribution maps sentiment label to its proportion of
	// labeled posts. Proportions sum to 1; empty when no post in the
	// window carried a label.
	SentimentDistribution map[string]float64

	TimeSeries []TrendPoint
	TopAuthors []AuthorActivity
	TopPosts   []string

	Status TrendStatus
}
