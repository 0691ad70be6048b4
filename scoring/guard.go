// Package scoring defines the boundary to the external NLP scoring
// service. The core never runs inference: the caller supplies a
// ScoreFunc backed by its model client, and the Guard wraps it in a
// circuit breaker so a failing scoring service degrades trend detection
// instead of stalling it.
package scoring

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"pulsegraph/domain"
	apperrors "pulsegraph/pkg/errors"
)

// Result is the scoring output for one text.
type Result struct {
	SentimentLabel string
	SentimentScore float64
	Keywords       []string
	Emotions       map[string]float64
}

// ScoreFunc scores a batch of texts, one Result per input in order. It
// is supplied by the caller and may be arbitrarily slow or unreliable.
type ScoreFunc func(ctx context.Context, texts []string) ([]Result, error)

// GuardConfig tunes the circuit breaker around a ScoreFunc.
type GuardConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// FailureThreshold is the failure ratio that trips the breaker once
	// at least MinRequests calls have been observed.
	FailureThreshold float64
	MinRequests      uint32

	Logger *zap.Logger
}

// DefaultGuardConfig returns the default breaker tuning: trip at an 80%
// failure rate over at least 5 calls, retry half-open after a minute.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Guard wraps a ScoreFunc in a circuit breaker.
type Guard struct {
	fn      ScoreFunc
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGuard builds a guarded scoring boundary. Zero-value config fields
// fall back to the defaults.
func NewGuard(fn ScoreFunc, cfg GuardConfig) *Guard {
	defaults := DefaultGuardConfig(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "scoring"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = defaults.MinRequests
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("scoring breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Guard{fn: fn, breaker: breaker, logger: logger}
}

// Score calls the wrapped ScoreFunc through the breaker. When the breaker
// is open the call fails fast without reaching the scoring service.
func (g *Guard) Score(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out, err := g.breaker.Execute(func() (any, error) {
		results, err := g.fn(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(results) != len(texts) {
			return nil, apperrors.NewValidationf("scoring returned %d results for %d texts", len(results), len(texts))
		}
		return results, nil
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return nil, apperrors.NewInternal("scoring service unavailable", err)
		default:
			return nil, apperrors.Wrap(err, "scoring call failed")
		}
	}
	return out.([]Result), nil
}

// Attach scores the posts' content in one batch and writes the
// SentimentLabel and Keywords onto each post in place. Posts with empty
// content are left untouched. On failure no post is modified.
func (g *Guard) Attach(ctx context.Context, posts []domain.Post) error {
	indices := make([]int, 0, len(posts))
	texts := make([]string, 0, len(posts))
	for i, post := range posts {
		if post.Content == "" {
			continue
		}
		indices = append(indices, i)
		texts = append(texts, post.Content)
	}
	if len(texts) == 0 {
		return nil
	}

	results, err := g.Score(ctx, texts)
	if err != nil {
		return err
	}

	for pos, i := range indices {
		posts[i].SentimentLabel = results[pos].SentimentLabel
		posts[i].Keywords = results[pos].Keywords
	}
	g.logger.Debug("scores attached", zap.Int("posts", len(indices)))
	return nil
}
