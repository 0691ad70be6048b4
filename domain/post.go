// Package domain contains the input and output records of the analytics
// core: posts and authors on the way in, trends on the way out. Records
// are validated once at the ingestion boundary; the rest of the core
// assumes well-formed values.
package domain

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "pulsegraph/pkg/errors"
)

// Post is a social media post as handed to the core by the caller.
// ID, AuthorID and PostedAt are required; everything else is optional.
// SentimentLabel and Keywords are attached by the caller from the
// scoring service output - the core never runs inference itself.
type Post struct {
	ID       string    `validate:"required"`
	AuthorID string    `validate:"required"`
	PostedAt time.Time `validate:"required"`

	Content  string
	Platform string
	Language string

	Hashtags         []string
	Mentions         []string
	ReplyToAuthorID  string
	RepostOfAuthorID string

	SentimentLabel string
	Keywords       []string

	LikesCount    int `validate:"min=0"`
	CommentsCount int `validate:"min=0"`
	SharesCount   int `validate:"min=0"`
	ViewsCount    int `validate:"min=0"`
}

// Author is an author record. Only the ID is required; FollowedAuthorIDs
// feeds the follows edges of the author network.
type Author struct {
	ID       string `validate:"required"`
	Username string

	FollowedAuthorIDs []string
}

// validate is cached per package; validator instances are expensive to
// build and safe for concurrent use.
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the post against its declarative rules and returns a
// validation error suitable for per-record collection.
func (p Post) Validate() error {
	if err := validatorInstance().Struct(p); err != nil {
		return apperrors.NewValidationf("invalid post record: %v", err)
	}
	return nil
}

// Validate checks the author record.
func (a Author) Validate() error {
	if err := validatorInstance().Struct(a); err != nil {
		return apperrors.NewValidationf("invalid author record: %v", err)
	}
	return nil
}

// Window is a bounded time interval over which trend statistics are
// computed. Start is inclusive, End exclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Previous returns the equal-length window immediately preceding this one.
func (w Window) Previous() Window {
	d := w.Duration()
	return Window{Start: w.Start.Add(-d), End: w.Start}
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return apperrors.NewValidation("window end must be after start")
	}
	return nil
}
