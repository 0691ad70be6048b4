package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pulsegraph/domain"
	apperrors "pulsegraph/pkg/errors"
	"pulsegraph/pkg/observability"
)

const tracerName = "pulsegraph/graph"

// Builder ingests post and author batches and upserts the corresponding
// nodes and edges. Builders are constructed explicitly per store; there
// is no shared instance.
type Builder struct {
	store     *Store
	logger    *zap.Logger
	collector *observability.Collector
	tracer    trace.Tracer
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the logger; the default is a no-op logger.
func WithBuilderLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBuilderCollector attaches Prometheus instrumentation.
func WithBuilderCollector(c *observability.Collector) BuilderOption {
	return func(b *Builder) {
		b.collector = c
	}
}

// NewBuilder creates a builder writing into store.
func NewBuilder(store *Store, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:  store,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store returns the store the builder writes into.
func (b *Builder) Store() *Store {
	return b.store
}

// BuildReport summarizes one build run. Malformed records are collected
// here instead of aborting the batch.
type BuildReport struct {
	// RecordsProcessed counts the valid input records of the run, posts
	// or authors depending on the operation.
	RecordsProcessed int
	NodesUpserted    int
	EdgesUpserted    int
	Skipped          []apperrors.RecordError
}

func (r *BuildReport) skip(recordID string, err error) {
	r.Skipped = append(r.Skipped, apperrors.RecordError{RecordID: recordID, Err: err})
}

// BuildAuthorNetwork upserts an author node for every valid post and the
// interaction edges the post carries: mentions, replies_to and retweets
// edges from the post's author toward the referenced authors, one weight
// unit per observation. The result is independent of post order.
func (b *Builder) BuildAuthorNetwork(ctx context.Context, posts []domain.Post) (*BuildReport, error) {
	_, span := b.tracer.Start(ctx, "BuildAuthorNetwork",
		trace.WithAttributes(attribute.Int("posts", len(posts))))
	defer span.End()

	started := time.Now()
	report := &BuildReport{}

	var buildErr error
	for _, post := range posts {
		if err := post.Validate(); err != nil {
			report.skip(post.ID, err)
			continue
		}

		sourceID, err := b.upsertAuthor(report, post.AuthorID)
		if err != nil {
			buildErr = err
			break
		}

		interactions := make(map[string]EdgeType)
		for _, mentioned := range post.Mentions {
			mentioned = strings.TrimSpace(mentioned)
			if mentioned == "" || mentioned == post.AuthorID {
				continue
			}
			interactions[mentioned] = EdgeTypeMentions
		}

		if err := b.upsertInteractions(report, sourceID, interactions, post.PostedAt); err != nil {
			buildErr = err
			break
		}

		if target := strings.TrimSpace(post.ReplyToAuthorID); target != "" && target != post.AuthorID {
			if err := b.upsertInteraction(report, sourceID, target, EdgeTypeRepliesTo, post.PostedAt); err != nil {
				buildErr = err
				break
			}
		}
		if target := strings.TrimSpace(post.RepostOfAuthorID); target != "" && target != post.AuthorID {
			if err := b.upsertInteraction(report, sourceID, target, EdgeTypeRetweets, post.PostedAt); err != nil {
				buildErr = err
				break
			}
		}

		report.RecordsProcessed++
	}

	b.finish("author", started, report, buildErr)
	if buildErr != nil {
		return report, apperrors.Wrap(buildErr, "build author network")
	}
	return report, nil
}

// AddFollows upserts follows edges from author records.
func (b *Builder) AddFollows(ctx context.Context, authors []domain.Author) (*BuildReport, error) {
	_, span := b.tracer.Start(ctx, "AddFollows",
		trace.WithAttributes(attribute.Int("authors", len(authors))))
	defer span.End()

	started := time.Now()
	report := &BuildReport{}

	var buildErr error
	for _, author := range authors {
		if err := author.Validate(); err != nil {
			report.skip(author.ID, err)
			continue
		}

		sourceID, err := b.upsertAuthor(report, author.ID)
		if err != nil {
			buildErr = err
			break
		}
		if author.Username != "" {
			if _, err := b.store.UpsertNode(sourceID, NodeTypeAuthor, author.Username, nil); err != nil {
				buildErr = err
				break
			}
		}

		followed := make(map[string]EdgeType)
		for _, f := range author.FollowedAuthorIDs {
			f = strings.TrimSpace(f)
			if f == "" || f == author.ID {
				continue
			}
			followed[f] = EdgeTypeFollows
		}
		if err := b.upsertInteractions(report, sourceID, followed, time.Time{}); err != nil {
			buildErr = err
			break
		}

		report.RecordsProcessed++
	}

	b.finish("follows", started, report, buildErr)
	if buildErr != nil {
		return report, apperrors.Wrap(buildErr, "add follows")
	}
	return report, nil
}

// BuildHashtagNetwork upserts a node per distinct hashtag and one
// co-occurrence edge per unordered pair of distinct hashtags appearing in
// the same post, weight += 1 per co-occurrence. Pairs are canonicalized
// so the lexicographically smaller tag is the source; posts with fewer
// than two distinct hashtags contribute no edges, and self-loops are
// never created.
func (b *Builder) BuildHashtagNetwork(ctx context.Context, posts []domain.Post) (*BuildReport, error) {
	_, span := b.tracer.Start(ctx, "BuildHashtagNetwork",
		trace.WithAttributes(attribute.Int("posts", len(posts))))
	defer span.End()

	started := time.Now()
	report := &BuildReport{}

	var buildErr error
	for _, post := range posts {
		if err := post.Validate(); err != nil {
			report.skip(post.ID, err)
			continue
		}

		tags := normalizeTags(post.Hashtags)

		for _, tag := range tags {
			if _, err := b.store.UpsertNode(NodeID(NodeTypeHashtag, tag), NodeTypeHashtag, tag, nil); err != nil {
				buildErr = err
				break
			}
			report.NodesUpserted++
		}
		if buildErr != nil {
			break
		}

		// tags are sorted, so i<j already yields the canonical
		// direction
		for i := 0; i < len(tags) && buildErr == nil; i++ {
			for j := i + 1; j < len(tags); j++ {
				_, err := b.store.UpsertEdge(
					NodeID(NodeTypeHashtag, tags[i]),
					NodeID(NodeTypeHashtag, tags[j]),
					EdgeTypeCoOccurrence,
					1,
					post.PostedAt,
				)
				if err != nil {
					buildErr = apperrors.NewInternal("co-occurrence upsert failed", err)
					break
				}
				report.EdgesUpserted++
			}
		}
		if buildErr != nil {
			break
		}

		report.RecordsProcessed++
	}

	b.finish("hashtag", started, report, buildErr)
	if buildErr != nil {
		return report, apperrors.Wrap(buildErr, "build hashtag network")
	}
	return report, nil
}

func (b *Builder) upsertAuthor(report *BuildReport, authorID string) (string, error) {
	id := NodeID(NodeTypeAuthor, authorID)
	if _, err := b.store.UpsertNode(id, NodeTypeAuthor, authorID, nil); err != nil {
		return "", err
	}
	report.NodesUpserted++
	return id, nil
}

func (b *Builder) upsertInteraction(report *BuildReport, sourceID, targetAuthorID string, typ EdgeType, observedAt time.Time) error {
	targetID := NodeID(NodeTypeAuthor, targetAuthorID)
	if _, err := b.store.UpsertNode(targetID, NodeTypeAuthor, targetAuthorID, nil); err != nil {
		return err
	}
	report.NodesUpserted++

	if _, err := b.store.UpsertEdge(sourceID, targetID, typ, 1, observedAt); err != nil {
		return apperrors.NewInternal("interaction upsert failed", err)
	}
	report.EdgesUpserted++
	return nil
}

func (b *Builder) upsertInteractions(report *BuildReport, sourceID string, targets map[string]EdgeType, observedAt time.Time) error {
	// deterministic order is not required for correctness (upserts
	// commute) but keeps logs and failures reproducible
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, target := range ids {
		if err := b.upsertInteraction(report, sourceID, target, targets[target], observedAt); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) finish(network string, started time.Time, report *BuildReport, err error) {
	duration := time.Since(started)
	b.collector.ObserveBuild(network, duration, report.NodesUpserted, report.EdgesUpserted, len(report.Skipped), err)
	b.logger.Info("graph build finished",
		zap.String("network", network),
		zap.Int("records", report.RecordsProcessed),
		zap.Int("nodes_upserted", report.NodesUpserted),
		zap.Int("edges_upserted", report.EdgesUpserted),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
}

// normalizeTags lowercases, trims and dedupes hashtags, dropping empties;
// the result is sorted.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if tag == "" {
			continue
		}
		seen[tag] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
