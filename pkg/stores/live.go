package stores

import (
	"context"

	"github.com/google/go-cmp/cmp"

	"github.com/kemicky/forage/pkg/telemetry"
)

// QueryFunc produces one snapshot of a live query.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Live is an observable query: a snapshot function re-evaluated whenever the
// change feed fires. T must be comparable with cmp.Equal.
type Live[T any] struct {
	name    string
	feed    *ChangeFeed
	query   QueryFunc[T]
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// LiveOption configures a Live query.
type LiveOption func(*liveOptions)

type liveOptions struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// WithLiveLogger sets the logger used to report query failures.
func WithLiveLogger(l *telemetry.Logger) LiveOption {
	return func(o *liveOptions) { o.logger = l }
}

// WithLiveMetrics sets the metrics the query reports to.
func WithLiveMetrics(m *telemetry.Metrics) LiveOption {
	return func(o *liveOptions) { o.metrics = m }
}

// NewLive creates a live query named name over feed.
func NewLive[T any](name string, feed *ChangeFeed, query QueryFunc[T], opts ...LiveOption) *Live[T] {
	o := liveOptions{logger: telemetry.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Live[T]{
		name:    name,
		feed:    feed,
		query:   query,
		logger:  o.logger.WithField("query", name),
		metrics: o.metrics,
	}
}

// Name returns the query name.
func (l *Live[T]) Name() string {
	return l.name
}

// Value runs the query once and returns the current snapshot.
func (l *Live[T]) Value(ctx context.Context) (T, error) {
	timer := telemetry.NewTimer()
	v, err := l.query(ctx)
	l.metrics.RecordQuery(l.name, timer.Duration())
	return v, err
}

// Observe returns a channel that receives the current snapshot and then a new
// snapshot after every change that alters the result. A consumer that falls
// behind only sees the newest snapshot. The channel is closed when ctx ends
// or the change feed closes.
//
// Query failures are logged and the emission is skipped; observers never see
// an error.
func (l *Live[T]) Observe(ctx context.Context) <-chan T {
	out := make(chan T, 1)

	// Subscribe before the first query so no change can slip in between.
	changes, unsubscribe := l.feed.Subscribe()
	l.metrics.AddLiveObservers(l.name, 1)

	go func() {
		defer close(out)
		defer l.metrics.AddLiveObservers(l.name, -1)
		defer unsubscribe()

		var (
			last T
			have bool
		)

		refresh := func() {
			v, err := l.Value(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.WithError(err).Warn("Live query failed, skipping snapshot")
				}
				return
			}
			if have && cmp.Equal(last, v) {
				return
			}
			last, have = v, true
			deliverLatest(ctx, out, v)
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				refresh()
			}
		}
	}()

	return out
}

// deliverLatest puts v on out, replacing an undelivered older value. Only the
// producing goroutine sends on out.
func deliverLatest[T any](ctx context.Context, out chan T, v T) {
	select {
	case out <- v:
		return
	default:
	}

	select {
	case <-out:
	default:
	}

	select {
	case out <- v:
	case <-ctx.Done():
	}
}
