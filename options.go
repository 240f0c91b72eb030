package rwlock

import (
	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type options struct {
	name        string
	logger      *zap.Logger
	clock       clockwork.Clock
	metrics     *Metrics
	thread      ThreadFunc
	indexDegree int
}

func defaultOptions() options {
	return options{
		name:        "rwlock",
		logger:      zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		thread:      CurrentGoroutine,
		indexDegree: 8,
	}
}

func (o *options) validate() error {
	switch {
	case o.logger == nil:
		return errors.Wrap(ErrInvalidArgument, "nil logger")
	case o.clock == nil:
		return errors.Wrap(ErrInvalidArgument, "nil clock")
	case o.thread == nil:
		return errors.Wrap(ErrInvalidArgument, "nil thread func")
	case o.indexDegree < 2:
		return errors.Wrapf(ErrInvalidArgument, "index degree %d", o.indexDegree)
	}
	return nil
}

// Option configures a lock created by New.
type Option func(*options)

// WithName labels the lock in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. Timeouts are logged at debug level, misuse by
// callers at warn level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for acquisition timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics makes the lock report to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithThreadFunc replaces the thread identity source.
func WithThreadFunc(fn ThreadFunc) Option {
	return func(o *options) { o.thread = fn }
}

// WithIndexDegree sets the branching degree of the reader index.
func WithIndexDegree(degree int) Option {
	return func(o *options) { o.indexDegree = degree }
}
