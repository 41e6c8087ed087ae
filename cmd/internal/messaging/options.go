package messaging

import (
	"log/slog"
	"time"
)

type options struct {
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures Directory, Feed, List, Watcher and Service.
type Option func(*options)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records counters into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the clock used when an input carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log: slog.Default(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
