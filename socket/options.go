package socket

import (
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
)

const transportName = "socket"

// options is the shared configuration consumed by NewCorrelator,
// NewDispatcher, and NewConn. Constructors ignore fields they have no
// use for.
type options struct {
	cfg        Config
	log        *logger.Logger
	metrics    *observability.Metrics
	newID      func() string
	correlator *Correlator
}

// Option configures a Correlator, Dispatcher, or Conn.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg.ApplyDefaults()
	if o.log == nil {
		o.log = logger.GetGlobalLogger().WithComponent(transportName)
	}
	return o
}

// WithConfig sets the socket configuration. Zero fields fall back to
// defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithTimeout sets the default request timeout. Shorthand for a Config
// carrying only RequestTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.RequestTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics recorder. A nil recorder is valid and
// records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIDGenerator overrides the correlation-id generator. Useful for
// deterministic ids in tests.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithCorrelator binds an existing correlator instead of constructing
// one. Lets a Dispatcher and a Conn share in-flight request state.
func WithCorrelator(c *Correlator) Option {
	return func(o *options) { o.correlator = c }
}
