package coordinator

import (
	"github.com/benbjohnson/clock"

	"go.viam.com/pcfilter/logging"
)

type options struct {
	logger logging.Logger
	clock  clock.Clock
	runID  string
}

func newOptions(opts []Option) options {
	o := options{
		logger: logging.Global(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a run.
type Option func(*options)

// WithLogger sets the logger used for progress and timing output.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock phases are timed with.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRunID tags results and logs with id instead of a freshly generated one.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}
