package tates

import (
	"strings"
	"time"

	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/schedule"
)

// WithDebounce toggles per-listener debouncing. When disabled every
// notification is delivered on its own, one scheduler tick later.
func WithDebounce(enabled bool) Option {
	return func(cfg *config) {
		cfg.debounce = enabled
	}
}

// WithDebounceWait sets the debounce window. Negative values are ignored.
func WithDebounceWait(wait time.Duration) Option {
	return func(cfg *config) {
		if wait >= 0 {
			cfg.debounceWait = wait
		}
	}
}

// WithScheduler runs deliveries on sched instead of a State-owned loop. The
// caller keeps ownership; Close does not stop it.
func WithScheduler(sched schedule.Scheduler) Option {
	return func(cfg *config) {
		cfg.scheduler = sched
	}
}

// WithEquals replaces the change detector used both by the engine and by
// subscription routing.
func WithEquals(equals func(a, b any) bool) Option {
	return func(cfg *config) {
		if equals != nil {
			cfg.equals = equals
		}
	}
}

// WithObserveOptions forwards engine options such as observe.WithIgnoreKeys.
func WithObserveOptions(opts ...observe.Option) Option {
	return func(cfg *config) {
		cfg.observeOpts = append(cfg.observeOpts, opts...)
	}
}

// WithLogger attaches a logger shared by the engine and the subscription
// layer.
func WithLogger(logger observe.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = observe.NopLogger()
			return
		}
		cfg.logger = logger
	}
}

// WithStateID overrides the generated instance id stamped on activity events
// and decode contexts.
func WithStateID(id string) Option {
	return func(cfg *config) {
		if id = strings.TrimSpace(id); id != "" {
			cfg.stateID = id
		}
	}
}

// WithEvaluator configures the evaluator used by Watch and Evaluate.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}
