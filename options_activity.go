package tates

import (
	"strings"

	"github.com/goliatone/go-tates/pkg/activity"
)

// WithActivityHooks attaches activity hooks notified of every committed change.
// Hooks are cloned and nil entries dropped to preserve immutability.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithActivityConfig controls whether hooks are notified and which channel is
// stamped on events. Emission is enabled by default once hooks are present.
func WithActivityConfig(activityCfg activity.Config) Option {
	return func(cfg *config) {
		cfg.activityConfig = activityCfg
	}
}

// WithActivityActor records actorID as the actor of emitted events.
func WithActivityActor(actorID string) Option {
	return func(cfg *config) {
		cfg.actorID = strings.TrimSpace(actorID)
	}
}

// ActivityHooks returns a cloned slice of the configured activity hooks. The
// returned slice can be safely mutated by the caller.
func (s *State) ActivityHooks() activity.Hooks {
	if s == nil {
		return nil
	}
	return cloneActivityHooks(s.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
