package tates

import (
	"time"

	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/pkg/activity"
	"github.com/goliatone/go-tates/schedule"
)

// Listener receives the value found at a subscribed path together with that
// path. Wildcard subscribers receive the changed root key instead.
type Listener func(value any, path string)

// RuleContext carries inputs needed when evaluating an expression.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	// Path is the change that triggered the evaluation, empty for direct
	// evaluations.
	Path    string
	StateID string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) pathLabel() string {
	if ctx.Path != "" {
		return ctx.Path
	}
	return "root"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// DefaultDebounceWait is the per-listener coalescing window.
const DefaultDebounceWait = 10 * time.Millisecond

type Option func(*config)

type config struct {
	debounce     bool
	debounceWait time.Duration
	scheduler    schedule.Scheduler
	equals       func(a, b any) bool
	observeOpts  []observe.Option
	logger       observe.Logger
	stateID      string

	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry

	activityHooks  activity.Hooks
	activityConfig activity.Config
	actorID        string
}

func applyOptions(opts []Option) config {
	cfg := config{
		debounce:       true,
		debounceWait:   DefaultDebounceWait,
		equals:         observe.SameValue,
		logger:         observe.NopLogger(),
		activityConfig: activity.Config{Enabled: true},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
