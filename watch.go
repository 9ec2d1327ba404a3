package tates

import (
	"reflect"
	"sync"
	"time"

	"github.com/goliatone/go-tates/keypath"
	"github.com/goliatone/go-tates/observe"
)

// watcher re-evaluates a compiled expression after every change and forwards
// the result through its subscription when it differs from the last one.
type watcher struct {
	expr   string
	engine string
	rule   CompiledRule
	sub    *subscription

	mu   sync.Mutex
	last any
}

// Watch subscribes l to the result of expr, evaluated by the configured
// evaluator against the root. The current result is delivered once; after
// that l only hears about changes that alter the result. The path passed to l
// is expr itself. Compile errors are returned. Evaluation failures are logged
// and leave the last result in place; a failing first evaluation counts as nil.
func (s *State) Watch(expr string, l Listener) (unsubscribe func(), err error) {
	if expr == "" {
		return nil, ErrEmptyExpression
	}
	if l == nil {
		return func() {}, nil
	}
	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	engine := evaluatorEngineName(evaluator)
	rule, err := evaluator.Compile(expr)
	if err != nil {
		return nil, wrapEvaluationError(engine, expr, "", err)
	}

	w := &watcher{
		expr:   expr,
		engine: engine,
		rule:   rule,
		sub:    s.newSubscription(expr, l),
	}
	initial, _ := s.evaluateRule(w, keypath.Path{})
	w.last = initial

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	w.sub.dispatch(detach(initial), expr)
	return func() { s.unwatch(w) }, nil
}

func (s *State) unwatch(w *watcher) {
	w.sub.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.watchers {
		if candidate == w {
			s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
			return
		}
	}
}

// reevaluate runs every watcher after a change, on the mutating goroutine.
func (s *State) reevaluate(changed keypath.Path) {
	s.mu.Lock()
	watchers := append([]*watcher(nil), s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		result, err := s.evaluateRule(w, changed)
		if err != nil {
			continue
		}
		w.mu.Lock()
		same := reflect.DeepEqual(w.last, result)
		if !same {
			w.last = result
		}
		w.mu.Unlock()
		if !same {
			w.sub.dispatch(detach(result), w.expr)
		}
	}
}

func (s *State) evaluateRule(w *watcher, changed keypath.Path) (any, error) {
	ctx := RuleContext{
		Snapshot: observe.Plain(s.root),
		Path:     changed.String(),
		StateID:  s.id,
	}.withDefaults()
	start := time.Now()
	result, err := w.rule.Evaluate(ctx)
	err = wrapEvaluationError(w.engine, w.expr, ctx.pathLabel(), err)
	s.logEvaluation(w.engine, w.expr, ctx.Path, time.Since(start), err)
	return result, err
}
