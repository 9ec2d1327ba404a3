package tates

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-tates/observe"
)

var (
	ErrNoEvaluator = errors.New("tates: evaluator not configured")
	// ErrEmptyExpression is returned for empty Watch and Evaluate expressions.
	ErrEmptyExpression = errors.New("tates: expression must not be empty")

	errMissingEvaluator = errors.New("compiled rule missing evaluator")
)

// Evaluate runs expr once against the current root.
func (s *State) Evaluate(expr string) (any, error) {
	return s.EvaluateWith(RuleContext{}, expr)
}

// EvaluateWith runs expr using ctx, falling back to the current root when
// ctx.Snapshot is nil.
func (s *State) EvaluateWith(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, ErrEmptyExpression
	}
	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = observe.Plain(s.Target())
	}
	if ctx.StateID == "" {
		ctx.StateID = s.id
	}
	ctx = ctx.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	evalErr = wrapEvaluationError(engine, expr, ctx.pathLabel(), evalErr)
	s.logEvaluation(engine, expr, ctx.Path, time.Since(start), evalErr)
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

// resolveEvaluator returns the configured evaluator, building and keeping the
// default expr evaluator on first use.
func (s *State) resolveEvaluator() (Evaluator, error) {
	s.evalOnce.Do(func() {
		if s.cfg.evaluator != nil {
			return
		}
		var exprOpts []ExprEvaluatorOption
		if cache := s.cfg.programCache; cache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cache))
		}
		if registry := s.cfg.functions; registry != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(registry))
		}
		s.cfg.evaluator = NewExprEvaluator(exprOpts...)
	})
	if s.cfg.evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return s.cfg.evaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*tates.exprEvaluator":
		return "expr"
	case "*tates.celEvaluator":
		return "cel"
	case "*tates.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
