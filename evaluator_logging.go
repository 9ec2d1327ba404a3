package tates

import (
	"fmt"
	"time"

	"github.com/goliatone/go-tates/observe"
)

// Event kinds reported by the subscription layer, in addition to the engine's
// observe.EventWrapFailed and observe.EventApplyPanic.
const (
	EventEvaluated      = "evaluated"
	EventEvaluateFailed = "evaluate_failed"
	EventListenerPanic  = "listener_panic"
	EventDecodeFailed   = "decode_failed"
	EventHookFailed     = "hook_failed"
)

// logEvaluation records one evaluator run. Message carries the engine and the
// expression so slog output stays greppable.
func (s *State) logEvaluation(engine, expr, path string, duration time.Duration, err error) {
	kind := EventEvaluated
	if err != nil {
		kind = EventEvaluateFailed
	}
	s.cfg.logger.Log(observe.LogEvent{
		Kind:     kind,
		Path:     path,
		Message:  fmt.Sprintf("engine=%s %s", engine, describeExpression(expr)),
		Duration: duration,
		Err:      err,
	})
}

func (s *State) log(kind, path string, err error) {
	s.cfg.logger.Log(observe.LogEvent{Kind: kind, Path: path, Err: err})
}
