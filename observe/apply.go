package observe

import (
	"fmt"

	"github.com/goliatone/go-tates/keypath"
)

// Invoke calls method on the node as one observed operation. Slice nodes
// understand the built-in methods push, pop, shift, unshift, splice, insert,
// reverse, sort and fill; map nodes call the Func stored under method.
//
// However many writes the call performs, at most one notification is emitted
// for it, at the node's path, carrying the node's value after the call and a
// shallow snapshot from before it.
func (n *Node) Invoke(method string, args ...any) (any, error) {
	if n.kind == KindSlice {
		builtin, ok := sliceMethods[method]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotCallable, n.path.Concat(method))
		}
		return n.apply(func() (any, error) {
			return builtin(n, args)
		})
	}

	switch member := n.Get(method).(type) {
	case *Node:
		if member.kind == KindFunc {
			return member.Call(args...)
		}
	default:
		if fn, ok := asFunc(member); ok {
			return fn(n, args...)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotCallable, n.path.Concat(method))
}

// Call invokes a method node with its owner as receiver. See Invoke.
func (n *Node) Call(args ...any) (any, error) {
	fn, ok := asFunc(n.Unwrap())
	if n.kind != KindFunc || !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCallable, n.path)
	}
	receiver := n.owner
	if n.engine.unsubscribed {
		return fn(receiver, args...)
	}
	return receiver.apply(func() (any, error) {
		return fn(receiver, args...)
	})
}

// apply runs call as the outermost observed invocation on n. Nested calls run
// straight through so only the outermost one reports.
func (n *Node) apply(call func() (any, error)) (any, error) {
	e := n.engine
	if e.inApply || e.unsubscribed {
		return call()
	}

	path := n.path.Concat("")
	e.inApply = true
	e.applyPath = path
	e.applyPrevious = ShallowClone(n.Unwrap())

	result, err := e.guard(path, call)

	changed := e.applyChanged
	previous := e.applyPrevious
	e.resetApply()

	current := n.Unwrap()
	if !e.unsubscribed && (changed || !ShallowEqual(previous, current, e.cfg.equals)) {
		e.onChange(OpCall, path, current, previous)
	}
	return result, err
}

// guard runs call and clears the invocation state if it panics.
func (e *engine) guard(path keypath.Path, call func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.resetApply()
			e.cfg.logger.Log(LogEvent{
				Kind:    EventApplyPanic,
				Path:    path.String(),
				Message: fmt.Sprint(r),
			})
			panic(r)
		}
	}()
	return call()
}
