package observe

import (
	"cmp"
	"fmt"
	"slices"
)

type sliceMethod func(n *Node, args []any) (any, error)

// sliceMethods mutate through Set so every internal write goes through the
// engine and is folded into the surrounding invocation.
var sliceMethods = map[string]sliceMethod{
	"push":    slicePush,
	"pop":     slicePop,
	"shift":   sliceShift,
	"unshift": sliceUnshift,
	"splice":  sliceSplice,
	"insert":  sliceInsert,
	"reverse": sliceReverse,
	"sort":    sliceSort,
	"fill":    sliceFill,
}

func (n *Node) elements() []any {
	s, _ := n.Unwrap().([]any)
	return s
}

// rewrite writes next over the node element by element and fixes the length.
func (n *Node) rewrite(next []any) {
	for i, value := range next {
		n.Set(itoa(i), value)
	}
	n.Set("length", len(next))
}

func slicePush(n *Node, args []any) (any, error) {
	for _, value := range args {
		n.Set(itoa(len(n.elements())), value)
	}
	return len(n.elements()), nil
}

func slicePop(n *Node, _ []any) (any, error) {
	current := n.elements()
	if len(current) == 0 {
		return nil, nil
	}
	last := resolveEntry(current[len(current)-1])
	n.Set("length", len(current)-1)
	return last, nil
}

func sliceShift(n *Node, _ []any) (any, error) {
	current := slices.Clone(n.elements())
	if len(current) == 0 {
		return nil, nil
	}
	first := resolveEntry(current[0])
	n.rewrite(current[1:])
	return first, nil
}

func sliceUnshift(n *Node, args []any) (any, error) {
	current := n.elements()
	next := make([]any, 0, len(current)+len(args))
	next = append(next, args...)
	next = append(next, current...)
	n.rewrite(next)
	return len(next), nil
}

// sliceSplice takes (start, deleteCount, items...). Negative start counts from
// the end; a missing deleteCount removes everything from start.
func sliceSplice(n *Node, args []any) (any, error) {
	current := n.elements()
	size := len(current)

	start := 0
	if len(args) > 0 {
		v, err := indexArg(args[0], "start")
		if err != nil {
			return nil, err
		}
		start = relativeIndex(v, size)
	}
	deleteCount := size - start
	if len(args) > 1 {
		v, err := indexArg(args[1], "deleteCount")
		if err != nil {
			return nil, err
		}
		deleteCount = min(max(v, 0), size-start)
	}
	var items []any
	if len(args) > 2 {
		items = args[2:]
	}

	removed := make([]any, deleteCount)
	for i := range removed {
		removed[i] = resolveEntry(current[start+i])
	}
	next := make([]any, 0, size-deleteCount+len(items))
	next = append(next, current[:start]...)
	next = append(next, items...)
	next = append(next, current[start+deleteCount:]...)
	n.rewrite(next)
	return removed, nil
}

// sliceInsert takes (index, items...) and inserts without removing.
func sliceInsert(n *Node, args []any) (any, error) {
	if len(args) == 0 {
		return len(n.elements()), nil
	}
	spliceArgs := make([]any, 0, len(args)+1)
	spliceArgs = append(spliceArgs, args[0], 0)
	spliceArgs = append(spliceArgs, args[1:]...)
	if _, err := sliceSplice(n, spliceArgs); err != nil {
		return nil, err
	}
	return len(n.elements()), nil
}

func sliceReverse(n *Node, _ []any) (any, error) {
	next := slices.Clone(n.elements())
	slices.Reverse(next)
	n.rewrite(next)
	return n, nil
}

// sliceSort takes an optional func(a, b any) int comparator. Without one,
// numbers sort numerically, strings lexically and nils last; mixed values
// fall back to their formatted text.
func sliceSort(n *Node, args []any) (any, error) {
	compare := compareValues
	if len(args) > 0 && args[0] != nil {
		fn, ok := args[0].(func(a, b any) int)
		if !ok {
			return nil, fmt.Errorf("observe: sort comparator must be func(a, b any) int, got %T", args[0])
		}
		compare = fn
	}
	next := slices.Clone(n.elements())
	slices.SortStableFunc(next, func(a, b any) int {
		return compare(resolveEntry(a), resolveEntry(b))
	})
	n.rewrite(next)
	return n, nil
}

// sliceFill takes (value, start, end) with the same index rules as splice.
func sliceFill(n *Node, args []any) (any, error) {
	size := len(n.elements())
	var value any
	if len(args) > 0 {
		value = args[0]
	}
	start, end := 0, size
	if len(args) > 1 {
		v, err := indexArg(args[1], "start")
		if err != nil {
			return nil, err
		}
		start = relativeIndex(v, size)
	}
	if len(args) > 2 {
		v, err := indexArg(args[2], "end")
		if err != nil {
			return nil, err
		}
		end = relativeIndex(v, size)
	}
	for i := start; i < end; i++ {
		n.Set(itoa(i), value)
	}
	return n, nil
}

func indexArg(value any, name string) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("observe: %s must be an integer, got %T", name, value)
	}
}

func relativeIndex(idx, size int) int {
	if idx < 0 {
		return max(size+idx, 0)
	}
	return min(idx, size)
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
