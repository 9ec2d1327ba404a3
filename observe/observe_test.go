package observe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-tates/keypath"
)

type change struct {
	path     string
	value    any
	previous any
}

type recorder struct {
	changes []change
	ops     []Op
}

func (r *recorder) onChange(op Op, path keypath.Path, value, previous any) {
	r.changes = append(r.changes, change{path: path.String(), value: value, previous: previous})
	r.ops = append(r.ops, op)
}

func observeMap(t *testing.T, root map[string]any, opts ...Option) (*Node, *recorder) {
	t.Helper()
	rec := &recorder{}
	node := Observe(root, rec.onChange, opts...)
	require.Equal(t, KindMap, node.Kind())
	return node, rec
}

func TestGetReturnsStableNodes(t *testing.T) {
	root, _ := observeMap(t, map[string]any{
		"a":    map[string]any{"b": map[string]any{"c": 1}},
		"list": []any{map[string]any{"x": 1}},
		"n":    3,
	})

	first := root.Get("a").(*Node)
	second := root.Get("a").(*Node)
	require.Same(t, first, second)
	require.Same(t, first.Get("b"), root.Get("a").(*Node).Get("b"))
	require.Same(t, root.Get("list"), root.Get("list"))
	require.Equal(t, 3, root.Get("n"))
	require.Nil(t, root.Get("missing"))

	inner := root.Lookup("a.b").(*Node)
	require.Equal(t, "a.b", inner.Path().String())
	require.Equal(t, 1, root.Lookup("a.b.c"))
	require.Equal(t, 1, root.Lookup("list[0].x"))
}

func TestSetNotifiesWithFullPath(t *testing.T) {
	root, rec := observeMap(t, map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}},
	})

	b := root.Lookup("a.b").(*Node)
	require.True(t, b.Set("c", 2))
	require.True(t, root.Set("top", "v"))

	require.Equal(t, []change{
		{path: "a.b.c", value: 2, previous: 1},
		{path: "top", value: "v", previous: nil},
	}, rec.changes)
	require.Equal(t, 2, root.Unwrap().(map[string]any)["a"].(map[string]any)["b"].(map[string]any)["c"])
}

func TestSetSameValueDoesNotNotify(t *testing.T) {
	nested := map[string]any{"k": 1}
	root, rec := observeMap(t, map[string]any{"n": 1, "obj": nested, "f": math.NaN()})

	require.True(t, root.Set("n", 1))
	require.True(t, root.Set("obj", nested))
	require.True(t, root.Set("f", math.NaN()))
	require.Empty(t, rec.changes)

	require.True(t, root.Set("obj", map[string]any{"k": 1}))
	require.Len(t, rec.changes, 1)
}

func TestSetNewKeyWithNilNotifies(t *testing.T) {
	root, rec := observeMap(t, map[string]any{})
	require.True(t, root.Set("k", nil))
	require.Equal(t, []change{{path: "k", value: nil, previous: nil}}, rec.changes)
}

func TestSetUnwrapsNodes(t *testing.T) {
	root, rec := observeMap(t, map[string]any{
		"src": map[string]any{"v": 1},
	})
	src := root.Get("src").(*Node)
	require.True(t, root.Set("dst", src))

	raw := root.Unwrap().(map[string]any)
	_, isNode := raw["dst"].(*Node)
	require.False(t, isNode)
	require.True(t, SameValue(raw["src"], raw["dst"]))
	require.Len(t, rec.changes, 1)
}

func TestCustomEquals(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"v": 1},
		WithEquals(func(a, b any) bool { return true }))
	require.True(t, root.Set("v", 2))
	require.Empty(t, rec.changes)
	require.Equal(t, 2, root.Get("v"))
}

func TestIgnorePolicies(t *testing.T) {
	root, rec := observeMap(t, map[string]any{
		"_private": map[string]any{"x": 1},
	},
		WithIgnoreUnderscored(true),
		WithIgnoreSymbols(true),
		WithIgnoreKeys("skip"),
	)

	_, wrapped := root.Get("_private").(*Node)
	require.False(t, wrapped)

	root.Set("_hidden", 1)
	root.Set(keypath.Symbol("tag"), 1)
	root.Set("skip", 1)
	require.Empty(t, rec.changes)

	root.Set("shown", 1)
	require.Equal(t, []change{{path: "shown", value: 1}}, rec.changes)
}

func TestSymbolKeysRenderInPaths(t *testing.T) {
	root, rec := observeMap(t, map[string]any{})
	root.Set(keypath.Symbol("meta"), true)
	require.Equal(t, "Symbol(meta)", rec.changes[0].path)
}

func TestShallowReturnsRawChildren(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"a": map[string]any{"b": 1}}, WithShallow(true))
	child, ok := root.Get("a").(map[string]any)
	require.True(t, ok)
	child["b"] = 2
	require.Empty(t, rec.changes)

	root.Set("a", 3)
	require.Len(t, rec.changes, 1)
}

func TestDelete(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"a": 1, "list": []any{"x", "y"}})

	require.True(t, root.Delete("missing"))
	require.Empty(t, rec.changes)

	require.True(t, root.Delete("a"))
	require.False(t, root.Has("a"))
	require.Equal(t, []change{{path: "a", value: nil, previous: 1}}, rec.changes)

	list := root.Get("list").(*Node)
	require.True(t, list.Delete("0"))
	require.Equal(t, []any{nil, "y"}, list.Unwrap())
	require.False(t, list.Delete("length"))
}

func TestDeleteEvictsCachedNodes(t *testing.T) {
	root, _ := observeMap(t, map[string]any{"a": map[string]any{"b": 1}})
	first := root.Get("a")
	root.Delete("a")
	root.Set("a", map[string]any{"b": 2})
	require.NotSame(t, first, root.Get("a"))
}

func TestDeleteEvictsNestedNodes(t *testing.T) {
	root, _ := observeMap(t, map[string]any{})
	for i := 0; i < 1000; i++ {
		root.Set("a", map[string]any{"b": map[string]any{"c": []any{1}}})
		require.IsType(t, &Node{}, root.Lookup("a.b.c"))
		root.Delete("a")
	}
	require.Len(t, root.engine.nodes, 1)
	require.Empty(t, root.engine.props)
}

func TestOverwriteKeepsNodesStillReachable(t *testing.T) {
	shared := map[string]any{"x": 1}
	root, _ := observeMap(t, map[string]any{"a": map[string]any{"keep": shared, "drop": map[string]any{"y": []any{1}}}})
	kept := root.Lookup("a.keep").(*Node)
	require.IsType(t, &Node{}, root.Lookup("a.drop.y"))

	root.Set("a", map[string]any{"keep": shared})
	require.Same(t, kept, root.Lookup("a.keep"))
	require.Len(t, root.engine.nodes, 3)
}

func TestTruncationEvictsDroppedElements(t *testing.T) {
	root, _ := observeMap(t, map[string]any{"list": []any{
		map[string]any{"n": 1},
		map[string]any{"n": 2, "tags": []any{"x"}},
		[]any{"nested"},
	}})
	list := root.Get("list").(*Node)
	first := list.Get("0").(*Node)
	require.IsType(t, &Node{}, root.Lookup("list.1.tags"))
	require.IsType(t, &Node{}, list.Get("2"))

	_, err := list.Invoke("pop")
	require.NoError(t, err)
	require.True(t, list.Set("length", 1))

	require.Same(t, first, list.Get("0"))
	require.Len(t, root.engine.nodes, 3)
}

func TestChangeOps(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"a": 1, "list": []any{1}})

	root.Set("a", nil)
	root.Set("a", 2)
	root.Delete("a")
	root.Define("b", DataProperty(1))
	_, err := root.Get("list").(*Node).Invoke("push", 2)
	require.NoError(t, err)

	require.Equal(t, []Op{OpSet, OpSet, OpDelete, OpDefine, OpCall}, rec.ops)
	require.Equal(t, change{path: "a", value: nil, previous: 1}, rec.changes[0])
	require.Equal(t, change{path: "a", value: nil, previous: 2}, rec.changes[2])
	require.Equal(t, "delete", OpDelete.String())
}

func TestDefineProperty(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"plain": 1})

	require.True(t, root.Define("plain", DataProperty(1)))
	require.Empty(t, rec.changes, "identical descriptor must be a no-op")

	require.True(t, root.Define("fixed", ReadOnly(map[string]any{"x": 1})))
	require.Equal(t, []change{{path: "fixed", value: map[string]any{"x": 1}}}, rec.changes)

	_, wrapped := root.Get("fixed").(*Node)
	require.False(t, wrapped, "non-writable non-configurable values are returned raw")

	require.False(t, root.Set("fixed", 2))
	require.False(t, root.Delete("fixed"))
	require.False(t, root.Define("fixed", DataProperty(2)))
	require.Len(t, rec.changes, 1)
}

func TestDefineInvalidatesDescriptorCache(t *testing.T) {
	root, _ := observeMap(t, map[string]any{})
	require.True(t, root.Define("v", Descriptor{Value: 1, Configurable: true}))
	require.False(t, root.Set("v", 2))

	require.True(t, root.Define("v", Descriptor{Value: 1, Writable: true, Configurable: true}))
	require.True(t, root.Set("v", 2))
	require.Equal(t, 2, root.Get("v"))
}

func TestAccessorProperties(t *testing.T) {
	store := 1
	root, rec := observeMap(t, map[string]any{})
	require.True(t, root.Define("acc", Descriptor{
		Get:          func() any { return store },
		Set:          func(v any) { store = v.(int) },
		Configurable: true,
	}))
	require.Equal(t, 1, root.Get("acc"))

	require.True(t, root.Set("acc", 5))
	require.Equal(t, 5, store)
	require.Equal(t, change{path: "acc", value: 5, previous: 1}, rec.changes[len(rec.changes)-1])

	require.True(t, root.Define("writeOnly", Descriptor{Set: func(any) {}}))
	require.Nil(t, root.Get("writeOnly"))

	require.True(t, root.Define("readOnly", Descriptor{Get: func() any { return 1 }, Configurable: true}))
	require.False(t, root.Set("readOnly", 2))
}

func TestSliceWrites(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"list": []any{1}})
	list := root.Get("list").(*Node)
	require.Equal(t, KindSlice, list.Kind())

	require.True(t, list.Set("1", 2))
	require.True(t, list.Set("3", 4))
	require.Equal(t, []any{1, 2, nil, 4}, root.Unwrap().(map[string]any)["list"])

	require.True(t, list.Set("length", 2))
	require.Equal(t, []any{1, 2}, list.Unwrap())
	require.Equal(t, 2, list.Len())
	require.Equal(t, []string{"0", "1"}, list.Keys())
	require.False(t, list.Set("name", 1))

	require.Equal(t, "list.1", rec.changes[0].path)
	require.Equal(t, "list.3", rec.changes[1].path)
	require.Equal(t, change{path: "list.length", value: 2, previous: 4}, rec.changes[2])
}

func TestSliceNodeFollowsSlot(t *testing.T) {
	root, _ := observeMap(t, map[string]any{"list": []any{1}})
	list := root.Get("list").(*Node)
	root.Set("list", []any{"a", "b"})
	require.Equal(t, []any{"a", "b"}, list.Unwrap())
}

func TestInvokeCoalescesSliceMethods(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"list": []any{1, 2, 3}})
	list := root.Get("list").(*Node)

	n, err := list.Invoke("insert", 1, "x")
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []any{1, "x", 2, 3}, list.Unwrap())
	require.Equal(t, []change{{path: "list", value: []any{1, "x", 2, 3}, previous: []any{1, 2, 3}}}, rec.changes)

	rec.changes = nil
	removed, err := list.Invoke("splice", 0, 2)
	require.NoError(t, err)
	require.Equal(t, []any{1, "x"}, removed)
	require.Len(t, rec.changes, 1)
	require.Equal(t, []any{1, "x", 2, 3}, rec.changes[0].previous)
	require.Equal(t, []any{2, 3}, rec.changes[0].value)
}

func TestSliceBuiltins(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"list": []any{}})
	list := root.Get("list").(*Node)

	size, err := list.Invoke("push", 3, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, size)

	_, err = list.Invoke("sort")
	require.NoError(t, err)
	require.Equal(t, []any{1, 2, 3}, list.Unwrap())

	_, err = list.Invoke("reverse")
	require.NoError(t, err)
	require.Equal(t, []any{3, 2, 1}, list.Unwrap())

	last, err := list.Invoke("pop")
	require.NoError(t, err)
	require.Equal(t, 1, last)

	first, err := list.Invoke("shift")
	require.NoError(t, err)
	require.Equal(t, 3, first)

	size, err = list.Invoke("unshift", "a", "b")
	require.NoError(t, err)
	require.Equal(t, 3, size)
	require.Equal(t, []any{"a", "b", 2}, list.Unwrap())

	_, err = list.Invoke("fill", 0, -2)
	require.NoError(t, err)
	require.Equal(t, []any{"a", 0, 0}, list.Unwrap())

	require.Len(t, rec.changes, 7, "one notification per call")

	rec.changes = nil
	_, err = list.Invoke("sort", func(a, b any) int { return 0 })
	require.NoError(t, err)
	require.Empty(t, rec.changes, "a call that changes nothing does not notify")

	_, err = list.Invoke("nope")
	require.ErrorIs(t, err, ErrNotCallable)
}

func TestInvokeUserMethodCoalescesAndRestoresSnapshot(t *testing.T) {
	var bump Func = func(this *Node, args ...any) (any, error) {
		counter := this.Get("counter").(*Node)
		counter.Set("value", counter.Get("value").(int)+1)
		counter.Set("value", counter.Get("value").(int)+1)
		this.Set("touched", true)
		return counter.Get("value"), nil
	}
	root, rec := observeMap(t, map[string]any{
		"model": map[string]any{
			"counter": map[string]any{"value": 0},
			"bump":    bump,
		},
	})

	model := root.Get("model").(*Node)
	result, err := model.Invoke("bump")
	require.NoError(t, err)
	require.Equal(t, 2, result)

	require.Len(t, rec.changes, 1)
	got := rec.changes[0]
	require.Equal(t, "model", got.path)
	previous := got.previous.(map[string]any)
	require.Equal(t, 0, previous["counter"].(map[string]any)["value"], "snapshot keeps the pre-call nested value")
	_, touched := previous["touched"]
	require.False(t, touched)
	require.Equal(t, 2, got.value.(map[string]any)["counter"].(map[string]any)["value"])
}

func TestNestedInvokeNotifiesOnce(t *testing.T) {
	root, rec := observeMap(t, map[string]any{"list": []any{}})
	var outer Func = func(this *Node, args ...any) (any, error) {
		list := this.Get("list").(*Node)
		if _, err := list.Invoke("push", 1); err != nil {
			return nil, err
		}
		return list.Invoke("push", 2)
	}
	root.Set("outer", outer)
	rec.changes = nil

	_, err := root.Invoke("outer")
	require.NoError(t, err)
	require.Len(t, rec.changes, 1)
	require.Equal(t, "", rec.changes[0].path)
}

func TestInvokePanicResetsState(t *testing.T) {
	root, rec := observeMap(t, map[string]any{})
	var boom Func = func(this *Node, args ...any) (any, error) {
		this.Set("partial", 1)
		panic("boom")
	}
	root.Set("boom", boom)
	rec.changes = nil

	require.PanicsWithValue(t, "boom", func() { _, _ = root.Invoke("boom") })
	root.Set("after", 1)
	require.Equal(t, []change{{path: "after", value: 1}}, rec.changes)
}

func TestUnsubscribe(t *testing.T) {
	raw := map[string]any{"a": map[string]any{"b": 1}}
	root, rec := observeMap(t, raw)
	child := root.Get("a").(*Node)

	require.Same(t, child, child.Unsubscribe())
	require.False(t, root.Unsubscribed())

	got := root.Unsubscribe()
	require.True(t, SameValue(raw, got))
	require.True(t, root.Unsubscribed())

	_, wrapped := root.Get("a").(*Node)
	require.False(t, wrapped)
	root.Set("c", 1)
	child.Set("b", 2)
	require.Empty(t, rec.changes)
	require.Equal(t, 2, raw["a"].(map[string]any)["b"])
}

func TestNilMapIsLoggedAndReturnedRaw(t *testing.T) {
	var events []LogEvent
	logger := LoggerFunc(func(e LogEvent) { events = append(events, e) })
	root, _ := observeMap(t, map[string]any{"empty": map[string]any(nil)}, WithLogger(logger))

	value := root.Get("empty")
	_, wrapped := value.(*Node)
	require.False(t, wrapped)
	require.Len(t, events, 1)
	require.Equal(t, EventWrapFailed, events[0].Kind)
	require.Equal(t, "empty", events[0].Path)
	require.ErrorIs(t, events[0].Err, ErrNilMap)
}

func TestObserveUnsupportedRoot(t *testing.T) {
	var events []LogEvent
	node := Observe(42, nil, WithLogger(LoggerFunc(func(e LogEvent) { events = append(events, e) })))
	require.Equal(t, KindValue, node.Kind())
	require.Equal(t, 42, node.Unwrap())
	require.False(t, node.Set("a", 1))
	require.Len(t, events, 1)
	require.ErrorIs(t, events[0].Err, ErrUnsupportedRoot)
}

func TestObserveSliceRoot(t *testing.T) {
	rec := &recorder{}
	root := Observe([]any{1}, rec.onChange)
	require.Equal(t, KindSlice, root.Kind())

	_, err := root.Invoke("push", 2)
	require.NoError(t, err)
	require.Equal(t, []any{1, 2}, root.Unwrap())
	require.Equal(t, []change{{path: "", value: []any{1, 2}, previous: []any{1}}}, rec.changes)
}

func TestSameValue(t *testing.T) {
	m := map[string]any{}
	s := []any{1}
	require.True(t, SameValue(nil, nil))
	require.False(t, SameValue(nil, 0))
	require.True(t, SameValue(1, 1))
	require.False(t, SameValue(1, int64(1)))
	require.True(t, SameValue(m, m))
	require.False(t, SameValue(m, map[string]any{}))
	require.True(t, SameValue(s, s))
	require.False(t, SameValue(s, s[:0]))
	require.True(t, SameValue(math.NaN(), math.NaN()))
	require.False(t, SameValue(0.0, math.Copysign(0, -1)))
	require.False(t, SameValue(struct{ s []int }{}, struct{ s []int }{}))
}

func TestPlainResolvesNodesAndDescriptors(t *testing.T) {
	inner := map[string]any{"x": 1}
	graph := map[string]any{
		"d":     &Descriptor{Value: "v"},
		"inner": inner,
		"list":  []any{&Descriptor{Get: func() any { return 2 }}},
	}
	got := Plain(graph).(map[string]any)
	require.Equal(t, "v", got["d"])
	require.Equal(t, []any{2}, got["list"])
	require.True(t, SameValue(inner, got["inner"]), "untouched branches are shared")
	_, stillDescriptor := graph["d"].(*Descriptor)
	require.True(t, stillDescriptor, "input is not modified")
}

func TestPlainHandlesCycles(t *testing.T) {
	graph := map[string]any{"d": &Descriptor{Value: "v"}}
	graph["self"] = graph
	list := []any{"x", nil}
	list[1] = list
	graph["list"] = list

	got := Plain(graph).(map[string]any)
	require.Equal(t, "v", got["d"])
	require.True(t, SameValue(graph, got["self"]), "the back reference keeps pointing at the input")

	untouched := map[string]any{"n": 1}
	untouched["self"] = untouched
	require.True(t, SameValue(untouched, Plain(untouched)))
}
