package tates

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-tates/observe"
	"github.com/stretchr/testify/require"
)

type todo struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type typedCall[T any] struct {
	value T
	path  string
}

func TestSubscribeAsDecodesDeliveries(t *testing.T) {
	s, sched := newManualState(t, WithDebounce(false))
	s.Root().Set("todos", []any{map[string]any{"title": "docs", "done": false}})

	var got []typedCall[todo]
	SubscribeAs(s, "todos[0]", func(value todo, path string) {
		got = append(got, typedCall[todo]{value: value, path: path})
	})

	list := s.Root().Get("todos").(*observe.Node)
	list.Set("0", map[string]any{"title": "docs", "done": true})
	sched.Tick()

	require.Equal(t, []typedCall[todo]{
		{value: todo{Title: "docs"}, path: "todos.0"},
		{value: todo{Title: "docs", Done: true}, path: "todos.0"},
	}, got)
}

func TestSubscribeAsSkipsMissingValues(t *testing.T) {
	s, sched := newManualState(t, WithDebounce(false))

	var strict, lenient []todo
	SubscribeAs(s, "current", func(value todo, _ string) { strict = append(strict, value) })
	SubscribeAs(s, "current", func(value todo, _ string) { lenient = append(lenient, value) }, DecodeAllowNil[todo]())
	sched.Tick()

	require.Empty(t, strict)
	require.Equal(t, []todo{{}}, lenient)

	s.Root().Set("current", map[string]any{"title": "ship"})
	sched.Tick()

	require.Equal(t, []todo{{Title: "ship"}}, strict)
	require.Equal(t, []todo{{}, {Title: "ship"}}, lenient)
}

func TestSubscribeAsLogsDecodeFailures(t *testing.T) {
	var failures []observe.LogEvent
	logger := observe.LoggerFunc(func(event observe.LogEvent) {
		if event.Kind == EventDecodeFailed {
			failures = append(failures, event)
		}
	})
	s, sched := newManualState(t, WithDebounce(false), WithLogger(logger))
	s.Root().Set("current", "not a todo")

	var got []todo
	SubscribeAs(s, "current", func(value todo, _ string) { got = append(got, value) })
	sched.Tick()

	require.Empty(t, got)
	require.Len(t, failures, 1)
	require.Equal(t, "current", failures[0].Path)
}

func TestSubscribeAsHooks(t *testing.T) {
	s, sched := newManualState(t, WithDebounce(false))
	s.Root().Set("current", "ship release")

	errEmptyTitle := errors.New("empty title")
	var got []todo
	SubscribeAs(s, "current", func(value todo, _ string) { got = append(got, value) },
		DecodeWithPreHook[todo](func(_ DecodeContext, raw any) (any, error) {
			if text, ok := raw.(string); ok {
				return map[string]any{"title": text}, nil
			}
			return raw, nil
		}),
		DecodeWithPostHook[todo](func(_ DecodeContext, value *todo) error {
			if value.Title == "" {
				return errEmptyTitle
			}
			value.Title = strings.ToUpper(value.Title)
			return nil
		}),
	)
	s.Root().Set("current", "")
	sched.Tick()

	require.Equal(t, []todo{{Title: "SHIP RELEASE"}}, got)
}

func TestGetAs(t *testing.T) {
	s, _ := newManualState(t)
	s.Root().Set("todos", []any{map[string]any{"title": "docs", "done": true}})

	value, err := GetAs[todo](s, "todos[0]")
	require.NoError(t, err)
	require.Equal(t, todo{Title: "docs", Done: true}, value)

	_, err = GetAs[todo](s, "todos[3]")
	require.ErrorIs(t, err, ErrNoValue)

	s.Root().Set("extra", map[string]any{"title": "x", "owner": "ada"})
	_, err = GetAs[todo](s, "extra", DecodeStrict[todo]())
	require.Error(t, err)
}
