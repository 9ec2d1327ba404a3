package tates

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/pkg/activity"
	"github.com/stretchr/testify/require"
)

func TestWithActivityHooksClonesAndFiltersNil(t *testing.T) {
	hook := activity.HookFunc(func(context.Context, activity.Event) error { return nil })

	s, _ := newManualState(t, WithActivityHooks(activity.Hooks{nil, hook}))
	hooks := s.ActivityHooks()
	require.Len(t, hooks, 1)

	hooks[0] = nil
	again := s.ActivityHooks()
	require.Len(t, again, 1)
	require.NotNil(t, again[0])
}

func TestActivityHooksDefaultNil(t *testing.T) {
	s, _ := newManualState(t)
	require.Nil(t, s.ActivityHooks())
}

func TestActivityEventsForWritesAndDeletes(t *testing.T) {
	capture := &activity.CaptureHook{}
	actor := "4f9d1a0e-8f5c-4a71-9b1e-0c6f3c2d7a11"
	s, sched := newManualState(t,
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityActor(" "+actor+" "),
		WithStateID("cart"),
	)

	s.Root().Set("user", map[string]any{"name": "ada"})
	require.Empty(t, capture.Recorded(), "hooks run on the scheduler")

	s.Root().Delete("user")
	sched.Tick()

	events := capture.Recorded()
	require.Len(t, events, 2)

	changed := events[0]
	require.Equal(t, activity.VerbStateChanged, changed.Verb)
	require.Equal(t, actor, changed.ActorID)
	require.Equal(t, "user", changed.ObjectID)
	require.Equal(t, activity.DefaultChannel, changed.Channel)
	require.Equal(t, "cart", changed.Metadata["state_id"])
	require.Equal(t, map[string]any{"name": "ada"}, changed.Metadata["new_value"])

	deleted := events[1]
	require.Equal(t, activity.VerbStateDeleted, deleted.Verb)
	require.Equal(t, "user", deleted.Metadata["path"])
	require.Equal(t, map[string]any{"name": "ada"}, deleted.Metadata["old_value"])
}

func TestActivityNilWriteIsAChangeNotADelete(t *testing.T) {
	capture := &activity.CaptureHook{}
	s, sched := newManualState(t, WithActivityHooks(activity.Hooks{capture}))

	s.Root().Set("k", "v")
	s.Root().Set("k", nil)
	s.Root().Set("list", []any{"a"})
	s.Root().Get("list").(*observe.Node).Delete("0")
	sched.Tick()

	var verbs []string
	for _, event := range capture.Recorded() {
		verbs = append(verbs, event.Verb)
	}
	require.Equal(t, []string{
		activity.VerbStateChanged,
		activity.VerbStateChanged,
		activity.VerbStateChanged,
		activity.VerbStateDeleted,
	}, verbs)
	require.Equal(t, "k", capture.Recorded()[1].Metadata["path"])
	require.Equal(t, "list.0", capture.Recorded()[3].Metadata["path"])
}

func TestActivityEventForMerge(t *testing.T) {
	capture := &activity.CaptureHook{}
	s, sched := newManualState(t, WithActivityHooks(activity.Hooks{capture}))

	require.NoError(t, s.Merge(map[string]any{"a": 1, "b": 2}))
	sched.Tick()

	var merged []activity.Event
	for _, event := range capture.Recorded() {
		if event.Verb == activity.VerbStateMerged {
			merged = append(merged, event)
		}
	}
	require.Len(t, merged, 1)
	require.Equal(t, activity.ObjectTypePatch, merged[0].ObjectType)
	require.Equal(t, []string{"a", "b"}, merged[0].Metadata["keys"])
	require.Equal(t, s.ID(), merged[0].ObjectID)
}

func TestActivityDisabledByConfig(t *testing.T) {
	capture := &activity.CaptureHook{}
	s, sched := newManualState(t,
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityConfig(activity.Config{Enabled: false}),
	)

	s.Root().Set("a", 1)
	sched.Tick()

	require.Empty(t, capture.Recorded())
}

func TestActivityHookFailuresAreLogged(t *testing.T) {
	var failures []observe.LogEvent
	logger := observe.LoggerFunc(func(event observe.LogEvent) {
		if event.Kind == EventHookFailed {
			failures = append(failures, event)
		}
	})
	capture := &activity.CaptureHook{Err: errors.New("sink down")}
	s, sched := newManualState(t,
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityConfig(activity.Config{Enabled: true, Channel: "audit"}),
		WithLogger(logger),
	)

	s.Root().Set("a", 1)
	sched.Tick()

	require.Len(t, capture.Recorded(), 1)
	require.Equal(t, "audit", capture.Recorded()[0].Channel)
	require.Len(t, failures, 1)
	require.Equal(t, "a", failures[0].Path)
	require.ErrorContains(t, failures[0].Err, "sink down")
}
