package layering

import (
	"reflect"
	"regexp"
	"testing"
	"time"
)

func TestMergeLayersMaps(t *testing.T) {
	strong := map[string]any{
		"theme": "dark",
		"limits": map[string]any{
			"daily": 5,
		},
		"tags": []any{"a"},
	}
	weak := map[string]any{
		"theme": "light",
		"limits": map[string]any{
			"daily":   1,
			"monthly": 30,
		},
		"tags":  []any{"x", "y"},
		"other": true,
	}

	got := MergeLayers(strong, weak)
	want := map[string]any{
		"theme": "dark",
		"limits": map[string]any{
			"daily":   5,
			"monthly": 30,
		},
		"tags":  []any{"a"},
		"other": true,
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("merged mismatch:\nwant: %#v\n got: %#v", want, got)
	}

	got["limits"].(map[string]any)["daily"] = 99
	if strong["limits"].(map[string]any)["daily"] != 5 {
		t.Fatalf("merge result must not alias the strong layer")
	}
	if weak["limits"].(map[string]any)["monthly"] != 30 {
		t.Fatalf("merge result must not alias the weak layer")
	}
}

func TestMergeLayersStructs(t *testing.T) {
	type channel struct {
		Enabled *bool
		Labels  []string
	}
	type settings struct {
		Channel *channel
		Limit   int
	}
	on := true
	strong := settings{Channel: &channel{Labels: []string{"x"}}}
	weak := settings{Channel: &channel{Enabled: &on}, Limit: 3}

	got := MergeLayers(strong, weak)
	if got.Channel == nil || got.Channel.Enabled == nil || !*got.Channel.Enabled {
		t.Fatalf("expected weak pointer field to fill in, got %+v", got.Channel)
	}
	if got.Limit != 0 {
		t.Fatalf("expected scalar fields to come from the strong layer, got %d", got.Limit)
	}
	if len(got.Channel.Labels) != 1 || got.Channel.Labels[0] != "x" {
		t.Fatalf("expected strong labels to win, got %v", got.Channel.Labels)
	}
	if got.Channel.Enabled == weak.Channel.Enabled {
		t.Fatalf("expected merged pointer to be cloned")
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	type sample struct {
		Value int
	}
	var zero sample
	if got := MergeLayers[sample](); got != zero {
		t.Fatalf("expected MergeLayers() to return zero value, got %+v", got)
	}
}

func TestCloneDeepCopiesGraph(t *testing.T) {
	fn := func() int { return 1 }
	original := map[string]any{
		"a": map[string]any{"b": []any{1, map[string]any{"c": "d"}}},
		"f": fn,
	}

	cloned := Clone(original)
	if !reflect.DeepEqual(original["a"], cloned["a"]) {
		t.Fatalf("expected clone to equal original")
	}

	inner := cloned["a"].(map[string]any)["b"].([]any)[1].(map[string]any)
	inner["c"] = "changed"
	if original["a"].(map[string]any)["b"].([]any)[1].(map[string]any)["c"] != "d" {
		t.Fatalf("clone must not alias nested maps")
	}
	if cloned["f"].(func() int)() != 1 {
		t.Fatalf("functions should be carried over")
	}
}

func TestCloneAnyAndNil(t *testing.T) {
	if got := Clone[any](nil); got != nil {
		t.Fatalf("expected nil clone, got %#v", got)
	}
	var value any = []any{"x"}
	cloned := Clone(value)
	cloned.([]any)[0] = "y"
	if value.([]any)[0] != "x" {
		t.Fatalf("clone through interface must copy the slice")
	}
}

func TestCloneKeepsOpaqueValues(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^a+$`)
	original := map[string]any{"at": at, "pattern": pattern}

	cloned := Clone(original)
	if got := cloned["at"].(time.Time); !got.Equal(at) {
		t.Fatalf("expected time to survive clone, got %v", got)
	}
	if cloned["pattern"].(*regexp.Regexp) != pattern {
		t.Fatalf("expected opaque pointers to be shared")
	}

	merged := MergeLayers(map[string]any{"at": at}, map[string]any{"at": time.Time{}})
	if got := merged["at"].(time.Time); !got.Equal(at) {
		t.Fatalf("expected strong time to win the merge, got %v", got)
	}
}

func TestCloneKeepsCyclesAndSharing(t *testing.T) {
	shared := []any{"s"}
	original := map[string]any{"name": "root", "a": shared, "b": shared}
	original["self"] = original

	cloned := Clone(original)
	self, ok := cloned["self"].(map[string]any)
	if !ok {
		t.Fatalf("expected self reference to survive, got %T", cloned["self"])
	}
	if reflect.ValueOf(self).UnsafePointer() != reflect.ValueOf(cloned).UnsafePointer() {
		t.Fatalf("expected the copy to point back at itself")
	}
	if reflect.ValueOf(cloned).UnsafePointer() == reflect.ValueOf(original).UnsafePointer() {
		t.Fatalf("expected a new map")
	}
	cloned["a"].([]any)[0] = "changed"
	if cloned["b"].([]any)[0] != "changed" {
		t.Fatalf("expected shared slices to stay shared in the copy")
	}
	if shared[0] != "s" {
		t.Fatalf("clone must not alias the original slice")
	}
}

func TestMergeLayersWithCycles(t *testing.T) {
	strong := map[string]any{"a": 1}
	strong["loop"] = strong
	weak := map[string]any{"b": 2}
	weak["loop"] = weak

	merged := MergeLayers(strong, weak)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Fatalf("expected keys from both layers, got a=%v b=%v", merged["a"], merged["b"])
	}
	if _, ok := merged["loop"].(map[string]any); !ok {
		t.Fatalf("expected loop to stay a map, got %T", merged["loop"])
	}
}
