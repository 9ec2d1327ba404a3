package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const todoScript = `
config:
  debounce: false
subscribe: ["todos[0].title", "*"]
watch: ["len(todos ?? [])"]
steps:
  - op: set
    path: todos
    value:
      - title: draft
  - op: set
    path: todos[0].title
    value: final
  - op: invoke
    path: todos
    method: push
    args: [{title: ship}]
  - op: merge
    value: {owner: ada}
  - op: delete
    path: owner
`

func TestReplayPrintsDeliveries(t *testing.T) {
	script, err := loadScript(strings.NewReader(todoScript))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, replay(script, &out))

	require.Equal(t, []string{
		`todos[0].title todos.0.title null`,
		`* - null`,
		`watch len(todos ?? []) 0`,
		`todos[0].title todos.0.title "draft"`,
		`* todos [{"title":"draft"}]`,
		`watch len(todos ?? []) 1`,
		`todos[0].title todos.0.title "final"`,
		`* todos [{"title":"final"},{"title":"ship"}]`,
		`watch len(todos ?? []) 2`,
		`* owner "ada"`,
		`* owner null`,
	}, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestLoadScriptRejectsInvalidSteps(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no steps":       "subscribe: [a]\n",
		"unknown op":     "steps: [{op: rename, path: a}]\n",
		"missing path":   "steps: [{op: set, value: 1}]\n",
		"missing method": "steps: [{op: invoke, path: a}]\n",
		"unknown field":  "steps: [{op: set, path: a, valu: 1}]\n",
		"bad config":     "config: {evaluator: lua}\nsteps: [{op: set, path: a}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadScript(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestReplayCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config: {debounce: false}\nsubscribe: [a]\nsteps: [{op: set, path: a, value: 1}]\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"replay", path})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "a a null\na a 1\n", out.String())
}
