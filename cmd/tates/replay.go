package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	tates "github.com/goliatone/go-tates"
	"github.com/goliatone/go-tates/keypath"
	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/schedule"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Script is a replayable sequence of mutations.
type Script struct {
	Config    tates.Config `yaml:"config"`
	Subscribe []string     `yaml:"subscribe"`
	Watch     []string     `yaml:"watch" validate:"dive,required"`
	Steps     []Step       `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one mutation. Path is dotted or bracketed; merge ignores it.
type Step struct {
	Op     string `yaml:"op" validate:"required,oneof=set delete merge invoke"`
	Path   string `yaml:"path" validate:"required_unless=Op merge"`
	Value  any    `yaml:"value"`
	Method string `yaml:"method" validate:"required_if=Op invoke"`
	Args   []any  `yaml:"args"`
	// Flush delivers everything pending before the next step runs.
	Flush bool `yaml:"flush"`
}

var scriptValidator = validator.New(validator.WithRequiredStructEnabled())

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a mutation script and print deliveries",
		Long: `Replay reads a YAML script holding a state config, the paths to subscribe
to, watch expressions and a list of steps (set, delete, merge, invoke).
Deliveries are printed one per line as "<subscription> <path> <json value>".
Use "-" to read the script from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			script, err := loadScript(in)
			if err != nil {
				return err
			}
			return replay(script, cmd.OutOrStdout())
		},
	}
}

func loadScript(r io.Reader) (Script, error) {
	var script Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, fmt.Errorf("script is empty")
		}
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	if err := scriptValidator.Struct(script); err != nil {
		return Script{}, fmt.Errorf("invalid script: %w", err)
	}
	if err := script.Config.Validate(); err != nil {
		return Script{}, err
	}
	return script, nil
}

func replay(script Script, out io.Writer) error {
	sched := schedule.NewManual()
	s := tates.New(script.Config.Options(tates.WithScheduler(sched))...)
	defer s.Close()

	printer := func(label string) tates.Listener {
		return func(value any, path string) {
			encoded, err := json.Marshal(value)
			if err != nil {
				encoded = []byte(fmt.Sprintf("%q", err.Error()))
			}
			if path == "" {
				path = "-"
			}
			fmt.Fprintf(out, "%s %s %s\n", label, path, encoded)
		}
	}

	for _, path := range script.Subscribe {
		label := path
		if strings.TrimSpace(path) == "" || path == "*" {
			s.SubscribeAll(printer("*"))
			continue
		}
		s.Subscribe(path, printer(label))
	}
	for _, expr := range script.Watch {
		if _, err := s.Watch(expr, printer("watch")); err != nil {
			return err
		}
	}
	sched.Flush()

	for i, step := range script.Steps {
		if err := apply(s, step); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i+1, step.Op, step.Path, err)
		}
		if step.Flush {
			sched.Flush()
		}
	}
	sched.Flush()
	return nil
}

func apply(s *tates.State, step Step) error {
	switch step.Op {
	case "merge":
		patch, ok := step.Value.(map[string]any)
		if !ok {
			return fmt.Errorf("merge value must be a mapping, got %T", step.Value)
		}
		return s.Merge(patch)
	case "invoke":
		node, ok := s.Root().Lookup(step.Path).(*observe.Node)
		if !ok {
			return fmt.Errorf("nothing observable at %q", step.Path)
		}
		_, err := node.Invoke(step.Method, step.Args...)
		return err
	}

	path := keypath.Parse(step.Path)
	if path.IsRoot() {
		return fmt.Errorf("%s needs a key below the root", step.Op)
	}
	parent := s.Root()
	if initial := path.Initial(); len(initial) > 0 {
		node, ok := s.Root().Lookup(initial.String()).(*observe.Node)
		if !ok {
			return fmt.Errorf("nothing observable at %q", initial.String())
		}
		parent = node
	}
	key := path[len(path)-1]
	if step.Op == "delete" {
		parent.Delete(key)
		return nil
	}
	parent.Set(key, step.Value)
	return nil
}
