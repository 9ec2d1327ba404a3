package tates

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-tates/observe"
	"github.com/goliatone/go-tates/pkg/activity"
	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the State options, loadable from YAML or
// JSON.
type Config struct {
	// Debounce defaults to true when omitted.
	Debounce       *bool          `yaml:"debounce" json:"debounce,omitempty"`
	// DebounceWaitMS keeps the default wait when omitted. Zero coalesces only
	// the writes made before the scheduler next runs.
	DebounceWaitMS *int           `yaml:"debounce_wait_ms" json:"debounce_wait_ms,omitempty" validate:"omitempty,gte=0,lte=60000"`
	StateID        string         `yaml:"state_id" json:"state_id,omitempty" validate:"omitempty,max=128"`
	Evaluator      string         `yaml:"evaluator" json:"evaluator,omitempty" validate:"omitempty,oneof=expr cel js"`
	Observe        ObserveConfig  `yaml:"observe" json:"observe"`
	Activity       ActivityConfig `yaml:"activity" json:"activity"`
}

// ObserveConfig mirrors the engine ignore policies.
type ObserveConfig struct {
	Shallow           bool     `yaml:"shallow" json:"shallow,omitempty"`
	IgnoreSymbols     bool     `yaml:"ignore_symbols" json:"ignore_symbols,omitempty"`
	IgnoreUnderscored bool     `yaml:"ignore_underscored" json:"ignore_underscored,omitempty"`
	IgnoreKeys        []string `yaml:"ignore_keys" json:"ignore_keys,omitempty" validate:"dive,required"`
}

// ActivityConfig controls activity emission.
type ActivityConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled,omitempty"`
	Channel string `yaml:"channel" json:"channel,omitempty" validate:"omitempty,max=64"`
	ActorID string `yaml:"actor_id" json:"actor_id,omitempty" validate:"omitempty,uuid"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig decodes YAML from r and validates it. An empty document yields
// the zero Config.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("tates: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("tates: invalid config: %w", err)
	}
	return nil
}

// Options converts the configuration into State options. Extra options are
// appended and win over the configured ones.
func (c Config) Options(extra ...Option) []Option {
	var opts []Option
	if c.Debounce != nil {
		opts = append(opts, WithDebounce(*c.Debounce))
	}
	if c.DebounceWaitMS != nil {
		opts = append(opts, WithDebounceWait(time.Duration(*c.DebounceWaitMS)*time.Millisecond))
	}
	if c.StateID != "" {
		opts = append(opts, WithStateID(c.StateID))
	}
	switch c.Evaluator {
	case "cel":
		opts = append(opts, WithEvaluator(NewCELEvaluator()))
	case "js":
		if evaluator := NewJSEvaluator(); evaluator != nil {
			opts = append(opts, WithEvaluator(evaluator))
		}
	}

	var engine []observe.Option
	if c.Observe.Shallow {
		engine = append(engine, observe.WithShallow(true))
	}
	if c.Observe.IgnoreSymbols {
		engine = append(engine, observe.WithIgnoreSymbols(true))
	}
	if c.Observe.IgnoreUnderscored {
		engine = append(engine, observe.WithIgnoreUnderscored(true))
	}
	if len(c.Observe.IgnoreKeys) > 0 {
		engine = append(engine, observe.WithIgnoreKeys(c.Observe.IgnoreKeys...))
	}
	if len(engine) > 0 {
		opts = append(opts, WithObserveOptions(engine...))
	}

	if c.Activity.Enabled != nil || c.Activity.Channel != "" {
		enabled := c.Activity.Enabled == nil || *c.Activity.Enabled
		opts = append(opts, WithActivityConfig(activity.Config{
			Enabled: enabled,
			Channel: c.Activity.Channel,
		}))
	}
	if c.Activity.ActorID != "" {
		opts = append(opts, WithActivityActor(c.Activity.ActorID))
	}
	return append(opts, extra...)
}
