// Package hydrate decodes values delivered for a state path into typed Go
// values.
package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoValue is returned when there is nothing at the path to decode.
var ErrNoValue = errors.New("hydrate: no value at path")

// Context identifies the delivery being decoded.
type Context struct {
	Path    string
	StateID string
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, any) (any, error)

// PostHook lets callers adjust or validate the decoded value.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the default JSON decoding when provided.
type CustomDecoder[T any] func(Context, any) (T, error)

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts delivered values into T.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
	custom       CustomDecoder[T]
	allowNil     bool
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber enables json.Decoder.UseNumber during decoding.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields invokes json.Decoder.DisallowUnknownFields.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

// WithCustomDecoder replaces the default JSON decoding path.
func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

// WithAllowNil decodes a missing value as the zero T instead of failing with
// ErrNoValue.
func WithAllowNil[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.allowNil = true
	}
}

// NewDecoder builds a decoder.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into T applying configured hooks. Payloads are
// round-tripped through JSON unless a custom decoder is set.
func (d *Decoder[T]) Decode(ctx Context, payload any) (T, error) {
	var zero T

	current := payload
	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for path %q failed: %w", ctx.Path, err)
		}
		if next != nil {
			current = next
		}
	}

	if current == nil {
		if !d.allowNil {
			return zero, fmt.Errorf("%w %q", ErrNoValue, ctx.Path)
		}
		return d.finish(ctx, zero)
	}

	if d.custom != nil {
		result, err := d.custom(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for path %q failed: %w", ctx.Path, err)
		}
		return d.finish(ctx, result)
	}

	if typed, ok := current.(T); ok && len(d.configureDec) == 0 {
		return d.finish(ctx, typed)
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal payload for path %q: %w", ctx.Path, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configureDec {
		if configure != nil {
			configure(decoder)
		}
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode path %q: %w", ctx.Path, err)
	}
	return d.finish(ctx, result)
}

func (d *Decoder[T]) finish(ctx Context, result T) (T, error) {
	var zero T
	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for path %q failed: %w", ctx.Path, err)
		}
	}
	return result, nil
}
