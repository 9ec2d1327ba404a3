package tates

import (
	"errors"

	"github.com/goliatone/go-tates/internal/hydrate"
	"github.com/goliatone/go-tates/keypath"
)

// ErrNoValue is returned by GetAs when nothing is stored at the path.
var ErrNoValue = hydrate.ErrNoValue

// DecodeContext identifies the delivery being decoded.
type DecodeContext = hydrate.Context

// DecodeOption configures how SubscribeAs and GetAs decode values.
type DecodeOption[T any] = hydrate.DecoderOption[T]

// DecodeAllowNil decodes a missing value as the zero T.
func DecodeAllowNil[T any]() DecodeOption[T] {
	return hydrate.WithAllowNil[T]()
}

// DecodeStrict rejects values carrying fields T does not declare.
func DecodeStrict[T any]() DecodeOption[T] {
	return hydrate.WithDisallowUnknownFields[T]()
}

// DecodeWithPreHook rewrites the raw value before decoding.
func DecodeWithPreHook[T any](hook func(DecodeContext, any) (any, error)) DecodeOption[T] {
	return hydrate.WithPreHook[T](hook)
}

// DecodeWithPostHook adjusts or validates the decoded value.
func DecodeWithPostHook[T any](hook func(DecodeContext, *T) error) DecodeOption[T] {
	return hydrate.WithPostHook[T](hook)
}

// TypedListener receives values decoded into T.
type TypedListener[T any] func(value T, path string)

// SubscribeAs subscribes to path and decodes every delivery into T before
// calling l. Values are converted through a JSON round trip unless they
// already are a T. Deliveries with nothing at the path are skipped unless
// DecodeAllowNil is given; other decode failures are logged and
// skipped.
func SubscribeAs[T any](s *State, path string, l TypedListener[T], opts ...DecodeOption[T]) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	decoder := hydrate.NewDecoder(opts...)
	return s.Subscribe(path, func(value any, deliveredPath string) {
		typed, err := decoder.Decode(hydrate.Context{Path: deliveredPath, StateID: s.id}, value)
		if err != nil {
			if !errors.Is(err, hydrate.ErrNoValue) {
				s.log(EventDecodeFailed, deliveredPath, err)
			}
			return
		}
		l(typed, deliveredPath)
	})
}

// GetAs decodes the current value at path into T.
func GetAs[T any](s *State, path string, opts ...DecodeOption[T]) (T, error) {
	decoder := hydrate.NewDecoder(opts...)
	return decoder.Decode(hydrate.Context{Path: keypath.Normalize(path), StateID: s.id}, s.Get(path))
}
