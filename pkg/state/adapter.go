// SPDX-License-Identifier: MIT

package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/pkg/codec"
)

// ErrAbsent is returned by Read when no entry exists for the key.
var ErrAbsent = errors.New("state: no entry")

// CorruptEntryError reports an entry that exists but cannot be decoded as the
// requested type, typically because an incompatible codec version wrote it.
type CorruptEntryError struct {
	Key  Key
	Type string
	Err  error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("state: corrupt entry %s (as %s): %v", e.Key, e.Type, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }

// Adapter stores values through the tag form of their registered codecs.
type Adapter struct {
	registry *codec.Registry
	logger   zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// NewAdapter returns an adapter over r.
func NewAdapter(r *codec.Registry, opts ...Option) *Adapter {
	a := &Adapter{registry: r, logger: sklog.WithComponent("state")}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the codec registry of the adapter.
func (a *Adapter) Registry() *codec.Registry { return a.registry }

// Write encodes v and stores it under key, replacing any existing entry.
func Write[T any](ctx context.Context, a *Adapter, c Container, key Key, v T) error {
	data, err := codec.EncodeTag(a.registry, v)
	if err != nil {
		return fmt.Errorf("state: write %s: %w", key, err)
	}
	if err := c.Set(ctx, key.String(), data); err != nil {
		return fmt.Errorf("state: write %s: %w", key, err)
	}
	return nil
}

// Read returns the value stored under key. It fails with ErrAbsent when there
// is no entry and with *CorruptEntryError when the entry cannot be decoded.
// Registry misuse (no codec for T) is returned as *codec.UnknownTypeError.
func Read[T any](ctx context.Context, a *Adapter, c Container, key Key) (T, error) {
	var zero T
	if _, err := codec.Lookup[T](a.registry); err != nil {
		return zero, err
	}
	data, ok, err := c.Get(ctx, key.String())
	if err != nil {
		return zero, fmt.Errorf("state: read %s: %w", key, err)
	}
	if !ok {
		return zero, ErrAbsent
	}
	v, err := codec.DecodeTag[T](a.registry, data)
	if err != nil {
		return zero, &CorruptEntryError{Key: key, Type: codec.TypeNameOf[T](), Err: err}
	}
	return v, nil
}

// ReadOr is Read that falls back to def for absent and corrupt entries.
// Corrupt entries are logged.
func ReadOr[T any](ctx context.Context, a *Adapter, c Container, key Key, def T) (T, error) {
	v, err := Read[T](ctx, a, c, key)
	var corrupt *CorruptEntryError
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrAbsent):
		return def, nil
	case errors.As(err, &corrupt):
		a.logger.Warn().
			Err(err).
			Str(sklog.FieldEvent, "state.corrupt_entry").
			Str(sklog.FieldKey, key.String()).
			Msg("ignoring corrupt state entry")
		return def, nil
	default:
		return def, err
	}
}

// Delete removes the entry under key. Removing an absent key is a no-op.
func (a *Adapter) Delete(ctx context.Context, c Container, key Key) error {
	if err := c.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("state: delete %s: %w", key, err)
	}
	return nil
}

// Has reports whether an entry exists under key.
func (a *Adapter) Has(ctx context.Context, c Container, key Key) (bool, error) {
	_, ok, err := c.Get(ctx, key.String())
	if err != nil {
		return false, fmt.Errorf("state: read %s: %w", key, err)
	}
	return ok, nil
}

// Keys lists the keys of namespace held by c, sorted. Container entries that
// are not valid keys are skipped.
func (a *Adapter) Keys(ctx context.Context, c Container, namespace string) ([]Key, error) {
	raw, err := c.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("state: list keys: %w", err)
	}
	var out []Key
	for _, s := range raw {
		k, err := ParseKey(s)
		if err != nil {
			a.logger.Debug().Str(sklog.FieldKey, s).Msg("skipping foreign container entry")
			continue
		}
		if k.Namespace == namespace {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
