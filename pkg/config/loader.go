// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/document"
)

// LoadOption tunes Load and Save.
type LoadOption func(*loadOptions)

type loadOptions struct {
	env    EnvLookup
	logger zerolog.Logger
	now    func() time.Time
}

// WithEnv replaces os.LookupEnv for environment overrides.
func WithEnv(lookup EnvLookup) LoadOption {
	return func(o *loadOptions) {
		if lookup != nil {
			o.env = lookup
		}
	}
}

// WithLogger sets the logger used while loading.
func WithLogger(logger zerolog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = logger }
}

func newLoadOptions(opts []LoadOption) loadOptions {
	o := loadOptions{
		env:    os.LookupEnv,
		logger: sklog.WithComponent("config"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads, parses, migrates, merges, overrides and validates one document.
// Precedence is ENV > file > defaults. A missing document is seeded with the
// schema defaults, which are written through the backend.
func Load(ctx context.Context, b Backend, s *Schema, r *codec.Registry, opts ...LoadOption) (*Instance, error) {
	o := newLoadOptions(opts)
	logger := o.logger.With().Str(sklog.FieldSchema, s.Name()).Str(sklog.FieldBackend, b.Describe()).Logger()
	fail := func(kind Kind, paths []string, err error) error {
		return &Error{Kind: kind, Schema: s.Name(), Source: b.Describe(), Paths: paths, Err: err}
	}

	stored, err := readDocument(ctx, b, s, logger)
	if err != nil {
		return nil, fail(kindOf(err), nil, err)
	}

	migrated, wasMigrated, err := s.migrate(stored)
	if err != nil {
		return nil, fail(ValidationFailure, []string{"$." + VersionKey}, err)
	}
	if wasMigrated {
		logger.Info().
			Str(sklog.FieldEvent, "config.migrated").
			Int(sklog.FieldVersion, s.Version()).
			Msg("configuration document migrated")
	}

	file, err := document.Merge(s.Defaults(), migrated)
	if err != nil {
		return nil, fail(ValidationFailure, nil, err)
	}

	inst := &Instance{
		file:     file,
		schema:   s.Name(),
		version:  s.Version(),
		dirty:    wasMigrated,
		migrated: wasMigrated,
		loadedAt: o.now(),
	}
	if err := resolve(inst, s, r, o, logger); err != nil {
		return nil, fail(ValidationFailure, pathsOf(err), err)
	}
	return inst, nil
}

var errNotMapping = errors.New("document root must be a mapping")

type backendError struct{ err error }

func (e backendError) Error() string { return e.err.Error() }
func (e backendError) Unwrap() error { return e.err }

func kindOf(err error) Kind {
	var be backendError
	if errors.As(err, &be) {
		return BackendUnavailable
	}
	return ParseFailure
}

// readDocument returns the stored document as a mapping, seeding the defaults
// when nothing is stored yet.
func readDocument(ctx context.Context, b Backend, s *Schema, logger zerolog.Logger) (document.Node, error) {
	raw, err := b.Read(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		data, serr := document.Serialize(s.Defaults(), b.Format())
		if serr != nil {
			return document.Node{}, backendError{serr}
		}
		if werr := b.Write(ctx, data); werr != nil {
			return document.Node{}, backendError{fmt.Errorf("save default config: %w", werr)}
		}
		logger.Info().
			Str(sklog.FieldEvent, "config.seeded").
			Msg("saved default configuration")
		return s.Defaults(), nil
	}
	if err != nil {
		return document.Node{}, backendError{err}
	}

	n, err := document.Parse(raw, b.Format())
	if err != nil {
		return document.Node{}, err
	}
	if n.IsNull() {
		return document.Mapping(), nil
	}
	if n.Kind() != document.KindMapping {
		return document.Node{}, fmt.Errorf("%w, got %s", errNotMapping, n.Kind())
	}
	return n, nil
}

// validationErrors collects every failing field.
type validationErrors struct {
	paths []string
	errs  []error
}

func (v *validationErrors) Error() string {
	if len(v.errs) == 1 {
		return v.errs[0].Error()
	}
	return fmt.Sprintf("%d invalid fields: %v", len(v.errs), errors.Join(v.errs...))
}

func (v *validationErrors) Unwrap() []error { return v.errs }

func pathsOf(err error) []string {
	var ve *validationErrors
	if errors.As(err, &ve) {
		return ve.paths
	}
	return nil
}

// resolve applies environment overrides to inst.file and validates the result
// into inst.root.
func resolve(inst *Instance, s *Schema, r *codec.Registry, o loadOptions, logger zerolog.Logger) error {
	root, applied, err := applyEnv(logger, s, inst.file, o.env)
	if err != nil {
		return err
	}
	if err := validate(s, r, root); err != nil {
		return err
	}
	if unknown := s.unknownKeys(root); len(unknown) > 0 {
		paths := make([]string, len(unknown))
		for i, p := range unknown {
			paths[i] = p.Display()
		}
		logger.Warn().
			Str(sklog.FieldEvent, "config.unknown_keys").
			Strs("paths", paths).
			Msg("configuration contains keys the schema does not declare")
	}
	inst.root = root
	inst.env = applied
	return nil
}

func validate(s *Schema, r *codec.Registry, root document.Node) error {
	ve := &validationErrors{}
	for _, f := range s.fields {
		p := s.fieldPath(f)
		n, ok := root.Lookup(p)
		if !ok || n.IsNull() {
			if f.Required {
				ve.paths = append(ve.paths, p.Display())
				ve.errs = append(ve.errs, fmt.Errorf("%s: required value missing", p.Display()))
			}
			continue
		}
		if _, err := r.DecodeAny(f.Type, n); err != nil {
			ve.paths = append(ve.paths, p.Display())
			ve.errs = append(ve.errs, codec.Prefix(err, p...))
		}
	}
	if s.strict {
		for _, p := range s.unknownKeys(root) {
			ve.paths = append(ve.paths, p.Display())
			ve.errs = append(ve.errs, fmt.Errorf("%s: unknown key", p.Display()))
		}
	}
	if len(ve.errs) > 0 {
		return ve
	}
	for _, check := range s.checks {
		if err := check(r, root); err != nil {
			ve.errs = append(ve.errs, err)
		}
	}
	if len(ve.errs) > 0 {
		return ve
	}
	return nil
}

// Save serializes the persisted layer of inst in the backend format and writes
// it. A failed write leaves the stored document untouched.
func Save(ctx context.Context, b Backend, s *Schema, inst *Instance) error {
	data, err := document.Serialize(inst.file, b.Format())
	if err != nil {
		return &Error{Kind: ValidationFailure, Schema: s.Name(), Source: b.Describe(), Err: err}
	}
	if err := b.Write(ctx, data); err != nil {
		return &Error{Kind: BackendUnavailable, Schema: s.Name(), Source: b.Describe(), Err: err}
	}
	return nil
}
