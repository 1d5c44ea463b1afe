// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/document"
)

// VersionKey is the top-level document key carrying the schema version a file was written for.
const VersionKey = "config-version"

// Field declares one typed entry of a configuration document.
type Field struct {
	Path      string // document path, e.g. "audio.volume"
	Type      string // registered codec type name, see codec.TypeNameOf
	Required  bool   // must resolve to a non-null value after defaults are merged
	Env       string // optional environment variable overriding the entry
	Sensitive bool   // value is masked in logs
}

// Migration upgrades a document by one schema version.
type Migration func(document.Node) (document.Node, error)

// Schema describes a configuration document: its defaults, typed fields and the
// migrations that bring older documents up to date. A Schema is immutable.
type Schema struct {
	name       string
	version    int
	defaults   document.Node
	fields     []Field
	paths      map[string]document.Path
	migrations map[int]Migration
	checks     []Check
	strict     bool
}

// Check validates a resolved document beyond per-field decoding, e.g. ranges
// or relations between fields. It runs after env overrides are applied.
type Check func(r *codec.Registry, root document.Node) error

// SchemaOption configures NewSchema.
type SchemaOption func(*Schema) error

// WithFields declares typed fields.
func WithFields(fields ...Field) SchemaOption {
	return func(s *Schema) error {
		s.fields = append(s.fields, fields...)
		return nil
	}
}

// WithMigration registers the migration upgrading documents of version from to from+1.
func WithMigration(from int, m Migration) SchemaOption {
	return func(s *Schema) error {
		if m == nil {
			return fmt.Errorf("migration from version %d is nil", from)
		}
		if _, exists := s.migrations[from]; exists {
			return fmt.Errorf("duplicate migration from version %d", from)
		}
		s.migrations[from] = m
		return nil
	}
}

// WithCheck adds a document level validation.
func WithCheck(c Check) SchemaOption {
	return func(s *Schema) error {
		if c == nil {
			return errors.New("check is nil")
		}
		s.checks = append(s.checks, c)
		return nil
	}
}

// WithStrictKeys makes keys the schema does not know a validation failure.
// Without it they are logged and otherwise ignored.
func WithStrictKeys() SchemaOption {
	return func(s *Schema) error {
		s.strict = true
		return nil
	}
}

var errInvalidSchema = errors.New("config: invalid schema")

// NewSchema validates and builds a Schema. defaults must be a mapping (or Null
// for an empty one); the version key is managed by the schema and is set on it.
func NewSchema(name string, version int, defaults document.Node, opts ...SchemaOption) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", errInvalidSchema)
	}
	if version < 1 {
		return nil, fmt.Errorf("%w: %s: version must be >= 1, got %d", errInvalidSchema, name, version)
	}
	if defaults.IsNull() {
		defaults = document.Mapping()
	}
	if defaults.Kind() != document.KindMapping {
		return nil, fmt.Errorf("%w: %s: defaults must be a mapping, got %s", errInvalidSchema, name, defaults.Kind())
	}

	s := &Schema{
		name:       name,
		version:    version,
		defaults:   defaults.Set(VersionKey, document.Int(int64(version))),
		paths:      make(map[string]document.Path),
		migrations: make(map[int]Migration),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errInvalidSchema, name, err)
		}
	}

	envs := make(map[string]string)
	for _, f := range s.fields {
		p, err := document.ParsePath(f.Path)
		if err != nil || len(p) == 0 {
			return nil, fmt.Errorf("%w: %s: field path %q: %v", errInvalidSchema, name, f.Path, err)
		}
		if f.Type == "" {
			return nil, fmt.Errorf("%w: %s: field %q has no type", errInvalidSchema, name, f.Path)
		}
		if _, dup := s.paths[f.Path]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate field %q", errInvalidSchema, name, f.Path)
		}
		s.paths[f.Path] = p
		if f.Env != "" {
			if other, dup := envs[f.Env]; dup {
				return nil, fmt.Errorf("%w: %s: env %s bound to %q and %q", errInvalidSchema, name, f.Env, other, f.Path)
			}
			envs[f.Env] = f.Path
		}
	}
	for from := range s.migrations {
		if from < 0 || from >= version {
			return nil, fmt.Errorf("%w: %s: migration from %d outside [0, %d)", errInvalidSchema, name, from, version)
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level schema declarations.
func MustSchema(name string, version int, defaults document.Node, opts ...SchemaOption) *Schema {
	s, err := NewSchema(name, version, defaults, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Version returns the current schema version.
func (s *Schema) Version() int { return s.version }

// Defaults returns the default document, including the version key.
func (s *Schema) Defaults() document.Node { return s.defaults }

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Field returns the declaration for path.
func (s *Schema) Field(path string) (Field, bool) {
	for _, f := range s.fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) fieldPath(f Field) document.Path { return s.paths[f.Path] }

// unknownKeys lists the mapping keys of root that neither the defaults nor a
// declared field account for. Values of declared fields, sequences and
// mappings that are empty in the defaults are not inspected.
func (s *Schema) unknownKeys(root document.Node) []document.Path {
	var out []document.Path
	var walk func(n, def document.Node, p document.Path)
	walk = func(n, def document.Node, p document.Path) {
		for _, key := range n.Keys() {
			if len(p) == 0 && key == VersionKey {
				continue
			}
			cp := p.Child(key)
			if s.declares(cp) {
				continue
			}
			child, _ := n.Get(key)
			d, inDefaults := def.Get(key)
			below := s.declaresBelow(cp)
			if !inDefaults && !below {
				out = append(out, cp)
				continue
			}
			if child.Kind() != document.KindMapping {
				continue
			}
			if below || (d.Kind() == document.KindMapping && d.Len() > 0) {
				walk(child, d, cp)
			}
		}
	}
	walk(root, s.defaults, nil)
	return out
}

func (s *Schema) declares(p document.Path) bool {
	for _, fp := range s.paths {
		if hasPrefix(p, fp) {
			return true
		}
	}
	return false
}

func (s *Schema) declaresBelow(p document.Path) bool {
	for _, fp := range s.paths {
		if len(fp) > len(p) && hasPrefix(fp, p) {
			return true
		}
	}
	return false
}

func hasPrefix(p, prefix document.Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// migrate upgrades root from its recorded version to the schema version. Steps
// without a registered migration only bump the version. A document without a
// version key is taken to be current.
func (s *Schema) migrate(root document.Node) (document.Node, bool, error) {
	raw, ok := root.Get(VersionKey)
	if !ok || raw.IsNull() {
		return root.Set(VersionKey, document.Int(int64(s.version))), false, nil
	}
	from, ok := raw.AsInt()
	if !ok {
		if f, isFloat := raw.AsFloat(); isFloat && f == float64(int64(f)) {
			from, ok = int64(f), true
		}
	}
	if !ok {
		return document.Node{}, false, fmt.Errorf("%s must be an integer, got %s", VersionKey, raw)
	}
	if from > int64(s.version) {
		return document.Node{}, false, fmt.Errorf("document version %d is newer than supported version %d", from, s.version)
	}

	steps := make([]int, 0, len(s.migrations))
	for v := range s.migrations {
		if int64(v) >= from {
			steps = append(steps, v)
		}
	}
	sort.Ints(steps)

	out := root
	for _, v := range steps {
		next, err := s.migrations[v](out)
		if err != nil {
			return document.Node{}, false, fmt.Errorf("migrate from version %d: %w", v, err)
		}
		if next.Kind() != document.KindMapping {
			return document.Node{}, false, fmt.Errorf("migrate from version %d: result is %s, not a mapping", v, next.Kind())
		}
		out = next
	}
	return out.Set(VersionKey, document.Int(int64(s.version))), from < int64(s.version), nil
}
