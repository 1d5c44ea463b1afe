// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/document"
)

// Instance is one resolved configuration snapshot. It is immutable; reloads and
// updates produce new instances.
type Instance struct {
	root       document.Node // file layer with environment overrides applied
	file       document.Node // defaults merged with the stored document
	schema     string
	version    int
	dirty      bool
	migrated   bool
	loadedAt   time.Time
	generation uint64
	env        []string
}

// Root returns the resolved document.
func (i *Instance) Root() document.Node { return i.root }

// Persisted returns the document Save writes: defaults and stored values,
// without environment overrides.
func (i *Instance) Persisted() document.Node { return i.file }

// Schema returns the name of the schema the instance was loaded with.
func (i *Instance) Schema() string { return i.schema }

// Version returns the schema version of the document.
func (i *Instance) Version() int { return i.version }

// Dirty reports whether the instance holds changes that were not saved.
func (i *Instance) Dirty() bool { return i.dirty }

// Migrated reports whether loading upgraded an older document.
func (i *Instance) Migrated() bool { return i.migrated }

// LoadedAt returns when the instance was produced.
func (i *Instance) LoadedAt() time.Time { return i.loadedAt }

// Generation is a monotonically increasing counter assigned by the Manager.
// Instances returned by Load directly have generation 0.
func (i *Instance) Generation() uint64 { return i.generation }

// EnvOverrides lists the field paths that took their value from the environment.
func (i *Instance) EnvOverrides() []string { return append([]string(nil), i.env...) }

// Lookup returns the node at path.
func (i *Instance) Lookup(path string) (document.Node, bool) {
	p, err := document.ParsePath(path)
	if err != nil {
		return document.Node{}, false
	}
	return i.root.Lookup(p)
}

func (i *Instance) with(mod func(*Instance)) *Instance {
	cp := *i
	mod(&cp)
	return &cp
}

// Get decodes the value at path with the codec registered for T. Paths the
// document does not contain yield ErrPathNotFound; values of the wrong shape
// yield a ValidationFailure *Error.
func Get[T any](inst *Instance, r *codec.Registry, path string) (T, error) {
	var zero T
	if inst == nil {
		return zero, ErrNotLoaded
	}
	p, err := document.ParsePath(path)
	if err != nil {
		return zero, err
	}
	n, ok := inst.root.Lookup(p)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrPathNotFound, p.Display())
	}
	v, err := codec.Decode[T](r, n)
	if err != nil {
		return zero, &Error{
			Kind:   ValidationFailure,
			Schema: inst.schema,
			Paths:  []string{p.Display()},
			Err:    codec.Prefix(err, p...),
		}
	}
	return v, nil
}

// GetOr is Get that returns def when the path is absent or null.
func GetOr[T any](inst *Instance, r *codec.Registry, path string, def T) (T, error) {
	if inst != nil {
		if n, ok := inst.Lookup(path); !ok || n.IsNull() {
			return def, nil
		}
	}
	return Get[T](inst, r, path)
}
