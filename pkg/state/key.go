// SPDX-License-Identifier: MIT

// Package state stores typed values under namespaced keys in key/value
// containers owned by the host, such as per-entity attached metadata.
package state

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for keys that do not follow the namespace:name convention.
var ErrInvalidKey = errors.New("state: invalid key")

// Key identifies one value. By convention Namespace is the id of the consumer
// that owns the value; collisions between consumers are not detected.
type Key struct {
	Namespace string
	Name      string
}

// NewKey validates and returns a key. Namespaces may contain [a-z0-9._-],
// names additionally '/'.
func NewKey(namespace, name string) (Key, error) {
	if !validPart(namespace, false) {
		return Key{}, fmt.Errorf("%w: namespace %q", ErrInvalidKey, namespace)
	}
	if !validPart(name, true) {
		return Key{}, fmt.Errorf("%w: name %q", ErrInvalidKey, name)
	}
	return Key{Namespace: namespace, Name: name}, nil
}

// MustKey is NewKey for constant keys.
func MustKey(namespace, name string) Key {
	k, err := NewKey(namespace, name)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseKey parses "namespace:name".
func ParseKey(s string) (Key, error) {
	ns, name, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("%w: %q has no namespace", ErrInvalidKey, s)
	}
	return NewKey(ns, name)
}

// String renders the key as "namespace:name", the form stored in containers.
func (k Key) String() string { return k.Namespace + ":" + k.Name }

func validPart(s string, allowSlash bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		case c == '/' && allowSlash:
		default:
			return false
		}
	}
	return true
}
