// SPDX-License-Identifier: MIT

package config

import (
	"sort"

	"github.com/ManuGH/skylib/pkg/document"
)

// Change is one differing leaf between two instances.
type Change struct {
	Path string
	Old  document.Node
	New  document.Node
	// Added and Removed mark paths present on one side only.
	Added   bool
	Removed bool
}

// Diff lists the leaf paths whose values differ between old and next, sorted by path.
func Diff(old, next *Instance) []string {
	changes := Changes(old, next)
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

// Changes is Diff with the values on both sides.
func Changes(old, next *Instance) []Change {
	var oldRoot, nextRoot document.Node
	if old != nil {
		oldRoot = old.root
	}
	if next != nil {
		nextRoot = next.root
	}
	before := leaves(oldRoot)
	after := leaves(nextRoot)

	var out []Change
	for p, ov := range before {
		nv, ok := after[p]
		switch {
		case !ok:
			out = append(out, Change{Path: p, Old: ov, Removed: true})
		case !document.Equal(ov, nv):
			out = append(out, Change{Path: p, Old: ov, New: nv})
		}
	}
	for p, nv := range after {
		if _, ok := before[p]; !ok {
			out = append(out, Change{Path: p, New: nv, Added: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func leaves(root document.Node) map[string]document.Node {
	out := make(map[string]document.Node)
	for _, p := range root.Leaves() {
		if len(p) == 0 {
			continue
		}
		n, _ := root.Lookup(p)
		out[p.String()] = n
	}
	return out
}
