// SPDX-License-Identifier: MIT

package document

// Merge overlays override onto base. Mappings merge key by key, recursively;
// every other override value, sequences included, replaces the base value whole.
// Base keys keep their order and override-only keys are appended in override order.
//
// Merge is deterministic and idempotent: Merge(Merge(b, o), o) equals Merge(b, o).
func Merge(base, override Node) (Node, error) {
	return merge(base, override, DefaultMaxDepth)
}

// merge builds a result at most limit levels deep and fails as soon as a
// subtree would exceed it.
func merge(base, override Node, limit int) (Node, error) {
	if base.kind != KindMapping || override.kind != KindMapping {
		if exceeds(override, limit) {
			return Node{}, ErrDepthExceeded
		}
		return override, nil
	}
	if limit <= 0 {
		return Node{}, ErrDepthExceeded
	}
	out := Node{
		kind:  KindMapping,
		keys:  make([]string, 0, len(base.keys)+len(override.keys)),
		items: make([]Node, 0, len(base.keys)+len(override.keys)),
	}
	for i, k := range base.keys {
		v := base.items[i]
		if ov, ok := override.Get(k); ok {
			merged, err := merge(v, ov, limit-1)
			if err != nil {
				return Node{}, err
			}
			v = merged
		} else if exceeds(v, limit-1) {
			return Node{}, ErrDepthExceeded
		}
		out.keys = append(out.keys, k)
		out.items = append(out.items, v)
	}
	for i, k := range override.keys {
		if base.indexOf(k) >= 0 {
			continue
		}
		if exceeds(override.items[i], limit-1) {
			return Node{}, ErrDepthExceeded
		}
		out.keys = append(out.keys, k)
		out.items = append(out.items, override.items[i])
	}
	return out, nil
}

// exceeds reports whether n nests deeper than limit levels. It never
// descends more than limit levels.
func exceeds(n Node, limit int) bool {
	if limit <= 0 {
		return true
	}
	for _, it := range n.items {
		if exceeds(it, limit-1) {
			return true
		}
	}
	return false
}

// MergeAll folds layers left to right with Merge; later layers win.
func MergeAll(layers ...Node) (Node, error) {
	var out Node
	for i, l := range layers {
		if i == 0 {
			out = l
			continue
		}
		merged, err := Merge(out, l)
		if err != nil {
			return Node{}, err
		}
		out = merged
	}
	return out, nil
}
