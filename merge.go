package minicfg

import (
	"reflect"
	"strings"
)

// Merge recursively adds or overwrites the contents of src into dst.
//
// Keys of src that hold mappings are merged into the mapping dst holds under the
// same key; if dst has no mapping there (the key is absent or holds a scalar) a
// fresh mapping takes its place. Every other value of src overwrites dst. Keys
// that only dst holds are left untouched.
func Merge(src, dst map[string]any) {
	for k, v := range src {
		sub, ok := asDict(v)
		if !ok {
			dst[k] = v
			continue
		}

		existing, ok := asDict(dst[k])
		if !ok || existing == nil {
			existing = make(map[string]any, len(sub))
		}
		dst[k] = existing

		Merge(sub, existing)
	}
}

// asDict reports whether v is mapping-like, returning it as a map[string]any.
// Maps with non-string keys are not mappings for config purposes.
func asDict(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// setPath stores value at the nested location named by path, creating
// mappings on the way and replacing scalars that are in the way.
func setPath(dst map[string]any, path []string, value any) {
	for _, part := range path[:len(path)-1] {
		next, ok := asDict(dst[part])
		if !ok || next == nil {
			next = map[string]any{}
		}
		dst[part] = next
		dst = next
	}
	dst[path[len(path)-1]] = value
}

// alignKeys returns layer with each key renamed to the key of dst it matches
// case-insensitively, at every depth where both hold a mapping. An exact match
// is kept as is. Layers written with different casing then override dst
// instead of adding a second key for the same field.
func alignKeys(layer, dst map[string]any) map[string]any {
	out := make(map[string]any, len(layer))
	for k, v := range layer {
		key := k
		if _, exact := dst[k]; !exact {
			for existing := range dst {
				if strings.EqualFold(existing, k) {
					key = existing
					break
				}
			}
		}

		if sub, ok := asDict(v); ok {
			if target, ok := asDict(dst[key]); ok && target != nil {
				v = alignKeys(sub, target)
			}
		}
		out[key] = v
	}
	return out
}

// overlay merges each layer over dst in order, aligning its keys first.
func overlay(dst map[string]any, layers ...map[string]any) {
	for _, layer := range layers {
		Merge(alignKeys(layer, dst), dst)
	}
}
