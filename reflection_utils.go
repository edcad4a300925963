package minicfg

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

const cfgTag = "cfg"

var (
	subConfigType  = reflect.TypeFor[SubConfig]()
	baseConfigType = reflect.TypeFor[BaseConfig]()
)

// fieldInfo is the declared shape of one config field.
type fieldInfo struct {
	index    int
	name     string
	key      string
	declared reflect.Type
	// typ is declared with a single pointer level removed.
	typ       reflect.Type
	pointer   bool
	optional  bool
	sensitive bool
}

type schema struct {
	typ    reflect.Type
	fields []fieldInfo
	byKey  map[string]int
}

var schemaCache sync.Map

// schemaFor returns the cached schema of the struct type t.
func schemaFor(t reflect.Type) (*schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*schema), nil
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("config type %s is not a struct", t)
	}

	s := &schema{
		typ:   t,
		byKey: map[string]int{},
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || (sf.Anonymous && sf.Type == baseConfigType) {
			continue
		}

		key, opts := parseTag(sf)
		if key == "-" {
			continue
		}

		if _, dup := s.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate key %q found on %s (field %s)", key, t, sf.Name)
		}

		norm, optional := normalize(sf.Type)
		s.byKey[key] = len(s.fields)
		s.fields = append(s.fields, fieldInfo{
			index:     i,
			name:      sf.Name,
			key:       key,
			declared:  sf.Type,
			typ:       norm,
			pointer:   optional,
			optional:  optional || opts["optional"],
			sensitive: opts["sensitive"],
		})
	}

	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*schema), nil
}

// parseTag reads `cfg:"key;option;option"`, falling back to the Go field name.
func parseTag(sf reflect.StructField) (string, map[string]bool) {
	opts := map[string]bool{}

	value, ok := sf.Tag.Lookup(cfgTag)
	if !ok {
		return sf.Name, opts
	}

	parts := strings.Split(value, ";")
	key := strings.TrimSpace(parts[0])
	if key == "" {
		key = sf.Name
	}

	for _, p := range parts[1:] {
		opts[strings.TrimSpace(p)] = true
	}

	return key, opts
}

// lookup finds the field a dictionary key binds to: an exact key match wins,
// otherwise the first case-insensitive match.
func (s *schema) lookup(key string) (int, bool) {
	if i, ok := s.byKey[key]; ok {
		return i, true
	}

	for i := range s.fields {
		if strings.EqualFold(s.fields[i].key, key) {
			return i, true
		}
	}
	return 0, false
}

// normalize unwraps "T or absent". In Go that is a single pointer level: *T
// becomes (T, true). Anything else, **T included, is returned as is.
func normalize(declared reflect.Type) (reflect.Type, bool) {
	if declared.Kind() == reflect.Pointer && declared.Elem().Kind() != reflect.Pointer {
		return declared.Elem(), true
	}
	return declared, false
}

type subClassSet map[reflect.Type]struct{}

// isSubConfig reports whether values of t are built recursively: t is allow-listed
// or carries the SubConfig marker.
func isSubConfig(t reflect.Type, set subClassSet) bool {
	if _, ok := set[t]; ok {
		return true
	}
	return t.Kind() == reflect.Struct && t.Implements(subConfigType)
}
