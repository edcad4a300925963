package minicfg

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

const maskedValue = "**********"

// state is what one top-level FromFile/FromDict call shares with every level of
// its recursion. It is read-only once built; the file history is passed
// separately by value.
type state struct {
	subs     subClassSet
	reader   Reader
	registry registry
	strict   bool
	logger   *zap.SugaredLogger
}

func newState(o *options) *state {
	subs := make(subClassSet, len(o.subConfigs))
	for _, t := range o.subConfigs {
		subs[t] = struct{}{}
	}

	return &state{
		subs:     subs,
		reader:   o.reader,
		registry: buildRegistry(o.converters, o.convertPaths, o.convertDates),
		strict:   o.strict,
		logger:   o.logger,
	}
}

// slot carries one field through the build pipeline.
type slot struct {
	field   *fieldInfo
	key     string
	raw     any
	present bool
	sub     bool
	// value has the field's declared type once resolved.
	value reflect.Value
}

// set stores v, a value of the normalized or the declared type.
func (sl *slot) set(v reflect.Value) {
	if !sl.field.pointer || v.Type() == sl.field.declared {
		sl.value = v
		return
	}

	p := reflect.New(sl.field.typ)
	p.Elem().Set(v)
	sl.value = p
}

func (sl *slot) display(v any) any {
	if sl.field.sensitive && v != nil {
		return maskedValue
	}
	return v
}

// resolveAndBuild is buildCascade with its errors annotated with the cascade.
func (s *state) resolveAndBuild(paths []string, t reflect.Type, parent History) (v reflect.Value, err error) {
	defer annotate(&err, paths, t)
	return s.buildCascade(paths, t, parent)
}

// buildCascade resolves a cascade, lays any extra layers over it, and builds
// t from the result.
func (s *state) buildCascade(paths []string, t reflect.Type, parent History, layers ...map[string]any) (reflect.Value, error) {
	dict, history, err := resolve(paths, s.reader, parent, s.logger)
	if err != nil {
		return reflect.Value{}, err
	}

	overlay(dict, layers...)

	return s.build(dict, t, history)
}

// build turns dict into a value of the struct type t in four steps: bind keys
// to fields, resolve sub-configs, apply converters, assemble. Each step runs
// over every field before the next one starts.
func (s *state) build(dict map[string]any, t reflect.Type, history History) (reflect.Value, error) {
	sch, err := schemaFor(t)
	if err != nil {
		return reflect.Value{}, err
	}

	slots, err := s.bindKeys(dict, sch)
	if err != nil {
		return reflect.Value{}, err
	}

	if err := s.resolveSubConfigs(slots, history); err != nil {
		return reflect.Value{}, err
	}

	if err := s.applyConverters(t, slots); err != nil {
		return reflect.Value{}, err
	}

	return s.assemble(sch, slots)
}

func (s *state) bindKeys(dict map[string]any, sch *schema) ([]slot, error) {
	slots := make([]slot, len(sch.fields))
	for i := range sch.fields {
		slots[i].field = &sch.fields[i]
	}

	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var unknown []string
	for _, k := range keys {
		i, ok := sch.lookup(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}

		sl := &slots[i]
		if sl.present {
			return nil, &ConstructionError{
				Type:  sch.typ,
				Field: sl.field.key,
				Err:   fmt.Errorf("keys %q and %q both bind to field %s", sl.key, k, sl.field.name),
			}
		}

		sl.key = k
		sl.raw = dict[k]
		sl.present = true
	}

	if len(unknown) > 0 && !s.strict {
		s.logger.Warnw("ignoring keys not declared on config type", "type", sch.typ.String(), "keys", unknown)
		unknown = nil
	}

	var missing []string
	for i := range slots {
		if !slots[i].present && !slots[i].field.optional {
			missing = append(missing, slots[i].field.key)
		}
	}

	if len(missing) > 0 || len(unknown) > 0 {
		return nil, &ConstructionError{Type: sch.typ, Missing: missing, Unknown: unknown}
	}

	return slots, nil
}

func (s *state) resolveSubConfigs(slots []slot, history History) error {
	for i := range slots {
		sl := &slots[i]
		f := sl.field
		if !isSubConfig(f.typ, s.subs) {
			continue
		}
		sl.sub = true

		if !sl.present || (f.optional && sl.raw == nil) {
			continue
		}

		if v, ok := alreadyTyped(sl.raw, f); ok {
			sl.value = v
			continue
		}

		if d, ok := asDict(sl.raw); ok {
			s.logger.Debugw("building sub-config from mapping", "field", f.key, "type", f.typ.String())

			v, err := s.build(d, f.typ, history)
			if err != nil {
				return fmt.Errorf("sub-config %s: %w", f.key, err)
			}
			sl.set(v)
			continue
		}

		pointer, ok := filePointer(sl.raw)
		if !ok {
			return &ShapeError{Field: f.key, Expected: f.typ, Given: reflect.TypeOf(sl.raw)}
		}

		s.logger.Debugw("building sub-config from file pointer", "field", f.key, "type", f.typ.String(), "path", pointer)

		v, err := s.resolveAndBuild([]string{pointer}, f.typ, history)
		if err != nil {
			return fmt.Errorf("sub-config %s: %w", f.key, err)
		}
		sl.set(v)
	}
	return nil
}

// alreadyTyped returns raw as a value of the field's declared type when the
// caller supplied the sub-config already built, as T or *T.
func alreadyTyped(raw any, f *fieldInfo) (reflect.Value, bool) {
	rv := reflect.ValueOf(raw)
	if !rv.IsValid() {
		return reflect.Value{}, false
	}

	switch {
	case rv.Type() == f.declared:
		return rv, true
	case rv.Type() == f.typ:
		if !f.pointer {
			return rv, true
		}
		p := reflect.New(f.typ)
		p.Elem().Set(rv)
		return p, true
	case rv.Type() == reflect.PointerTo(f.typ) && !rv.IsNil():
		return rv.Elem(), true
	}
	return reflect.Value{}, false
}

func filePointer(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case Path:
		return string(v), true
	}
	return "", false
}

func (s *state) assemble(sch *schema, slots []slot) (reflect.Value, error) {
	out := reflect.New(sch.typ).Elem()

	for i := range slots {
		sl := &slots[i]
		dst := out.Field(sl.field.index)

		if sl.value.IsValid() {
			dst.Set(sl.value)
			continue
		}

		if !sl.present {
			continue
		}

		if err := coerceInto(dst, sl.raw); err != nil {
			return reflect.Value{}, &ConstructionError{Type: sch.typ, Field: sl.field.key, Err: err}
		}

		s.logger.Debugw("set field", "type", sch.typ.String(), "field", sl.field.key, "value", sl.display(sl.raw))
	}

	return out, nil
}
