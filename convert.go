package minicfg

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Converter turns a raw dictionary value into a value of the type it is
// registered for.
type Converter func(raw any) (any, error)

// Path is a filesystem path read from a config file. With path conversion
// enabled it holds the lexically cleaned form of the configured string.
type Path string

func (p Path) String() string {
	return string(p)
}

// Join appends elem to p.
func (p Path) Join(elem ...string) Path {
	return Path(filepath.Join(append([]string{string(p)}, elem...)...))
}

var (
	pathType = reflect.TypeFor[Path]()
	timeType = reflect.TypeFor[time.Time]()
)

// ISO-8601 shapes accepted for time.Time fields. Fractional seconds are
// accepted after the seconds field by time.Parse without being spelled out.
var isoLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15Z07:00",
	"2006-01-02T15",
	"2006-01-02 15",
	"2006-01-02",
	"20060102T150405Z07:00",
	"20060102T150405",
	"20060102T1504",
	"20060102",
}

type registry map[reflect.Type]Converter

// buildRegistry copies explicit and adds the built-in converters that are
// enabled and not already claimed by the caller.
func buildRegistry(explicit map[reflect.Type]Converter, convertPaths, convertDates bool) registry {
	r := make(registry, len(explicit)+2)
	for t, c := range explicit {
		r[t] = c
	}

	if _, ok := r[pathType]; !ok && convertPaths {
		r[pathType] = convertPath
	}

	if _, ok := r[timeType]; !ok && convertDates {
		r[timeType] = convertDate
	}

	return r
}

func convertPath(raw any) (any, error) {
	switch v := raw.(type) {
	case Path:
		return Path(filepath.Clean(string(v))), nil
	case string:
		return Path(filepath.Clean(v)), nil
	case fmt.Stringer:
		return Path(filepath.Clean(v.String())), nil
	}
	return nil, &ParseError{Value: raw, Target: pathType}
}

// convertDate accepts datetimes unchanged, widens dates to midnight, and parses
// ISO-8601 strings. Values without an offset are taken as UTC.
func convertDate(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case toml.LocalDateTime:
		return v.AsTime(time.UTC), nil
	case toml.LocalDate:
		return v.AsTime(time.UTC), nil
	case string:
		return parseISO8601(v)
	}
	return nil, &ParseError{Value: raw, Target: timeType}
}

func parseISO8601(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)

	var firstErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, &ParseError{Value: s, Target: timeType, Err: firstErr}
}

// applyConverters replaces the raw value of every field whose type has a
// registered converter. Sub-configs are converted after they are built.
// Optional fields that are absent or null are skipped.
func (s *state) applyConverters(typ reflect.Type, slots []slot) error {
	for i := range slots {
		sl := &slots[i]
		conv, ok := s.registry[sl.field.typ]
		if !ok || !sl.present {
			continue
		}

		if sl.sub {
			if err := s.convertSubConfig(typ, sl, conv); err != nil {
				return err
			}
			continue
		}

		if sl.field.optional && sl.raw == nil {
			continue
		}

		out, err := conv(sl.raw)
		if err != nil {
			return fmt.Errorf("converting %s: %w", sl.field.key, err)
		}

		v := reflect.New(sl.field.typ).Elem()
		if err := coerceInto(v, out); err != nil {
			return &ConstructionError{Type: typ, Field: sl.field.key, Err: fmt.Errorf("converter result: %w", err)}
		}
		sl.set(v)

		s.logger.Debugw("converted field", "type", typ.String(), "field", sl.field.key, "value", sl.display(out))
	}
	return nil
}

// convertSubConfig runs conv on a sub-config that was already built, as a
// value of the field's normalized type.
func (s *state) convertSubConfig(typ reflect.Type, sl *slot, conv Converter) error {
	if !sl.value.IsValid() {
		return nil
	}

	built := sl.value
	if built.Kind() == reflect.Pointer && built.Type() != sl.field.typ {
		if built.IsNil() {
			return nil
		}
		built = built.Elem()
	}

	out, err := conv(built.Interface())
	if err != nil {
		return fmt.Errorf("converting %s: %w", sl.field.key, err)
	}

	v := reflect.New(sl.field.typ).Elem()
	if err := coerceInto(v, out); err != nil {
		return &ConstructionError{Type: typ, Field: sl.field.key, Err: fmt.Errorf("converter result: %w", err)}
	}
	sl.set(v)

	s.logger.Debugw("converted sub-config", "type", typ.String(), "field", sl.field.key)
	return nil
}
