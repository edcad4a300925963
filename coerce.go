package minicfg

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	durationType        = reflect.TypeFor[time.Duration]()
)

// coerceInto stores raw into dst, converting between the loose shapes format
// readers produce and the field's declared kind. Strings are parsed the same
// way for every source, which is what lets env and override layers feed typed
// fields.
func coerceInto(dst reflect.Value, raw any) error {
	t := dst.Type()
	if raw == nil {
		dst.Set(reflect.Zero(t))
		return nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		dst.Set(rv)
		return nil
	}

	if t.Kind() == reflect.Pointer {
		p := reflect.New(t.Elem())
		if err := coerceInto(p.Elem(), raw); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	if s, ok := raw.(string); ok {
		return coerceString(dst, s)
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(raw)
		if !ok {
			break
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, t)
		}
		dst.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := toInt64(raw)
		if !ok {
			break
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%d overflows %s", n, t)
		}
		dst.SetUint(uint64(n))
		return nil

	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(raw)
		if !ok {
			break
		}
		if dst.OverflowFloat(f) {
			return fmt.Errorf("%g overflows %s", f, t)
		}
		dst.SetFloat(f)
		return nil

	case reflect.String:
		if rv.Kind() == reflect.String {
			dst.SetString(rv.String())
			return nil
		}

	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if err := coerceInto(out.Index(i), rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil

	case reflect.Array:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		if rv.Len() != t.Len() {
			return fmt.Errorf("expected %d elements for %s, got %d", t.Len(), t, rv.Len())
		}
		out := reflect.New(t).Elem()
		for i := 0; i < rv.Len(); i++ {
			if err := coerceInto(out.Index(i), rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil

	case reflect.Map:
		d, ok := asDict(raw)
		if !ok || t.Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(t, len(d))
		for k, v := range d {
			elem := reflect.New(t.Elem()).Elem()
			if err := coerceInto(elem, v); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), elem)
		}
		dst.Set(out)
		return nil

	case reflect.Struct:
		if _, ok := asDict(raw); ok {
			return fmt.Errorf("mapping given for %s, which is not a sub-config type (embed BaseConfig or use WithSubConfigs)", t)
		}
	}

	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		dst.Set(rv.Convert(t))
		return nil
	}

	return fmt.Errorf("cannot bind %T to %s", raw, t)
}

func coerceString(dst reflect.Value, value string) error {
	t := dst.Type()

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		n := reflect.New(t)
		if err := n.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("unmarshaling text into %s: %w", t, err)
		}
		dst.Set(n.Elem())
		return nil
	}

	if t == durationType {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch t.Kind() {
	case reflect.String:
		dst.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("field should be bool: %w", err)
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, t.Bits())
		if err != nil {
			return fmt.Errorf("field should be int: %w", err)
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, t.Bits())
		if err != nil {
			return fmt.Errorf("field should be uint: %w", err)
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), t.Bits())
		if err != nil {
			return fmt.Errorf("field should be float: %w", err)
		}
		dst.SetFloat(f)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = p
		}
		return coerceInto(dst, items)
	default:
		return fmt.Errorf("cannot bind string to %s", t)
	}
	return nil
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(raw any) (float64, bool) {
	if n, ok := raw.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	}
	return 0, false
}
