package minicfg

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
)

// SubConfig is the marker capability of config types that are built
// recursively from nested mappings or file pointers, and that Validate descends
// into. Embed BaseConfig to implement it.
type SubConfig interface {
	subConfig()
}

// BaseConfig marks a struct as a sub-config:
//
//	type Database struct {
//		minicfg.BaseConfig
//		Host string `cfg:"host"`
//	}
type BaseConfig struct{}

func (BaseConfig) subConfig() {}

// Checker is implemented by config types with their own validation rules.
type Checker interface {
	Check() error
}

// Validate runs Check on cfg and then on every sub-config reachable from it,
// parent before children, in field declaration order. All failures are
// returned together.
func Validate(cfg any) error {
	return validateValue(reflect.ValueOf(cfg))
}

func validateValue(v reflect.Value) (err error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return nil
	}

	if c, ok := checkerOf(v); ok {
		if checkErr := c.Check(); checkErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", v.Type(), checkErr))
		}
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || (sf.Anonymous && sf.Type == baseConfigType) {
			continue
		}

		if !holdsSubConfig(v.Field(i)) {
			continue
		}

		err = multierr.Append(err, validateValue(v.Field(i)))
	}

	return err
}

func checkerOf(v reflect.Value) (Checker, bool) {
	if v.CanAddr() {
		c, ok := v.Addr().Interface().(Checker)
		return c, ok
	}

	p := reflect.New(v.Type())
	p.Elem().Set(v)
	c, ok := p.Interface().(Checker)
	return c, ok
}

func holdsSubConfig(f reflect.Value) bool {
	for f.Kind() == reflect.Pointer || f.Kind() == reflect.Interface {
		if f.IsNil() {
			return false
		}
		f = f.Elem()
	}
	return f.Kind() == reflect.Struct && f.Type().Implements(subConfigType)
}
