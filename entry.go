package minicfg

import (
	"fmt"
	"os"
	"reflect"

	"go.uber.org/zap"
)

type Option func(*options) error

type options struct {
	reader       Reader
	subConfigs   []reflect.Type
	converters   map[reflect.Type]Converter
	convertPaths bool
	convertDates bool
	history      History
	strict       bool
	validate     bool
	logger       *zap.SugaredLogger

	env struct {
		prefix    string
		delimiter string
	}

	overrides []string
}

func newOptions(suppliedOptions []Option) (*options, error) {
	o := &options{
		converters:   map[reflect.Type]Converter{},
		convertPaths: true,
		convertDates: true,
		strict:       true,
		logger:       zap.NewNop().Sugar(),
	}

	for _, optFunc := range suppliedOptions {
		if err := optFunc(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// layers returns the env and override layers, in that order, that are laid
// over the top-level dictionary.
func (o *options) layers() ([]map[string]any, error) {
	var layers []map[string]any

	if o.env.prefix != "" {
		env := EnvLayer(o.env.prefix, o.env.delimiter, os.Environ())
		o.logger.Debugw("loaded environment layer", "prefix", o.env.prefix, "keys", len(env))
		layers = append(layers, env)
	}

	if len(o.overrides) > 0 {
		overrides, err := ParseOverrides(o.overrides...)
		if err != nil {
			return nil, err
		}
		o.logger.Debugw("loaded override layer", "assignments", len(o.overrides))
		layers = append(layers, overrides)
	}

	return layers, nil
}

// FromFile builds a T from the cascade of config files in paths, read with
// reader. Later files override earlier ones key by key. Sub-config fields may
// hold a mapping or the path of another file, which is resolved with the same
// reader; a file reached twice on one chain of pointers is a *CycleError.
//
// T is a struct type or a pointer to one. Every error is wrapped in a
// *CascadeError naming paths and T.
func FromFile[T any](paths []string, reader Reader, suppliedOptions ...Option) (result T, err error) {
	t, isPointer, err := targetType[T]()
	defer annotate(&err, paths, t)
	if err != nil {
		return result, err
	}

	o, err := newOptions(suppliedOptions)
	if err != nil {
		return result, err
	}

	if reader != nil {
		o.reader = reader
	}

	layers, err := o.layers()
	if err != nil {
		return result, err
	}

	o.logger.Debugw("building config from cascade", "type", t.String(), "paths", paths)

	v, err := newState(o).buildCascade(paths, t, o.history, layers...)
	if err != nil {
		return result, err
	}

	return finish[T](v, isPointer, o)
}

// FromDict builds a T from dict. File pointers in sub-config fields need
// WithReader. dict itself is not modified. Every error is wrapped in a
// *CascadeError naming T.
func FromDict[T any](dict map[string]any, suppliedOptions ...Option) (result T, err error) {
	t, isPointer, err := targetType[T]()
	defer annotate(&err, nil, t)
	if err != nil {
		return result, err
	}

	o, err := newOptions(suppliedOptions)
	if err != nil {
		return result, err
	}

	layers, err := o.layers()
	if err != nil {
		return result, err
	}

	effective := make(map[string]any, len(dict))
	Merge(dict, effective)
	overlay(effective, layers...)

	v, err := newState(o).build(effective, t, o.history.extend())
	if err != nil {
		return result, err
	}

	return finish[T](v, isPointer, o)
}

// FromTOML is FromFile with a TOML reader.
func FromTOML[T any](paths []string, suppliedOptions ...Option) (T, error) {
	return FromFile[T](paths, ReadTOML, suppliedOptions...)
}

// FromYAML is FromFile with a YAML reader.
func FromYAML[T any](paths []string, suppliedOptions ...Option) (T, error) {
	return FromFile[T](paths, ReadYAML, suppliedOptions...)
}

// FromJSON is FromFile with a JSON reader.
func FromJSON[T any](paths []string, suppliedOptions ...Option) (T, error) {
	return FromFile[T](paths, ReadJSON, suppliedOptions...)
}

// FromAuto is FromFile with a reader that picks the format of each file,
// pointed-to files included, from its extension.
func FromAuto[T any](paths []string, suppliedOptions ...Option) (T, error) {
	return FromFile[T](paths, ReadAuto, suppliedOptions...)
}

// targetType returns the struct type T names. The type is returned with the
// error as well, so that errors can be annotated with it.
func targetType[T any]() (reflect.Type, bool, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		return t.Elem(), true, nil
	}
	if t.Kind() != reflect.Struct {
		return t, false, fmt.Errorf("config type %s is not a struct or a pointer to one", t)
	}
	return t, false, nil
}

func finish[T any](v reflect.Value, isPointer bool, o *options) (result T, err error) {
	if isPointer {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		v = p
	}

	result = v.Interface().(T)

	if o.validate {
		if err := Validate(result); err != nil {
			return result, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return result, nil
}

// WithReader sets the reader used for file pointers. FromFile's reader
// argument takes precedence when it is not nil.
func WithReader(reader Reader) Option {
	return func(o *options) error {
		o.reader = reader
		return nil
	}
}

// WithSubConfigs allow-lists the struct types of values (or pointers to them)
// as sub-configs, in addition to types that embed BaseConfig.
func WithSubConfigs(values ...any) Option {
	return func(o *options) error {
		for _, v := range values {
			t := reflect.TypeOf(v)
			if t == nil {
				return fmt.Errorf("nil given as sub-config type")
			}
			if t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			if t.Kind() != reflect.Struct {
				return fmt.Errorf("sub-config type %s is not a struct", t)
			}
			o.subConfigs = append(o.subConfigs, t)
		}
		return nil
	}
}

// WithSubConfig allow-lists S as a sub-config.
func WithSubConfig[S any]() Option {
	var zero S
	return WithSubConfigs(zero)
}

// WithConverter registers convert for fields of type T, replacing the
// built-in converter if T is Path or time.Time. When T is a sub-config type,
// convert receives the built T rather than the raw value.
func WithConverter[T any](convert func(raw any) (T, error)) Option {
	return func(o *options) error {
		o.converters[reflect.TypeFor[T]()] = func(raw any) (any, error) {
			return convert(raw)
		}
		return nil
	}
}

// WithConverters registers converters keyed by field type.
func WithConverters(converters map[reflect.Type]Converter) Option {
	return func(o *options) error {
		for t, c := range converters {
			if c == nil {
				return fmt.Errorf("nil converter given for %s", t)
			}
			o.converters[t] = c
		}
		return nil
	}
}

// ConvertPaths toggles the built-in Path converter, on by default.
func ConvertPaths(enabled bool) Option {
	return func(o *options) error {
		o.convertPaths = enabled
		return nil
	}
}

// ConvertDates toggles the built-in time.Time converter, on by default.
//
// The converter accepts time.Time, TOML dates and local date-times, and
// ISO-8601 strings: extended (2025-02-06T12:05:01.5+02:00) or basic
// (20250206T120501) form, with a T or space separator, precision down to the
// hour, and an optional Z or numeric offset. Week and ordinal dates are not
// accepted. Values without an offset are taken as UTC.
func ConvertDates(enabled bool) Option {
	return func(o *options) error {
		o.convertDates = enabled
		return nil
	}
}

// WithHistory seeds the file history with files already visited, which may
// not be reached again.
func WithHistory(paths ...string) Option {
	return func(o *options) error {
		o.history = o.history.extend(paths...)
		return nil
	}
}

// AllowUnknownKeys logs and ignores dictionary keys that have no field,
// instead of failing.
func AllowUnknownKeys() Option {
	return func(o *options) error {
		o.strict = false
		return nil
	}
}

// WithLogger sets the logger, which is silent by default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		o.logger = logger.Sugar()
		return nil
	}
}

// FromEnvs lays environment variables named prefix+delimiter+key over the
// top-level dictionary, see EnvLayer.
func FromEnvs(prefix, delimiter string) Option {
	return func(o *options) error {
		if prefix == "" {
			return fmt.Errorf("environment prefix must not be empty")
		}
		if delimiter == "" {
			return fmt.Errorf("environment delimiter must not be empty")
		}
		o.env.prefix = prefix
		o.env.delimiter = delimiter
		return nil
	}
}

// WithOverrides lays "key.path=value" assignments over the top-level
// dictionary, after any environment layer.
func WithOverrides(assignments ...string) Option {
	return func(o *options) error {
		o.overrides = append(o.overrides, assignments...)
		return nil
	}
}

// WithValidation runs Validate on the result.
func WithValidation() Option {
	return func(o *options) error {
		o.validate = true
		return nil
	}
}
