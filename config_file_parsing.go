package minicfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Reader returns the dictionary stored in the config file at path.
type Reader func(path string) (map[string]any, error)

// Decoder turns the content of one config file into a dictionary.
type Decoder func(r io.Reader) (map[string]any, error)

// DecodeTOML decodes a TOML document. Dates and local date-times come back as
// toml.LocalDate and toml.LocalDateTime, integers as int64.
func DecodeTOML(r io.Reader) (map[string]any, error) {
	out := map[string]any{}
	if err := toml.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode toml: %w", err)
	}
	return out, nil
}

// DecodeYAML decodes a single YAML document. Timestamps are left as strings.
// An empty document is an empty dictionary.
func DecodeYAML(r io.Reader) (map[string]any, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	doc, err := decodeYAMLNode(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	if doc == nil {
		return map[string]any{}, nil
	}

	out, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to decode yaml: top level is %T, not a mapping", doc)
	}
	return out, nil
}

// decodeYAMLNode decodes node into plain Go values, keeping timestamps as the
// strings they were written as. Date conversion is left to the date converter.
func decodeYAMLNode(node *yaml.Node) (any, error) {
	if node.Kind == 0 || (node.Kind == yaml.DocumentNode && len(node.Content) == 0) {
		return nil, nil
	}

	untagTimestamps(node)

	var out any
	if err := node.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeYAML(out), nil
}

func untagTimestamps(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!timestamp" {
		node.Tag = "!!str"
	}
	for _, child := range node.Content {
		untagTimestamps(child)
	}
}

// normalizeYAML rewrites mappings with non-string keys, which yaml.v3 produces
// for keys such as `1:` or `true:`, into string keyed ones.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	}
	return v
}

// DecodeJSON decodes a JSON object. Numbers are kept as json.Number so that
// large integers survive until they are bound to a field.
func DecodeJSON(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return out, nil
}

// DecoderFor returns the decoder of a concrete format. Auto has none, the
// format must first be picked with FormatOf.
func DecoderFor(format Format) (Decoder, error) {
	switch format {
	case Toml:
		return DecodeTOML, nil
	case Yaml:
		return DecodeYAML, nil
	case Json:
		return DecodeJSON, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// FileReader reads config files from the local filesystem in the given format,
// or in the format named by each file's extension when format is Auto.
// Relative paths are relative to the working directory.
func FileReader(format Format) Reader {
	return openReader(func(path string) (io.ReadCloser, error) {
		return os.Open(path)
	}, format)
}

// FSReader is FileReader over fsys.
func FSReader(fsys fs.FS, format Format) Reader {
	return openReader(func(path string) (io.ReadCloser, error) {
		return fsys.Open(path)
	}, format)
}

func openReader(open func(string) (io.ReadCloser, error), format Format) Reader {
	return func(path string) (map[string]any, error) {
		f := format
		if f == Auto {
			var err error
			if f, err = FormatOf(path); err != nil {
				return nil, err
			}
		}

		decode, err := DecoderFor(f)
		if err != nil {
			return nil, err
		}

		configFile, err := open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file %q: %w", path, err)
		}
		defer configFile.Close()

		dict, err := decode(configFile)
		if err != nil {
			return nil, fmt.Errorf("config file %q: %w", path, err)
		}
		return dict, nil
	}
}

// ReadTOML reads a TOML file.
func ReadTOML(path string) (map[string]any, error) {
	return FileReader(Toml)(path)
}

// ReadYAML reads a YAML file.
func ReadYAML(path string) (map[string]any, error) {
	return FileReader(Yaml)(path)
}

// ReadJSON reads a JSON file.
func ReadJSON(path string) (map[string]any, error) {
	return FileReader(Json)(path)
}

// ReadAuto reads a file in the format named by its extension.
func ReadAuto(path string) (map[string]any, error) {
	return FileReader(Auto)(path)
}
