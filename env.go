package minicfg

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvLayer builds a dictionary layer from environment entries ("KEY=value", as
// returned by os.Environ). Only variables starting with prefix followed by
// delimiter are used; the rest of the name is lowercased and split on
// delimiter into a key path, so with prefix "APP" and delimiter "__",
// APP__DATABASE__PORT=5432 becomes {"database": {"port": 5432}}.
func EnvLayer(prefix, delimiter string, environ []string) map[string]any {
	out := map[string]any{}
	if prefix == "" || delimiter == "" {
		return out
	}

	lead := prefix + delimiter
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, lead) {
			continue
		}

		rest := strings.ToLower(strings.TrimPrefix(name, lead))
		if rest == "" {
			continue
		}

		path := strings.Split(rest, delimiter)
		if containsEmpty(path) {
			continue
		}

		setPath(out, path, parseScalar(value))
	}

	return out
}

func containsEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}

// parseScalar reads value the way a YAML document would read it as a plain
// scalar, so "10" is an int, "true" a bool and "[a, b]" a list. Timestamps stay
// strings, as does anything that does not parse.
func parseScalar(value string) any {
	if strings.TrimSpace(value) == "" {
		return value
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(value), &node); err != nil {
		return value
	}

	out, err := decodeYAMLNode(&node)
	if err != nil {
		return value
	}

	switch out.(type) {
	case nil:
		if value == "null" || value == "~" {
			return nil
		}
		return value
	case map[string]any:
		// "a: b" reads as a mapping; keep it a string unless written as a flow mapping.
		if !strings.HasPrefix(strings.TrimSpace(value), "{") {
			return value
		}
	}
	return out
}
