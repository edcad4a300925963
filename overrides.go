package minicfg

import (
	"fmt"
	"strings"
)

// ParseOverrides builds a dictionary layer from "key.path=value" assignments.
// Values are read as YAML scalars, see EnvLayer. Later assignments win.
func ParseOverrides(assignments ...string) (map[string]any, error) {
	out := map[string]any{}
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("override %q is not of the form key.path=value", a)
		}

		path := strings.Split(strings.TrimSpace(key), ".")
		if containsEmpty(path) {
			return nil, fmt.Errorf("override %q has an empty key segment", a)
		}

		setPath(out, path, parseScalar(value))
	}
	return out, nil
}
