package minicfg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format names the syntax of a configuration file.
type Format string

const (
	Yaml Format = "yaml"
	Json Format = "json"
	Toml Format = "toml"
	Auto Format = "auto"
)

// FormatOf picks a Format from the extension of path.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yml", ".yaml":
		return Yaml, nil
	case ".json", ".js":
		return Json, nil
	case ".toml", ".tml":
		return Toml, nil
	default:
		return "", fmt.Errorf("%w: extension %q of %q", ErrUnsupportedFormat, ext, path)
	}
}
