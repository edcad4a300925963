package minicfg

import (
	"path/filepath"

	"go.uber.org/zap"
)

// History is the chain of files visited to reach the config currently being
// built. It only grows by extend, which never shares storage with the
// receiver, so sibling sub-configs cannot see each other's files.
type History []string

// Contains reports whether path, compared in cleaned form, was already visited.
func (h History) Contains(path string) bool {
	clean := filepath.Clean(path)
	for _, p := range h {
		if p == clean {
			return true
		}
	}
	return false
}

func (h History) extend(paths ...string) History {
	out := make(History, 0, len(h)+len(paths))
	out = append(out, h...)
	for _, p := range paths {
		out = append(out, filepath.Clean(p))
	}
	return out
}

// Resolve reads a cascade of files and merges them, first path as the base
// layer and each later path overriding it. It fails with a *CycleError, before
// reading anything, when a path was already visited in parent or is repeated
// within paths. The returned History is parent followed by paths.
func Resolve(paths []string, reader Reader, parent History) (map[string]any, History, error) {
	return resolve(paths, reader, parent, zap.NewNop().Sugar())
}

// ResolveLogged is Resolve with every layer read logged to logger at debug level.
func ResolveLogged(paths []string, reader Reader, parent History, logger *zap.Logger) (map[string]any, History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return resolve(paths, reader, parent, logger.Sugar())
}

func resolve(paths []string, reader Reader, parent History, logger *zap.SugaredLogger) (map[string]any, History, error) {
	history := parent.extend()
	for _, p := range paths {
		if history.Contains(p) {
			return nil, nil, &CycleError{Path: p, History: history}
		}
		history = history.extend(p)
	}

	if reader == nil {
		return nil, nil, ErrNoReader
	}

	final := map[string]any{}
	for _, p := range paths {
		layer, err := reader(p)
		if err != nil {
			return nil, nil, err
		}

		logger.Debugw("read cascade layer", "path", p, "keys", len(layer))
		Merge(layer, final)
	}

	return final, history, nil
}
