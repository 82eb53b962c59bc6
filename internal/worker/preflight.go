package worker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/zhivem/penguin/internal/model"
)

// Preflight checks the executable exists and can be executed. Bare names
// like "sc" are looked up in PATH. It returns the path to execute.
func Preflight(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", model.ErrExecutableNotFound)
	}
	if filepath.Base(path) == path {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", model.ErrExecutableNotFound, path, err)
		}
		path = found
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %s", model.ErrExecutableNotFound, path)
	case err != nil:
		return "", fmt.Errorf("checking %s: %w", path, err)
	case info.IsDir():
		return "", fmt.Errorf("%w: %s is a directory", model.ErrExecutableNotExecutable, path)
	}
	if !isExecutable(path, info) {
		return "", fmt.Errorf("%w: %s", model.ErrExecutableNotExecutable, path)
	}
	return path, nil
}
