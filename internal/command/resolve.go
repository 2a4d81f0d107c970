package command

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/RATDEO/lammastudio-sub000/internal/recipe"
)

// defaultStat/defaultLookPath back Options when the caller leaves the
// testability hooks nil, matching production filesystem/PATH behavior.
func defaultStat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func defaultLookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (o Options) stat(path string) bool {
	if o.Stat != nil {
		return o.Stat(path)
	}
	return defaultStat(path)
}

func (o Options) lookPath(name string) (string, error) {
	if o.LookPath != nil {
		return o.LookPath(name)
	}
	return defaultLookPath(name)
}

// resolveBinary implements the binary resolution precedence: runtime
// override dir, then PATH, then ~/.local/bin, then ~/bin. The first
// existing candidate wins.
func resolveBinary(opts Options, name string) (string, bool) {
	if opts.RuntimeBinDir != "" {
		candidate := filepath.Join(opts.RuntimeBinDir, name)
		if opts.stat(candidate) {
			return candidate, true
		}
	}
	if path, err := opts.lookPath(name); err == nil && path != "" {
		return path, true
	}
	if opts.HomeDir != "" {
		for _, dir := range []string{".local/bin", "bin"} {
			candidate := filepath.Join(opts.HomeDir, dir, name)
			if opts.stat(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// resolvePython implements python resolution: an explicit
// python_path on the recipe wins; else extra_args.venv_path/bin/python if
// it exists; else the backend default ("python3").
func resolvePython(r recipe.Recipe, opts Options) string {
	if r.PythonPath != "" {
		return r.PythonPath
	}
	if venv, ok := extraArgsString(r, "venv_path"); ok && venv != "" {
		candidate := filepath.Join(venv, "bin", "python")
		if opts.stat(candidate) {
			return candidate
		}
	}
	return "python3"
}
