package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/ini.v1"

	"github.com/zhivem/penguin/internal/model"
)

// MarkerSection must be present in every profile file. It is not a profile
// itself, it may carry file wide defaults.
const MarkerSection = "SCRIPT_OPTIONS"

const (
	keyExecutable    = "executable"
	keyArgs          = "args"
	keyCaptureOutput = "capture_output"
	keyRequires      = "requires"
	keyWorkdir       = "workdir"
)

var loadOptions = ini.LoadOptions{
	InsensitiveKeys:            true,
	IgnoreInlineComment:        true,
	AllowPythonMultilineValues: true,
	// keeps repeated sections apart so that they can be rejected
	AllowNonUniqueSections: true,
}

// Load reads and validates the profile file at path. Relative paths inside
// the file are resolved against its directory.
func Load(path string) (model.Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", model.ErrConfiguration, path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse validates the profile file content. Either all profiles are returned
// or an error wrapping model.ErrConfiguration, never a partial result.
func Parse(data []byte, baseDir string) (model.Profiles, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}

	if dup := duplicates(f.SectionStrings()); len(dup) > 0 {
		return nil, fmt.Errorf("%w: duplicate sections: %s", model.ErrConfiguration, strings.Join(dup, ", "))
	}

	marker, err := f.GetSection(MarkerSection)
	if err != nil {
		return nil, fmt.Errorf("%w: missing [%s] section", model.ErrConfiguration, MarkerSection)
	}
	dir := baseDir
	if marker.HasKey(keyWorkdir) {
		dir = resolve(baseDir, marker.Key(keyWorkdir).String())
	}

	ret := make(model.Profiles)
	var errs []error
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == MarkerSection {
			continue
		}
		opt, err := parseSection(sec, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", name, err))
			continue
		}
		ret[name] = opt
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, errors.Join(errs...))
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: no profile sections", model.ErrConfiguration)
	}
	return ret, nil
}

func parseSection(sec *ini.Section, dir string) (model.ScriptOption, error) {
	for _, key := range []string{keyExecutable, keyArgs} {
		if !sec.HasKey(key) {
			return model.ScriptOption{}, fmt.Errorf("missing key %q", key)
		}
	}

	if sec.HasKey(keyWorkdir) {
		dir = resolve(dir, sec.Key(keyWorkdir).String())
	}

	exe := strings.TrimSpace(sec.Key(keyExecutable).String())
	if exe == "" {
		return model.ScriptOption{}, fmt.Errorf("empty key %q", keyExecutable)
	}

	args, err := shlex.Split(sec.Key(keyArgs).String())
	if err != nil {
		return model.ScriptOption{}, fmt.Errorf("parsing %q: %w", keyArgs, err)
	}

	capture := true
	if sec.HasKey(keyCaptureOutput) {
		capture, err = sec.Key(keyCaptureOutput).Bool()
		if err != nil {
			return model.ScriptOption{}, fmt.Errorf("parsing %q: %w", keyCaptureOutput, err)
		}
	}

	var requires []string
	for _, r := range sec.Key(keyRequires).Strings(",") {
		if r == "" {
			continue
		}
		requires = append(requires, resolve(dir, r))
	}

	return model.ScriptOption{
		Name:          sec.Name(),
		Executable:    resolve(dir, exe),
		Args:          args,
		Dir:           dir,
		CaptureOutput: capture,
		Requires:      requires,
	}, nil
}

func resolve(dir, path string) string {
	path = strings.TrimSpace(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, filepath.FromSlash(path))
}

// Missing returns the prerequisite files of opt which do not exist.
func Missing(opt model.ScriptOption) []string {
	var ret []string
	for _, path := range opt.Requires {
		if _, err := os.Stat(path); err != nil {
			ret = append(ret, path)
		}
	}
	return ret
}

// CheckRequires fails with model.ErrMissingPrerequisite listing all missing
// prerequisite files.
func CheckRequires(opt model.ScriptOption) error {
	missing := Missing(opt)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("profile %q: %w: %s", opt.Name, model.ErrMissingPrerequisite, strings.Join(missing, ", "))
}

// duplicates returns the section names which appear more than once.
func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var ret []string
	for _, name := range names {
		if name == ini.DefaultSection {
			continue
		}
		seen[name]++
		if seen[name] == 2 {
			ret = append(ret, name)
		}
	}
	return ret
}
