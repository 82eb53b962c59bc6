package model

import (
	"io"
	"path/filepath"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// ConfigEnv names the environment variable overriding the settings path.
const ConfigEnv = "PENGUINCONFIG"

const (
	ElevationAuto = "auto"
	ElevationNone = "none"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultEncoding = "utf-8"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

// Config is the application settings object. It is passed explicitly to
// the components which need it, nothing keeps it in a global.
type Config struct {
	Version        int                `json:"version" yaml:"version"` // fixed 0 for now
	Profiles       string             `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	LastProfile    string             `json:"last_profile,omitempty" yaml:"last_profile,omitempty"`
	Autorun        *bool              `json:"autorun,omitempty" yaml:"autorun,omitempty"`
	Elevation      string             `json:"elevation,omitempty" yaml:"elevation,omitempty"` // "auto"|"none"
	Verbose        *bool              `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log            *string            `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Encoding       string             `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Processes      []string           `json:"processes,omitempty" yaml:"processes,omitempty"`
	PrimaryProcess string             `json:"primary_process,omitempty" yaml:"primary_process,omitempty"`
	Service        *ServiceDescriptor `json:"service,omitempty" yaml:"service,omitempty"`
}

// DefaultConfig returns the configuration stored on a first start. Relative
// paths are resolved against baseDir by Resolve.
func DefaultConfig(baseDir string) Config {
	cfg := Config{
		Version:   0,
		Profiles:  filepath.Join(baseDir, "config", "default.ini"),
		Elevation: ElevationAuto,
		Encoding:  DefaultEncoding,
	}
	if runtime.GOOS == "windows" {
		cfg.Processes = []string{"winws.exe", "goodbyedpi.exe"}
		cfg.PrimaryProcess = "winws.exe"
		cfg.Service = &ServiceDescriptor{
			Name: "WinDivert",
			Stop: []string{"sc", "stop", "WinDivert"},
			// ERROR_SERVICE_DOES_NOT_EXIST, ERROR_SERVICE_NOT_ACTIVE
			OKCodes: []int{1060, 1062},
		}
	} else {
		cfg.Processes = []string{"nfqws", "tpws"}
		cfg.PrimaryProcess = "nfqws"
	}
	return cfg
}

// Resolve fills the empty fields with defaults and makes the profile path
// absolute relative to baseDir.
func (c Config) Resolve(baseDir string) Config {
	dflt := DefaultConfig(baseDir)
	if c.Profiles == "" {
		c.Profiles = dflt.Profiles
	} else if !filepath.IsAbs(c.Profiles) {
		c.Profiles = filepath.Join(baseDir, c.Profiles)
	}
	if c.Elevation == "" {
		c.Elevation = dflt.Elevation
	}
	if c.Encoding == "" {
		c.Encoding = dflt.Encoding
	}
	if c.Processes == nil {
		c.Processes = dflt.Processes
	}
	if c.PrimaryProcess == "" {
		c.PrimaryProcess = dflt.PrimaryProcess
	}
	if c.Service == nil {
		c.Service = dflt.Service
	}
	return c
}

func (c Config) IsVerbose() bool {
	return c.Verbose != nil && *c.Verbose
}

func (c Config) IsAutorun() bool {
	return c.Autorun != nil && *c.Autorun
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract(settingsFile, r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
