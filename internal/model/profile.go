package model

import (
	"maps"
	"slices"
)

// ScriptOption is a single user selectable profile loaded from the profile file.
type ScriptOption struct {
	Name          string
	Executable    string   // absolute path after loading
	Args          []string // passed as is, no shell
	Dir           string   // working directory of the child process
	CaptureOutput bool
	Requires      []string // files which must exist before the start
}

// Profiles is the active configuration: profile name -> ScriptOption.
type Profiles map[string]ScriptOption

// Names returns sorted profile names.
func (p Profiles) Names() []string {
	return slices.Sorted(maps.Keys(p))
}

// ServiceDescriptor describes the auxiliary packet filtering service.
type ServiceDescriptor struct {
	Name string `json:"name" yaml:"name"`
	// Stop is the stop command line, empty means platform default.
	Stop []string `json:"stop,omitempty" yaml:"stop,omitempty"`
	// OKCodes are exit codes of the stop command treated as success,
	// typically "service not running" and "service does not exist".
	OKCodes []int `json:"ok_codes,omitempty" yaml:"ok_codes,omitempty"`
}
