package model

import (
	"fmt"
	"log/slog"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// settingsFile is the name positions of the validated YAML are reported with.
const settingsFile = "penguin.yaml"

// Issue codes of the settings validation.
const (
	IssueUnknownField   = "unknown_field"
	IssueMissing        = "missing_required"
	IssueEmpty          = "empty_value"
	IssueInvalidChoice  = "invalid_choice"
	IssueWrongType      = "wrong_type"
	IssueVersion        = "unsupported_version"
	IssueInvalidSetting = "invalid_setting"
)

// Issue is one problem found in the settings file.
type Issue struct {
	Path    string // service.name, processes.1
	Code    string
	Message string
	Line    int // 0 if unknown
	Column  int
}

func (i Issue) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", i.Code),
		slog.String("path", i.Path),
		slog.String("message", i.Message),
		slog.Int("line", i.Line),
		slog.Int("column", i.Column),
	)
}

// Issues turns a LoadConfig error into issues, one per setting and line.
// An error which did not come from the validation yields nil.
func Issues(err error) []Issue {
	if err == nil {
		return nil
	}

	type key struct {
		path string
		line int
	}
	seen := make(map[key]struct{})

	var out []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := settingPath(e.Path())
		line, column := yamlPosition(e)

		k := key{path: path, line: line}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		code, msg := explain(raw, path)
		out = append(out, Issue{
			Path:    path,
			Code:    code,
			Message: msg,
			Line:    line,
			Column:  column,
		})
	}
	return out
}

// explain maps a validation message to a code and a sentence naming the
// setting as it is written in the file.
func explain(raw, path string) (string, string) {
	lower := strings.ToLower(raw)
	field := path
	if field == "" {
		field = "settings"
	}

	switch {
	case strings.Contains(lower, "not allowed"):
		return IssueUnknownField, fmt.Sprintf("%s is not a known setting", field)
	case path == "version":
		return IssueVersion, "only settings version 0 is supported"
	case path == "elevation":
		return IssueInvalidChoice, fmt.Sprintf("elevation must be one of: %s", strings.Join(choices("elevation"), ", "))
	case strings.Contains(lower, "incomplete value"):
		return IssueMissing, fmt.Sprintf("%s is required", field)
	case strings.Contains(lower, `!=""`) || strings.Contains(lower, "invalid value \"\""):
		switch {
		case strings.HasPrefix(path, "processes."):
			return IssueEmpty, "process names must not be empty"
		case strings.HasPrefix(path, "service.stop."):
			return IssueEmpty, "service stop command arguments must not be empty"
		}
		return IssueEmpty, fmt.Sprintf("%s must not be empty", field)
	case strings.Contains(lower, "mismatched types") || strings.Contains(lower, "conflicting values"):
		if strings.HasPrefix(path, "service.ok_codes.") {
			return IssueWrongType, "service exit codes must be integers"
		}
		return IssueWrongType, fmt.Sprintf("%s has a wrong type", field)
	default:
		return IssueInvalidSetting, fmt.Sprintf("%s: %s", field, raw)
	}
}

// choices lists the string alternatives the schema allows for a setting.
func choices(path string) []string {
	v := schema.LookupPath(cue.ParsePath(path))
	var ret []string
	op, args := v.Expr()
	if op != cue.OrOp {
		args = []cue.Value{v}
	}
	for _, a := range args {
		if s, err := a.String(); err == nil {
			ret = append(ret, s)
		}
	}
	return ret
}

// yamlPosition returns the position of the error in the settings file, the
// schema positions are skipped.
func yamlPosition(err cueerrors.Error) (int, int) {
	for _, p := range cueerrors.Positions(err) {
		if p.Filename() == settingsFile {
			return p.Line(), p.Column()
		}
	}
	return 0, 0
}

func settingPath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}
