package model

import (
	"errors"
)

var (
	ErrConfiguration           = errors.New("configuration error")
	ErrUnknownProfile          = errors.New("unknown profile")
	ErrMissingPrerequisite     = errors.New("missing prerequisite files")
	ErrExecutableNotFound      = errors.New("executable not found")
	ErrExecutableNotExecutable = errors.New("executable is not executable")
	ErrSpawnFailed             = errors.New("spawn failed")
	ErrAlreadyRunning          = errors.New("already running")
	ErrProcessNotFound         = errors.New("process not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrElevationDenied         = errors.New("elevation denied")
)
