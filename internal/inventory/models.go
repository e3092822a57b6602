package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("script not found")
	ErrMalformedConfig = errors.New("malformed config")
)

// NotFoundError is returned when a script directory has no entry point.
type NotFoundError struct {
	Dir string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("脚本文件不存在: %s", e.Dir)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type Kind int

const (
	// KindSource is a python source file, run by the interpreter.
	KindSource Kind = iota
	// KindCompiled is a compiled python extension module.
	KindCompiled
	// KindShell is a shell script.
	KindShell
	// KindBinary is any other executable.
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindCompiled:
		return "compiled"
	case KindShell:
		return "shell"
	case KindBinary:
		return "binary"
	}

	return "unknown"
}

// Entry is a resolved script.
type Entry struct {
	// ID is the slash separated path of the script below the scripts dir
	ID string

	// Dir is the absolute script directory
	Dir string

	// Path is the absolute path of the entry point
	Path string

	Kind Kind

	// Readme, Schema and Form are the absolute paths of the optional
	// README.md, schema.json and form.yaml files, or empty.
	Readme string
	Schema string
	Form   string
}

// Name is the last element of the script id.
func (e Entry) Name() string {
	return baseName(e.ID)
}
