// Package errs defines the error taxonomy shared by the exporter and the
// centerline extractor. Every type carries enough context (mesh, marker,
// loop, node, path) to locate the problem in the source scene.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed input: bad index buffers, broken road
// topology, missing markers or conflicting names.
type ValidationError struct {
	Mesh   string
	Marker string
	Loop   int // -1 when not loop specific
	Reason string
	Err    error
}

// NewValidation returns a ValidationError that is not tied to a loop.
func NewValidation(mesh, reason string) *ValidationError {
	return &ValidationError{Mesh: mesh, Loop: -1, Reason: reason}
}

func (e *ValidationError) Error() string {
	var ctx []string
	if e.Mesh != "" {
		ctx = append(ctx, fmt.Sprintf("mesh %q", e.Mesh))
	}
	if e.Marker != "" {
		ctx = append(ctx, fmt.Sprintf("marker %q", e.Marker))
	}
	if e.Loop >= 0 {
		ctx = append(ctx, fmt.Sprintf("loop %d", e.Loop))
	}
	msg := "validation: " + e.Reason
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransformError reports a matrix whose determinant check failed after
// coordinate conversion.
type TransformError struct {
	Node string
	Det  float64
	Err  error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("transform: node %q has determinant %.6g after conversion", e.Node, e.Det)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// ConfigError reports an empty or malformed surface table or tool config.
type ConfigError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IOError reports an unreadable source or unwritable destination.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransform reports whether err wraps a TransformError.
func IsTransform(err error) bool {
	var v *TransformError
	return errors.As(err, &v)
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var v *ConfigError
	return errors.As(err, &v)
}

// IsIO reports whether err wraps an IOError.
func IsIO(err error) bool {
	var v *IOError
	return errors.As(err, &v)
}
