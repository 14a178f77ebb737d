package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ConfigError is one violation of the config schema
type ConfigError struct {
	Path    string // poll.interval
	Code    string // conflicting_values | out_of_bound | type_mismatch | missing_required | validation_error
	Message string // human text
	Raw     string // cue message
}

func (c ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", c.Path, c.Message, c.Raw)
}

func (c ConfigError) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
	)
}

// ConfigErrors are all violations found in a config
type ConfigErrors []ConfigError

func (e ConfigErrors) Error() string {
	msgs := make([]string, len(e))
	for i, c := range e {
		msgs[i] = c.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

var (
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reOutOfBound  = regexp.MustCompile(`(?i)out of bound`)
	reExpectedGot = regexp.MustCompile(`(?i)mismatched types|expected .* got .*`)
)

func humanize(err error) error {
	seen := make(map[string]struct{})
	var out ConfigErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := normalizePath(e.Path())
		if _, ok := seen[path+raw]; ok {
			continue
		}
		seen[path+raw] = struct{}{}

		code, msg := classify(raw, path)
		out = append(out, ConfigError{
			Path:    path,
			Code:    code,
			Message: msg,
			Raw:     raw,
		})
	}
	if len(out) == 0 {
		return err
	}
	return out
}

func normalizePath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	switch {
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("field %s is required", last(path))
	case reOutOfBound.MatchString(raw):
		return "out_of_bound", fmt.Sprintf("field %s is out of bound", last(path))
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("field %s has unsupported value", last(path))
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", fmt.Sprintf("field %s has wrong type", last(path))
	default:
		return "validation_error", raw
	}
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
