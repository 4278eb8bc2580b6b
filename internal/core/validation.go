// internal/core/validation.go
package core

import (
	"errors"
	"regexp"
)

// ErrBadRequest marks malformed client input.
var ErrBadRequest = errors.New("bad request")

// Regular expression for valid column names (alphanumeric + underscore)
var nameValidationRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Route prefixes are a single lowercase path segment, e.g. "/doctors".
var prefixValidationRegex = regexp.MustCompile(`^/[a-z0-9_-]+$`)

// IsValidIdentifier checks if a string is a valid identifier (e.g., a sort column)
// Applies basic format and length checks.
func IsValidIdentifier(name string) bool {
	return nameValidationRegex.MatchString(name) && len(name) > 0 && len(name) <= 64
}

// IsValidPrefix checks that a route-group prefix is a single absolute path segment.
func IsValidPrefix(prefix string) bool {
	return prefixValidationRegex.MatchString(prefix) && len(prefix) <= 64
}
