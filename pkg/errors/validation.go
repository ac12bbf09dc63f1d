package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxIDLength bounds node, edge and handle identifiers.
const maxIDLength = 128

// ValidateID validates a node, edge or handle identifier supplied from outside
// the engine (documents, HTTP requests, CLI flags).
//
// The validation rules are intentionally conservative:
//   - No empty identifiers
//   - No control characters or whitespace
//   - Maximum length of 128 characters
func ValidateID(what, id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "%s id cannot be empty", what)
	}

	if len(id) > maxIDLength {
		return New(ErrCodeInvalidInput, "%s id too long (max %d characters)", what, maxIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "%s id contains invalid characters: %q", what, id)
		}
	}

	return nil
}

// kindRegex matches node kind tags: lowercase words joined by dashes.
var kindRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// ValidateKind validates a node kind tag such as "text-message".
func ValidateKind(kind string) error {
	if kind == "" {
		return New(ErrCodeInvalidInput, "node kind cannot be empty")
	}

	if !kindRegex.MatchString(kind) {
		return New(ErrCodeInvalidInput, "invalid node kind: %q (use lowercase words joined by dashes)", kind)
	}

	return nil
}

// ValidateFlowName validates a stored flow name.
// Names become storage keys and file names, so path separators are rejected.
func ValidateFlowName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "flow name cannot be empty")
	}

	if len(name) > maxIDLength {
		return New(ErrCodeInvalidInput, "flow name too long (max %d characters)", maxIDLength)
	}

	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return New(ErrCodeInvalidInput, "flow name cannot contain path separators: %q", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "flow name contains invalid control characters")
		}
	}

	return nil
}
