package errors

import (
	"strings"
	"unicode"
)

// ValidatePositive checks that a size-like setting is strictly positive.
// name is the user-facing setting name used in the message (e.g. "inputSize").
func ValidatePositive(name string, v int) error {
	if v <= 0 {
		return New(ErrCodeInvalidConfig, "%s must be positive, got %d", name, v)
	}
	return nil
}

// ValidateNonNegative checks that a limit-like setting is zero or greater.
func ValidateNonNegative(name string, v int) error {
	if v < 0 {
		return New(ErrCodeInvalidConfig, "%s must not be negative, got %d", name, v)
	}
	return nil
}

// ValidateFilename validates a file name recorded in a tile manifest.
// The name must be a plain basename so a manifest cannot point outside the
// directory it describes.
//
// Validation rules:
//   - Name cannot be empty
//   - Maximum length of 255 characters
//   - No null bytes or control characters
//   - No path separators or traversal sequences
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "file name cannot be empty")
	}

	const maxNameLength = 255
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidInput, "file name too long (max %d characters)", maxNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "file name contains invalid characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "file name cannot contain path separators: %q", name)
	}

	if name == "." || name == ".." {
		return New(ErrCodeInvalidInput, "file name cannot be %q", name)
	}

	return nil
}

// ValidatePath validates a user-supplied file system path.
// Unlike ValidateFilename, directories and absolute paths are allowed; only
// empty paths and control characters are rejected.
func ValidatePath(name, path string) error {
	if strings.TrimSpace(path) == "" {
		return New(ErrCodeInvalidConfig, "%s is required", name)
	}
	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidConfig, "%s contains invalid characters", name)
		}
	}
	return nil
}
