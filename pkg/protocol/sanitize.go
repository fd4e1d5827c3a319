package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputBytes bounds a visitor message when no limit is configured.
const DefaultMaxInputBytes = 4096

var (
	ErrInputTooLarge = errors.New("message is too long")
	ErrInvalidUTF8   = errors.New("message is not valid UTF-8")
)

// SanitizeInput checks a visitor message against maxBytes and drops control
// characters other than line breaks and tabs. A non-positive maxBytes means
// DefaultMaxInputBytes. Oversized messages are rejected, never truncated.
func SanitizeInput(input string, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}
	if len(input) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(input), maxBytes)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	return strings.Map(keepPrintable, input), nil
}

func keepPrintable(r rune) rune {
	if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
		return -1
	}
	return r
}
