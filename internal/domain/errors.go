package domain

import (
	"strconv"
	"strings"
)

// ValidationError reports malformed user input. It is raised before any store
// access.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ParseCount parses a non-negative decimal integer such as a dose count or an
// appointment id. Signs, spaces and non-digits are rejected.
func ParseCount(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewValidationError(field + " is required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, NewValidationError(field + " must be a non-negative integer")
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewValidationError(field + " is out of range")
	}
	return n, nil
}
