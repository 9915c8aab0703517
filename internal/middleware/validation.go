package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateMessageBody validates a message body.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("body cannot be empty")
	}
	if len(body) > 100000 { // ~100KB limit
		return errors.New("body exceeds maximum length")
	}
	if !utf8.ValidString(body) {
		return errors.New("body must be valid UTF-8")
	}
	return nil
}

// ValidateUserID validates a user id path or payload parameter.
func ValidateUserID(id string) error {
	if id == "" {
		return errors.New("user id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("user id exceeds maximum length")
	}
	if strings.Contains(id, "_") {
		return errors.New("user id must not contain underscores")
	}
	return nil
}
