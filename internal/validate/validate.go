// Package validate holds the input rules shared by the HTTP handlers.
// Violations are collected, not failed fast: a handler gathers every
// FieldError for the request and returns them in one response.
package validate

import (
	"net/url"
	"regexp"
	"strings"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Errors []FieldError

func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e Errors) Any() bool {
	return len(e) > 0
}

const NameMaxLen = 100

const PasswordMinLen = 6

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9()\-. ]{6,20}$`)
	hexRe   = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)
)

// NormalizeEmail lowercases and trims; apply before storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func Email(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

func Name(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= NameMaxLen
}

func Password(password string) bool {
	return len(password) >= PasswordMinLen
}

func Phone(phone string) bool {
	return phoneRe.MatchString(strings.TrimSpace(phone))
}

func URL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// HexColor validates a 6-hex-digit color with an optional leading "#"
// and returns the normalized "#RRGGBB" form.
func HexColor(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !hexRe.MatchString(trimmed) {
		return "", false
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(trimmed, "#")), true
}
