package app

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
)

// Bangladeshi mobile numbers, with an optional +88 or 88 country prefix.
var phonePattern = regexp.MustCompile(`^(?:\+?88)?(01[3-9]\d{8})$`)

// normalizePhone strips separators and the country prefix, returning the
// 11-digit local form.
func normalizePhone(raw string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, raw)

	m := phonePattern.FindStringSubmatch(cleaned)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}

// requireLength returns a validation error when value is outside min..max runes.
func requireLength(field, value string, minLen, maxLen int) error {
	n := textLen(value)
	if n >= minLen && n <= maxLen {
		return nil
	}
	msg := fmt.Sprintf("%s must be at most %d characters", field, maxLen)
	if minLen > 0 {
		msg = fmt.Sprintf("%s must be between %d and %d characters", field, minLen, maxLen)
	}
	return apperrors.ValidationError(msg).WithField("field", field)
}
