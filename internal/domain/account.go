// Package domain contains core domain types for the tgrelay application.
package domain

import (
	"fmt"
	"strings"
)

// MinPhoneLength is the minimum accepted length of a normalized phone
// identifier, including the leading "+".
const MinPhoneLength = 10

// NormalizePhone strips whitespace and punctuation from a phone identifier
// and validates the canonical form: a leading "+" followed by digits only.
// Normalization is idempotent: applying it to an already-normalized value
// returns the same value.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch r {
		case ' ', '\t', '-', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	normalized := b.String()

	if !strings.HasPrefix(normalized, "+") {
		return "", fmt.Errorf("phone %q must start with a country code prefix", phone)
	}
	digits := normalized[1:]
	if digits == "" || !isDigits(digits) {
		return "", fmt.Errorf("phone %q must contain only digits after the prefix", phone)
	}
	if len(normalized) < MinPhoneLength {
		return "", fmt.Errorf("phone %q is too short (minimum %d characters)", phone, MinPhoneLength)
	}
	return normalized, nil
}

// ValidCode reports whether a verification code has a plausible shape:
// digits only, at least four of them. It does not check the code against
// the platform; that happens during sign-in.
func ValidCode(code string) bool {
	return len(code) >= 4 && isDigits(code)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
