package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reporta si el string tiene forma local@dominio.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPassword reporta si el password alcanza el largo minimo, contado en
// code points.
func ValidPassword(raw string) bool {
	return utf8.RuneCountInString(raw) >= minPasswordLength
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
