package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)

// MaskDSN hides the password portion of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskKey shows the first and last four characters of a credential.
// Values of eight characters or fewer are masked entirely.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// MaskPrefix keeps the first n characters and stars out the rest.
func MaskPrefix(val string, n int) string {
	if len(val) <= n {
		return strings.Repeat("*", len(val))
	}
	return val[:n] + strings.Repeat("*", len(val)-n)
}
