package sanitizer

import (
	"strings"
)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func NormalizeEmail(email string) string {
	return trimAndLower(email)
}

func NormalizeCurrency(code string) string {
	return trimAndLower(code)
}

// NormalizeTimeZone trims an IANA zone name. Zone names are case
// sensitive, so nothing else is changed.
func NormalizeTimeZone(tz string) string {
	return strings.TrimSpace(tz)
}
