package observability

import (
	"strings"
	"unicode"
)

// logSafe strips control characters and truncates, so attacker-supplied
// values cannot inject log lines or blow up entry sizes.
func logSafe(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		cleaned = string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return logSafe(route, 180)
}

// SanitizeMethod bounds an HTTP method for logging.
func SanitizeMethod(method string) string {
	return logSafe(method, 10)
}

// SanitizeUserID bounds a user identifier for logging.
func SanitizeUserID(uid string) string {
	return logSafe(uid, 64)
}
