package logger

import (
	"regexp"
	"strings"
)

// sensitiveDataPatterns match credentials that must never reach a log line
var sensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

var userInfoPattern = regexp.MustCompile(`(\w+://[^:/\s]+:)[^@\s]+@`)

var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "authorization", "api_key", "dsn",
}

// RedactSensitiveData replaces credentials in free text with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return userInfoPattern.ReplaceAllString(input, "${1}[REDACTED]@")
}

// IsSensitiveKey reports whether a field or config key likely holds a secret
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
