package logging

import (
	"regexp"
	"strings"
)

// RedactedText is the replacement for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.~+/]+=*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host in URLs
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// provider keys that leak through error bodies
	providerKeyPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9-_]{16,}|sk-ant-[A-Za-z0-9-_]{16,})\b`)
)

// secretEnvSuffixes mark environment variables whose values are never logged.
var secretEnvSuffixes = []string{"PASSWORD", "SECRET", "API_KEY", "TOKEN"}

// SanitizeConnectionString removes credentials from a DSN before logging.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns err's message with credentials and tokens removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText applies every redaction pattern to free-form text such as
// subprocess output or provider error bodies.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// RedactValues replaces every literal occurrence of the given secrets. Values
// shorter than four characters are skipped to avoid shredding unrelated text.
func RedactValues(s string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, secret, RedactedText)
	}
	return s
}

// SanitizeEnv masks the values of secret-looking KEY=VALUE entries.
func SanitizeEnv(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		key, _, found := strings.Cut(kv, "=")
		if found && isSecretKey(key) {
			out[i] = key + "=" + RedactedText
			continue
		}
		out[i] = kv
	}
	return out
}

func isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, suffix := range secretEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// TruncateString truncates s to maxLen bytes and adds an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
