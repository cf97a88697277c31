package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in logs and command output.
const RedactedValue = "[REDACTED]"

// Attributes outside this set are masked by the handler Setup installs.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"instance":  {},
	"component": {},
	"error":     {},
	"reason":    {},
	"panic":     {},
	"operation": {},
	"tx":        {},
	"address":   {},
	"writer":    {},
	"remove":    {},
	"index":     {},
	"applied":   {},
	"length":    {},
	"bytes":     {},
	"bootstrap": {},
	"writable":  {},
	"indexer":   {},
	"addr":      {},
	"path":      {},
}

// IsAllowlisted reports whether key may be emitted without redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// redact masks attr unless its key is allowlisted. Empty strings are left
// alone so a missing value stays visible as missing.
func redact(attr slog.Attr) slog.Attr {
	if IsAllowlisted(attr.Key) {
		return attr
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindString && strings.TrimSpace(value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
