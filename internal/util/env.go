package util

import (
	"log/slog"
	"os"
	"strings"
)

// BoolEnv reads a boolean environment variable, falling back to def when
// the variable is unset or does not parse. Accepted values, any case:
// true/1/yes/on and false/0/no/off.
func BoolEnv(key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return def
	}
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("BoolEnv: unrecognized value, using default", "key", key, "value", raw, "default", def)
	return def
}
