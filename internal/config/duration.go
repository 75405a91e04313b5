package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses a Go duration string, returning def when the
// field is empty. The field name is only used for error messages.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative (got %s)", field, raw)
	}
	return d, nil
}
