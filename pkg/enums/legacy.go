package enums

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// canonicalToken lowercases and folds separators so "In Progress", "in-progress"
// and "in_progress" compare equal before the alias tables are consulted.
func canonicalToken(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.NewReplacer(" ", "_", "-", "_").Replace(token)
	for strings.Contains(token, "__") {
		token = strings.ReplaceAll(token, "__", "_")
	}
	return token
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported status source %T", src)
	}
}

func stringValue(value string, valid bool, kind string) (driver.Value, error) {
	if !valid {
		return nil, fmt.Errorf("refusing to persist invalid %s %q", kind, value)
	}
	return value, nil
}
