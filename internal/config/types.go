package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that decodes from strings such as "15s" in
// YAML files and VERIFYD_* variables, and encodes back to the same form.
type Duration time.Duration

// UnmarshalText parses a non-negative Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative: %s", raw)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration converts back to time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// redactedText replaces a set Secret in every rendering.
const redactedText = "[REDACTED]"

// Secret holds a credential loaded from configuration, such as a NATS
// token. fmt, encoding/json and YAML output show only a placeholder; Value
// is the single way to read it back.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedText
}

func (s Secret) GoString() string {
	return "Secret(" + redactedText + ")"
}

// MarshalText keeps the credential out of encoded config dumps.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Value returns the credential itself.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}
