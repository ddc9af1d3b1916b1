package component

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/micropipe/errors"
)

// Settings are the string key/value pairs from a component configuration.
type Settings map[string]string

// String returns the value of key or def when absent or blank.
func (s Settings) String(key, def string) string {
	if v, ok := s[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Required returns the value of key or an error wrapping ErrRequiredInputMissing.
func (s Settings) Required(key string) (string, error) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: setting %q", errors.ErrRequiredInputMissing, key)
	}
	return v, nil
}

// Int parses key as an integer, returning def when absent.
func (s Settings) Int(key string, def int) (int, error) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: setting %q is not an integer: %v",
			errors.ErrComponentInitializationFailed, key, err)
	}
	return n, nil
}

// Float parses key as a float, returning def when absent.
func (s Settings) Float(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("%w: setting %q is not a number: %v",
			errors.ErrComponentInitializationFailed, key, err)
	}
	return f, nil
}

// Bool parses key as a boolean, returning def when absent.
func (s Settings) Bool(key string, def bool) (bool, error) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: setting %q is not a boolean: %v",
			errors.ErrComponentInitializationFailed, key, err)
	}
	return b, nil
}

// Duration parses key with time.ParseDuration, returning def when absent.
func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: setting %q is not a duration: %v",
			errors.ErrComponentInitializationFailed, key, err)
	}
	return d, nil
}

// Sub returns the settings under prefix with the prefix and separating dot removed.
func (s Settings) Sub(prefix string) Settings {
	out := Settings{}
	p := prefix + "."
	for k, v := range s {
		if strings.HasPrefix(k, p) {
			out[strings.TrimPrefix(k, p)] = v
		}
	}
	return out
}
