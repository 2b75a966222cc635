// Package config loads typed configuration from a YAML file, with
// command-line overrides taking precedence over the file and a caller-
// supplied default map consulted last. There is no runtime code
// evaluation: configuration is pure data.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig is returned when a required parameter is missing from the file,
// the overrides, and the defaults.
var ErrConfig = errors.New("config: missing required parameter")

// Config wraps a resolved configuration namespace: file values, with CLI
// overrides applied on top, and a default map consulted as the last
// resort.
type Config struct {
	values    map[string]any
	overrides map[string]any
	defaults  map[string]any
	path      string
}

// Load reads path as YAML into the base namespace, then constructs a
// Config in which overrides always win over file values and defaults are
// consulted only for keys present in neither.
//
// A non-existent path is not an error: the file layer is simply empty,
// letting overrides and defaults alone satisfy every Get call.
func Load(path string, overrides map[string]any, defaults map[string]any) (*Config, error) {
	values := map[string]any{}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: open %s: %w", path, err)
			}
		} else {
			defer f.Close()
			dec := yaml.NewDecoder(f)
			if err := dec.Decode(&values); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if values == nil {
		values = map[string]any{}
	}

	if overrides == nil {
		overrides = map[string]any{}
	}
	if defaults == nil {
		defaults = map[string]any{}
	}

	return &Config{values: values, overrides: overrides, defaults: defaults, path: path}, nil
}

// Get resolves key through overrides, then the file namespace, then
// defaults, returning ErrConfig if none of the three define it.
func (c *Config) Get(key string) (any, error) {
	if v, ok := c.overrides[key]; ok {
		return v, nil
	}
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	if v, ok := c.defaults[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrConfig, key)
}

// GetString resolves key and type-asserts it to string, failing with
// ErrConfig (wrapped) if the resolved value is not a string.
func (c *Config) GetString(key string) (string, error) {
	v, err := c.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string (got %T)", ErrConfig, key, v)
	}
	return s, nil
}

// GetInt resolves key and coerces it to int. YAML and command-line sources
// may decode integers as int, int64, or float64 depending on origin; all
// three are accepted.
func (c *Config) GetInt(key string) (int, error) {
	v, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer (got %T)", ErrConfig, key, v)
	}
}

// GetFloat resolves key and coerces it to float64.
func (c *Config) GetFloat(key string) (float64, error) {
	v, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is not a number (got %T)", ErrConfig, key, v)
	}
}

// Path returns the YAML file path this Config was loaded from (may be empty
// if none was given).
func (c *Config) Path() string { return c.path }
