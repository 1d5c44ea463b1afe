// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/pkg/document"
	"github.com/ManuGH/skylib/pkg/timeutil"
)

// EnvLookup reads one environment variable. os.LookupEnv is the default.
type EnvLookup func(key string) (string, bool)

// MapEnv returns an EnvLookup backed by a fixed map.
func MapEnv(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func isSensitive(key string) bool {
	lowerKey := strings.ToLower(key)
	return strings.Contains(lowerKey, "token") ||
		strings.Contains(lowerKey, "password") ||
		strings.Contains(lowerKey, "secret")
}

// envNode converts an environment value into a scalar node. Values that read as
// a YAML scalar keep their type ("0.5" is a float), anything else is a string.
func envNode(value string) document.Node {
	n, err := document.Parse([]byte(value), document.YAML)
	if err != nil || !n.IsScalar() || n.IsNull() {
		return document.String(value)
	}
	return n
}

// applyEnv overlays the environment overrides declared by s onto root.
// Empty variables are ignored, as if unset.
func applyEnv(logger zerolog.Logger, s *Schema, root document.Node, lookup EnvLookup) (document.Node, []string, error) {
	var applied []string
	out := root
	for _, f := range s.fields {
		if f.Env == "" {
			continue
		}
		value, ok := lookup(f.Env)
		if !ok || value == "" {
			continue
		}
		next, err := out.With(s.fieldPath(f), envNode(value))
		if err != nil {
			return document.Node{}, nil, err
		}
		out = next
		applied = append(applied, f.Path)

		ev := logger.Debug().
			Str("key", f.Env).
			Str(sklog.FieldPath, f.Path).
			Str("source", "environment")
		if f.Sensitive || isSensitive(f.Env) {
			ev = ev.Bool("sensitive", true)
		} else {
			ev = ev.Str("value", value)
		}
		ev.Msg("using environment variable")
	}
	return out, applied, nil
}

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(sklog.WithComponent("config"), os.LookupEnv, key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, lookup EnvLookup, key, defaultValue string) string {
	if value, exists := lookup(key); exists {
		switch {
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		case isSensitive(key):
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseIntWithLogger(sklog.WithComponent("config"), os.LookupEnv, key, defaultValue)
}

func parseIntWithLogger(logger zerolog.Logger, lookup EnvLookup, key string, defaultValue int) int {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().
			Str("key", key).
			Int("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Int("value", i).
		Str("source", "environment").
		Msg("using environment variable")
	return i
}

// ParseDuration reads a duration from environment variable, either in Go
// duration format ("5s") or compact format ("1d2h"). It falls back to default
// on parse errors or empty variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseDurationWithLogger(sklog.WithComponent("config"), os.LookupEnv, key, defaultValue)
}

func parseDurationWithLogger(logger zerolog.Logger, lookup EnvLookup, key string, defaultValue time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().
			Str("key", key).
			Dur("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		d, err = timeutil.ParseCompact(v)
	}
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Dur("value", d).
		Str("source", "environment").
		Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseBoolWithLogger(sklog.WithComponent("config"), os.LookupEnv, key, defaultValue)
}

func parseBoolWithLogger(logger zerolog.Logger, lookup EnvLookup, key string, defaultValue bool) bool {
	v, ok := lookup(key)
	if !ok || v == "" {
		logger.Debug().
			Str("key", key).
			Bool("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}
