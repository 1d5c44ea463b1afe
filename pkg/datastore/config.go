// SPDX-License-Identifier: MIT

package datastore

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/skylib/pkg/codec"
	"github.com/ManuGH/skylib/pkg/config"
)

// Driver selects the database/sql driver of a pool.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"   // modernc.org/sqlite
	DriverPostgres Driver = "postgres" // github.com/jackc/pgx/v5/stdlib
)

// sqlDriverName returns the name the driver registered with database/sql.
func (d Driver) sqlDriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return string(d)
}

// Config holds the connection settings and pool bounds of one data store.
type Config struct {
	Driver   Driver
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// Path is the database file for DriverSQLite.
	Path   string
	Params map[string]string

	MaxSize             int
	AcquireTimeout      time.Duration
	IdleTimeout         time.Duration // 0 disables idle reaping
	HealthCheckInterval time.Duration // idle time after which a connection is pinged before reuse
	HealthCheckTimeout  time.Duration
	BusyTimeout         time.Duration // sqlite only
}

// DefaultConfig returns the pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:              driver,
		MaxSize:             10,
		AcquireTimeout:      30 * time.Second,
		IdleTimeout:         10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  2 * time.Second,
		BusyTimeout:         5 * time.Second,
	}
	if driver == DriverPostgres {
		cfg.Host = "localhost"
		cfg.Port = 5432
	}
	return cfg
}

var errInvalidConfig = errors.New("datastore: invalid config")

// Validate reports settings that cannot produce a working pool.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			errs = append(errs, errors.New("path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Host == "" {
			errs = append(errs, errors.New("host is required for postgres"))
		}
		if c.Port < 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if c.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("max-size must be >= 1, got %d", c.MaxSize))
	}
	if c.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("acquire-timeout must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"idle-timeout":          c.IdleTimeout,
		"health-check-interval": c.HealthCheckInterval,
		"health-check-timeout":  c.HealthCheckTimeout,
		"busy-timeout":          c.BusyTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// DSN builds the connection string for the configured driver.
func (c Config) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:   "/" + c.Database,
		}
		if c.User != "" {
			if c.Password != "" {
				u.User = url.UserPassword(c.User, c.Password)
			} else {
				u.User = url.User(c.User)
			}
		}
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		return u.String()
	default:
		// Pragmas in the DSN apply to every connection of the pool.
		params := []string{
			"_pragma=journal_mode(WAL)",
			fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
			"_pragma=synchronous(NORMAL)",
			"_pragma=foreign_keys(ON)",
		}
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(c.Params[k]))
		}
		return "file:" + c.Path + "?" + strings.Join(params, "&")
	}
}

// Redacted returns DSN with the password masked, for logs.
func (c Config) Redacted() string {
	if c.Password == "" {
		return c.DSN()
	}
	masked := c
	masked.Password = "***"
	return masked.DSN()
}

// DriverCodec encodes Driver as its name.
var DriverCodec = codec.Enum(DriverSQLite, DriverPostgres)

// ConfigCodec encodes Config as a mapping with kebab-case keys. Absent keys
// take the value of DefaultConfig(DriverSQLite).
var ConfigCodec = func() codec.Codec[Config] {
	def := DefaultConfig(DriverSQLite)
	return codec.Record(
		codec.FieldWithDefault("driver", DriverCodec, def.Driver,
			func(c Config) Driver { return c.Driver }, func(c *Config, v Driver) { c.Driver = v }),
		codec.FieldWithDefault("host", codec.String, def.Host,
			func(c Config) string { return c.Host }, func(c *Config, v string) { c.Host = v }),
		codec.FieldWithDefault("port", codec.Int, def.Port,
			func(c Config) int { return c.Port }, func(c *Config, v int) { c.Port = v }),
		codec.FieldWithDefault("database", codec.String, def.Database,
			func(c Config) string { return c.Database }, func(c *Config, v string) { c.Database = v }),
		codec.FieldWithDefault("user", codec.String, def.User,
			func(c Config) string { return c.User }, func(c *Config, v string) { c.User = v }),
		codec.FieldWithDefault("password", codec.String, def.Password,
			func(c Config) string { return c.Password }, func(c *Config, v string) { c.Password = v }),
		codec.FieldWithDefault("path", codec.String, def.Path,
			func(c Config) string { return c.Path }, func(c *Config, v string) { c.Path = v }),
		codec.FieldWithDefault("params", codec.Map(codec.String), nil,
			func(c Config) map[string]string { return c.Params }, func(c *Config, v map[string]string) { c.Params = v }),
		codec.FieldWithDefault("max-size", codec.Int, def.MaxSize,
			func(c Config) int { return c.MaxSize }, func(c *Config, v int) { c.MaxSize = v }),
		codec.FieldWithDefault("acquire-timeout", codec.Duration, def.AcquireTimeout,
			func(c Config) time.Duration { return c.AcquireTimeout }, func(c *Config, v time.Duration) { c.AcquireTimeout = v }),
		codec.FieldWithDefault("idle-timeout", codec.Duration, def.IdleTimeout,
			func(c Config) time.Duration { return c.IdleTimeout }, func(c *Config, v time.Duration) { c.IdleTimeout = v }),
		codec.FieldWithDefault("health-check-interval", codec.Duration, def.HealthCheckInterval,
			func(c Config) time.Duration { return c.HealthCheckInterval }, func(c *Config, v time.Duration) { c.HealthCheckInterval = v }),
		codec.FieldWithDefault("health-check-timeout", codec.Duration, def.HealthCheckTimeout,
			func(c Config) time.Duration { return c.HealthCheckTimeout }, func(c *Config, v time.Duration) { c.HealthCheckTimeout = v }),
		codec.FieldWithDefault("busy-timeout", codec.Duration, def.BusyTimeout,
			func(c Config) time.Duration { return c.BusyTimeout }, func(c *Config, v time.Duration) { c.BusyTimeout = v }),
	)
}()

// RegisterCodecs registers Driver and Config on r.
func RegisterCodecs(r *codec.Registry) error {
	return errors.Join(
		codec.Register(r, DriverCodec),
		codec.Register(r, ConfigCodec),
	)
}

// ConfigSchema returns a configuration schema for a data store document named
// name, typically "database.yml". Every setting can be overridden by the
// environment variable envPrefix + "_" + KEY, e.g. MYPLUGIN_DB_PASSWORD.
// The registry used with the schema needs RegisterCodecs.
func ConfigSchema(name, envPrefix string, defaults Config) (*config.Schema, error) {
	n, err := ConfigCodec.Encode(defaults)
	if err != nil {
		return nil, err
	}
	env := func(key string) string {
		if envPrefix == "" {
			return ""
		}
		return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	}
	str, integer, dur := codec.TypeNameOf[string](), codec.TypeNameOf[int](), codec.TypeNameOf[time.Duration]()
	fields := []config.Field{
		{Path: "driver", Type: codec.TypeNameOf[Driver](), Required: true, Env: env("driver")},
		{Path: "host", Type: str, Env: env("host")},
		{Path: "port", Type: integer, Env: env("port")},
		{Path: "database", Type: str, Env: env("database")},
		{Path: "user", Type: str, Env: env("user")},
		{Path: "password", Type: str, Env: env("password"), Sensitive: true},
		{Path: "path", Type: str, Env: env("path")},
		{Path: "params", Type: codec.TypeNameOf[map[string]string]()},
		{Path: "max-size", Type: integer, Required: true, Env: env("max-size")},
		{Path: "acquire-timeout", Type: dur, Required: true, Env: env("acquire-timeout")},
		{Path: "idle-timeout", Type: dur, Env: env("idle-timeout")},
		{Path: "health-check-interval", Type: dur, Env: env("health-check-interval")},
		{Path: "health-check-timeout", Type: dur, Env: env("health-check-timeout")},
		{Path: "busy-timeout", Type: dur, Env: env("busy-timeout")},
	}
	return config.NewSchema(name, 1, n, config.WithFields(fields...))
}

// ConfigFrom decodes and validates the data store settings held by inst.
func ConfigFrom(inst *config.Instance, r *codec.Registry) (Config, error) {
	cfg, err := config.Get[Config](inst, r, "$")
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &config.Error{
			Kind:   config.ValidationFailure,
			Schema: inst.Schema(),
			Err:    err,
		}
	}
	return cfg, nil
}
