package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "GOSESSION_"

// Config is the full client configuration. Defaults live in the envDefault tags;
// DefaultConfig and LoadConfig both apply them.
type Config struct {
	API      APIConfig      `envPrefix:"API_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Routes   RouteConfig    `envPrefix:"ROUTES_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig points the client at one backend deployment.
type APIConfig struct {
	BaseURL   string        `env:"BASE_URL"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"10s"`
	UserAgent string        `env:"USER_AGENT" envDefault:"goSession/1"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageDriver selects the token store backend.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory"
	StorageFile   StorageDriver = "file"
	StorageRedis  StorageDriver = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageDriver.
func (d *StorageDriver) UnmarshalText(text []byte) error {
	v := StorageDriver(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StorageMemory, StorageFile, StorageRedis:
		*d = v
		return nil
	default:
		return fmt.Errorf("invalid storage driver %q (valid options: memory, file, redis)", string(text))
	}
}

// StorageConfig configures where the session record is persisted. Key is the
// package-specific storage key, e.g. "hr_token" or "finance_token".
type StorageConfig struct {
	Driver StorageDriver `env:"DRIVER" envDefault:"file"`
	Key    string        `env:"KEY"    envDefault:"gosession_token"`
	// Dir defaults to the per-user config directory.
	Dir string `env:"DIR"`
	// Watch follows changes other processes make to the file store.
	Watch bool `env:"WATCH" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX"   envDefault:"gosession:token:"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the session state machine.
type SessionConfig struct {
	// ValidateOnRestore calls GET /auth/me after loading a persisted session.
	ValidateOnRestore bool `env:"VALIDATE_ON_RESTORE" envDefault:"true"`
	// RefreshSkew is the window used by Client.EnsureFresh.
	RefreshSkew time.Duration `env:"REFRESH_SKEW" envDefault:"1m"`
	// ObserverBuffer sizes the queue in front of the Navigator.
	ObserverBuffer int `env:"OBSERVER_BUFFER" envDefault:"64"`
}

/*
====================================
ROUTE CONFIG
====================================
*/

// RouteConfig feeds the route guard. Roles entries look like
// "/payroll:hr_admin|hr_manager".
type RouteConfig struct {
	LoginPath string            `env:"LOGIN_PATH" envDefault:"/login"`
	Protected []string          `env:"PROTECTED"  envDefault:"/"        envSeparator:","`
	Public    []string          `env:"PUBLIC"                           envSeparator:","`
	Roles     map[string]string `env:"ROLES"                            envSeparator:"," envKeyValSeparator:":"`
}

// RoleMap splits Roles values on "|".
func (r RouteConfig) RoleMap() map[string][]string {
	if len(r.Roles) == 0 {
		return nil
	}
	out := make(map[string][]string, len(r.Roles))
	for prefix, list := range r.Roles {
		var roles []string
		for _, role := range strings.Split(list, "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		out[strings.TrimSpace(prefix)] = roles
	}
	return out
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"            envDefault:"true"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS" envDefault:"false"`
}

/*
====================================
LOADING
====================================
*/

// DefaultConfig returns the tag defaults without reading the environment.
func DefaultConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("goSession: invalid config defaults: %v", err))
	}
	return cfg
}

// LoadConfig loads a .env file when present, then parses GOSESSION_* variables and
// validates the result.
func LoadConfig(files ...string) (Config, error) {
	cfg, err := ReadConfig(files...)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for callers that override fields
// from flags first.
func ReadConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values Build cannot work with.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("API BaseURL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	// Storage
	if err := tokenstore.ValidateKey(c.Storage.Key); err != nil {
		return fmt.Errorf("Storage Key: %w", err)
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageFile:
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("Storage RedisAddr is required for the redis driver")
		}
		if c.Storage.RedisDB < 0 {
			return errors.New("Storage RedisDB must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	// Session
	if c.Session.RefreshSkew < 0 {
		return errors.New("Session RefreshSkew must be >= 0")
	}
	if c.Session.ObserverBuffer <= 0 {
		return errors.New("Session ObserverBuffer must be > 0")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must start with /")
	}
	for _, p := range append(append([]string(nil), c.Routes.Protected...), c.Routes.Public...) {
		if !strings.HasPrefix(strings.TrimSpace(p), "/") {
			return fmt.Errorf("route pattern %q must start with /", p)
		}
	}
	for prefix, roles := range c.RoleMap() {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("role route %q must start with /", prefix)
		}
		if len(roles) == 0 {
			return fmt.Errorf("role route %q lists no roles", prefix)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}

	return nil
}

// RoleMap is a shortcut for c.Routes.RoleMap.
func (c *Config) RoleMap() map[string][]string { return c.Routes.RoleMap() }
