package goSession

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://api.example.com"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.API.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.API.Timeout)
	}
	if cfg.Storage.Driver != StorageFile || cfg.Storage.Key != "gosession_token" || !cfg.Storage.Watch {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if !cfg.Session.ValidateOnRestore || cfg.Session.RefreshSkew != time.Minute || cfg.Session.ObserverBuffer != 64 {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Routes.LoginPath != "/login" || !reflect.DeepEqual(cfg.Routes.Protected, []string{"/"}) {
		t.Fatalf("unexpected route defaults %+v", cfg.Routes)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.EnableLatencyHistograms {
		t.Fatalf("unexpected metrics defaults %+v", cfg.Metrics)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without a base URL should not validate")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "baseline", mutate: func(*Config) {}, wantValid: true},
		{name: "http base url", mutate: func(c *Config) { c.API.BaseURL = "http://localhost:8080/api" }, wantValid: true},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantValid: false},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://example.com" }, wantValid: false},
		{name: "negative timeout", mutate: func(c *Config) { c.API.Timeout = -time.Second }, wantValid: false},
		{name: "bad storage key", mutate: func(c *Config) { c.Storage.Key = "../escape" }, wantValid: false},
		{name: "empty storage key", mutate: func(c *Config) { c.Storage.Key = "" }, wantValid: false},
		{name: "memory driver", mutate: func(c *Config) { c.Storage.Driver = StorageMemory }, wantValid: true},
		{name: "redis driver", mutate: func(c *Config) { c.Storage.Driver = StorageRedis }, wantValid: true},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageRedis
				c.Storage.RedisAddr = " "
			},
			wantValid: false,
		},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "s3" }, wantValid: false},
		{name: "negative skew", mutate: func(c *Config) { c.Session.RefreshSkew = -time.Second }, wantValid: false},
		{name: "zero observer buffer", mutate: func(c *Config) { c.Session.ObserverBuffer = 0 }, wantValid: false},
		{name: "relative login path", mutate: func(c *Config) { c.Routes.LoginPath = "login" }, wantValid: false},
		{name: "relative public route", mutate: func(c *Config) { c.Routes.Public = []string{"about"} }, wantValid: false},
		{name: "role route", mutate: func(c *Config) { c.Routes.Roles = map[string]string{"/payroll": "hr_admin"} }, wantValid: true},
		{name: "role route without roles", mutate: func(c *Config) { c.Routes.Roles = map[string]string{"/payroll": " | "} }, wantValid: false},
		{name: "relative role route", mutate: func(c *Config) { c.Routes.Roles = map[string]string{"payroll": "hr"} }, wantValid: false},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantValid: false},
		{name: "upper log level", mutate: func(c *Config) { c.LogLevel = "DEBUG" }, wantValid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestRoleMap(t *testing.T) {
	r := RouteConfig{Roles: map[string]string{
		"/payroll": "hr_admin| hr_manager ",
		" /ledger": "finance",
	}}
	got := r.RoleMap()
	want := map[string][]string{
		"/payroll": {"hr_admin", "hr_manager"},
		"/ledger":  {"finance"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if (RouteConfig{}).RoleMap() != nil {
		t.Fatal("empty roles should give a nil map")
	}
}

func TestStorageDriverUnmarshal(t *testing.T) {
	var d StorageDriver
	if err := d.UnmarshalText([]byte(" Redis ")); err != nil || d != StorageRedis {
		t.Fatalf("got %q, %v", d, err)
	}
	if err := d.UnmarshalText([]byte("s3")); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GOSESSION_API_BASE_URL", "https://hr.example.com")
	t.Setenv("GOSESSION_API_TIMEOUT", "3s")
	t.Setenv("GOSESSION_STORAGE_DRIVER", "memory")
	t.Setenv("GOSESSION_STORAGE_KEY", "hr_token")
	t.Setenv("GOSESSION_ROUTES_PUBLIC", "/about,/help")
	t.Setenv("GOSESSION_ROUTES_ROLES", "/payroll:hr_admin|hr_manager,/ledger:finance")
	t.Setenv("GOSESSION_SESSION_VALIDATE_ON_RESTORE", "false")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.BaseURL != "https://hr.example.com" || cfg.API.Timeout != 3*time.Second {
		t.Fatalf("unexpected api config %+v", cfg.API)
	}
	if cfg.Storage.Driver != StorageMemory || cfg.Storage.Key != "hr_token" {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
	if !reflect.DeepEqual(cfg.Routes.Public, []string{"/about", "/help"}) {
		t.Fatalf("unexpected public routes %v", cfg.Routes.Public)
	}
	if got := cfg.RoleMap()["/payroll"]; !reflect.DeepEqual(got, []string{"hr_admin", "hr_manager"}) {
		t.Fatalf("unexpected payroll roles %v", got)
	}
	if cfg.Session.ValidateOnRestore {
		t.Fatal("validate on restore should be off")
	}
}

func TestLoadConfigDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "GOSESSION_API_BASE_URL=https://finance.example.com\nGOSESSION_STORAGE_KEY=finance_token\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	// Real environment wins over the file.
	t.Setenv("GOSESSION_STORAGE_KEY", "override_token")
	t.Cleanup(func() { _ = os.Unsetenv("GOSESSION_API_BASE_URL") })

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.BaseURL != "https://finance.example.com" {
		t.Fatalf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.Storage.Key != "override_token" {
		t.Fatalf("unexpected storage key %q", cfg.Storage.Key)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("GOSESSION_API_BASE_URL", "https://hr.example.com")
	t.Setenv("GOSESSION_STORAGE_DRIVER", "s3")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected parse error for bad driver")
	}
}

func TestReadConfigSkipsValidation(t *testing.T) {
	t.Setenv("GOSESSION_API_BASE_URL", "")
	t.Setenv("GOSESSION_STORAGE_KEY", "finance_token")

	cfg, err := ReadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Storage.Key != "finance_token" {
		t.Fatalf("unexpected key %q", cfg.Storage.Key)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without a base URL")
	}

	cfg.API.BaseURL = "http://127.0.0.1:8080"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate after override: %v", err)
	}
}
