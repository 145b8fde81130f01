package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "reviewflow" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Engine.Store.Driver != "postgres" {
		t.Errorf("Engine.Store.Driver = %q, want postgres", cfg.Engine.Store.Driver)
	}
	if cfg.Engine.ResolveTimeout != 3*time.Second {
		t.Errorf("Engine.ResolveTimeout = %v, want 3s", cfg.Engine.ResolveTimeout)
	}
	if cfg.Notifier.WebhookURL != "https://ntfy.example.com/reviewflow" {
		t.Errorf("Notifier.WebhookURL = %q", cfg.Notifier.WebhookURL)
	}
	if cfg.Lifecycle.BaseURL != "https://submissions.internal" {
		t.Errorf("Lifecycle.BaseURL = %q", cfg.Lifecycle.BaseURL)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("Observability.LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Engine.Store.Driver != "memory" {
		t.Errorf("default Engine.Store.Driver = %q, want memory", cfg.Engine.Store.Driver)
	}
	if cfg.Engine.AdminRole != "workflow-admin" {
		t.Errorf("default Engine.AdminRole = %q", cfg.Engine.AdminRole)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestValidate_badDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/jwks"
	cfg.Identity.Audience = "reviewflow"
	cfg.Engine.Store.Driver = "dynamodb"

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with unsupported driver should return error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REVIEWFLOW_SERVER_PORT", "3000")
	t.Setenv("REVIEWFLOW_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("REVIEWFLOW_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("REVIEWFLOW_STORE_DRIVER", "memory")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 from env", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error from env", cfg.Observability.LogLevel)
	}
	if cfg.Engine.Store.Driver != "memory" {
		t.Errorf("Engine.Store.Driver = %q, want memory from env", cfg.Engine.Store.Driver)
	}
}
