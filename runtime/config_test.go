package runtime

import (
	"strings"
	"testing"
	"time"
)

type storeSettings struct {
	Addr    string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	BaseURL string        `yaml:"base_url" default:"http://localhost:8080" validate:"url_format"`
	Retries int           `yaml:"retries" default:"3" validate:"gte=0,lte=10"`
	Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.DefaultMaxLoopCount != 1000 {
		t.Errorf("Expected DefaultMaxLoopCount=1000, got %d", cfg.DefaultMaxLoopCount)
	}
	if cfg.MaxNodeVisits != 0 {
		t.Errorf("Expected MaxNodeVisits=0, got %d", cfg.MaxNodeVisits)
	}
	if cfg.InputVariable != "input" || cfg.PageVariable != "page" || cfg.ParamsVariable != "params" {
		t.Errorf("Unexpected trigger variables: %q %q %q", cfg.InputVariable, cfg.PageVariable, cfg.ParamsVariable)
	}
	if cfg.FormatErrorsVariable != "formatErrors" {
		t.Errorf("Expected FormatErrorsVariable='formatErrors', got '%s'", cfg.FormatErrorsVariable)
	}
	if cfg.AliasCacheTTL != 5*time.Minute {
		t.Errorf("Expected AliasCacheTTL=5m, got %v", cfg.AliasCacheTTL)
	}
}

func TestInitializeConfig_RawValues(t *testing.T) {
	var cfg Config
	err := InitializeConfig(&cfg, map[string]any{
		"default_max_loop_count": 50,
		"alias_cache_ttl":        "90s",
		"input_variable":         "form",
	})
	if err != nil {
		t.Fatalf("InitializeConfig failed: %v", err)
	}

	if cfg.DefaultMaxLoopCount != 50 {
		t.Errorf("Expected DefaultMaxLoopCount=50, got %d", cfg.DefaultMaxLoopCount)
	}
	if cfg.AliasCacheTTL != 90*time.Second {
		t.Errorf("Expected AliasCacheTTL=90s, got %v", cfg.AliasCacheTTL)
	}
	if cfg.InputVariable != "form" {
		t.Errorf("Expected InputVariable='form', got '%s'", cfg.InputVariable)
	}
	// Untouched fields keep their defaults
	if cfg.PageVariable != "page" {
		t.Errorf("Expected default PageVariable, got %q", cfg.PageVariable)
	}
}

func TestInitializeConfig_Invalid(t *testing.T) {
	var cfg Config
	err := InitializeConfig(&cfg, map[string]any{"max_node_visits": -1})
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "MaxNodeVisits") {
		t.Errorf("Expected error to mention 'MaxNodeVisits', got: %v", err)
	}
}

func TestApplyDefaults_NonZeroValuesUnchanged(t *testing.T) {
	cfg := storeSettings{Addr: "redis:6380", Retries: 7}

	if err := ApplyDefaults(&cfg); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}
	if cfg.Addr != "redis:6380" {
		t.Errorf("Expected Addr='redis:6380', got '%s'", cfg.Addr)
	}
	if cfg.Retries != 7 {
		t.Errorf("Expected Retries=7, got %d", cfg.Retries)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout=30s, got %v", cfg.Timeout)
	}
}

func TestApplyDefaults_NilConfig(t *testing.T) {
	if err := ApplyDefaults(nil); err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCustomValidator_HostnamePort(t *testing.T) {
	tests := []struct {
		name      string
		addr      string
		shouldErr bool
	}{
		{"host and port", "localhost:6379", false},
		{"ip and port", "127.0.0.1:5432", false},
		{"missing port", "localhost", true},
		{"missing host", ":6379", true},
		{"bad port", "localhost:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storeSettings{Addr: tt.addr, BaseURL: "http://x", Timeout: time.Second}
			err := validateConfig(cfg)
			if tt.shouldErr && err == nil {
				t.Errorf("Expected validation error for '%s', got nil", tt.addr)
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("Expected no error for '%s', got: %v", tt.addr, err)
			}
		})
	}
}

func TestCustomValidator_URLFormat(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		shouldErr bool
	}{
		{"http", "http://api.example.com", false},
		{"https with path", "https://api.example.com/v1", false},
		{"no scheme", "api.example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storeSettings{Addr: "localhost:1", BaseURL: tt.url, Timeout: time.Second}
			err := validateConfig(cfg)
			if tt.shouldErr && err == nil {
				t.Errorf("Expected validation error for '%s', got nil", tt.url)
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("Expected no error for '%s', got: %v", tt.url, err)
			}
		})
	}
}

func TestPrepareConfig(t *testing.T) {
	cfg := storeSettings{}
	if err := PrepareConfig(&cfg); err != nil {
		t.Fatalf("PrepareConfig failed: %v", err)
	}
	if cfg.Addr != "localhost:6379" {
		t.Errorf("Expected Addr='localhost:6379', got '%s'", cfg.Addr)
	}

	bad := storeSettings{Addr: "nope", Retries: 50}
	err := PrepareConfig(&bad)
	if err == nil {
		t.Fatal("Expected PrepareConfig to fail validation, got nil")
	}
	if !strings.Contains(err.Error(), "validation") {
		t.Errorf("Expected error to mention 'validation', got: %v", err)
	}

	if err := PrepareConfig(nil); err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestValidVar(t *testing.T) {
	if !validVar("a@example.com", "email") {
		t.Error("Expected a@example.com to be a valid email")
	}
	if validVar("not-an-email", "email") {
		t.Error("Expected not-an-email to be rejected")
	}
}
