package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig documents the defaults; a failing case means a default changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default engine is static", func(t *testing.T) {
		t.Parallel()
		if cfg.Engine != EngineStatic {
			t.Errorf("expected Engine to be %q, got %q", EngineStatic, cfg.Engine)
		}
	})

	t.Run("default Timeout is 60 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 60*time.Second {
			t.Errorf("expected Timeout to be 60s, got %v", cfg.Timeout)
		}
	})

	t.Run("default observe window is zero", func(t *testing.T) {
		t.Parallel()
		if cfg.ObserveWindow != 0 {
			t.Errorf("expected ObserveWindow to be 0, got %v", cfg.ObserveWindow)
		}
	})

	t.Run("default output dir is the working directory", func(t *testing.T) {
		t.Parallel()
		if cfg.OutputDir != "." {
			t.Errorf("expected OutputDir to be '.', got %q", cfg.OutputDir)
		}
	})

	t.Run("default resource concurrency is 6", func(t *testing.T) {
		t.Parallel()
		if cfg.ResourceConcurrency != 6 {
			t.Errorf("expected ResourceConcurrency to be 6, got %d", cfg.ResourceConcurrency)
		}
	})

	t.Run("site configs are initialized", func(t *testing.T) {
		t.Parallel()
		if cfg.SiteConfigs == nil || cfg.SiteConfigs.Sites == nil {
			t.Error("expected SiteConfigs to be initialized")
		}
	})

	t.Run("no proxy by default", func(t *testing.T) {
		t.Parallel()
		if cfg.UsesProxy() {
			t.Error("expected UsesProxy to be false")
		}
	})
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Targets = []string{"https://example.com"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid config returns nil", mutate: func(*Config) {}},
		{name: "chrome engine is valid", mutate: func(c *Config) { c.Engine = EngineChrome }},
		{name: "positive observe window is valid", mutate: func(c *Config) { c.ObserveWindow = time.Second }},
		{name: "empty targets", mutate: func(c *Config) { c.Targets = nil }, wantErr: ErrNoTarget},
		{name: "unknown engine", mutate: func(c *Config) { c.Engine = "firefox" }, wantErr: ErrUnknownEngine},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative observe window", mutate: func(c *Config) { c.ObserveWindow = -time.Second }, wantErr: ErrInvalidObserveWindow},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: ErrInvalidBatchSize},
		{name: "negative body size", mutate: func(c *Config) { c.MaxBodySize = -1 }, wantErr: ErrInvalidMaxBodySize},
		{name: "negative resource cap", mutate: func(c *Config) { c.MaxResources = -1 }, wantErr: ErrInvalidMaxResources},
		{name: "zero resource concurrency", mutate: func(c *Config) { c.ResourceConcurrency = 0 }, wantErr: ErrInvalidResourceConcurrency},
		{
			name: "tor and proxy together",
			mutate: func(c *Config) {
				c.UseTor = true
				c.ProxyAddress = "127.0.0.1:9050"
			},
			wantErr: ErrConflictingProxies,
		},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: ErrNoOutputDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestFileGetSiteConfig tests merging site entries over defaults.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when site not found", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Defaults: SiteConfig{UserAgent: "ua/1", Cookie: "default=abc"},
			Sites:    map[string]SiteConfig{},
		}

		cfg := file.GetSiteConfig("unknown.example")
		if cfg.UserAgent != "ua/1" {
			t.Errorf("expected default user agent, got %q", cfg.UserAgent)
		}
		if cfg.Cookie != "default=abc" {
			t.Errorf("expected default cookie, got %q", cfg.Cookie)
		}
	})

	t.Run("site values override defaults and headers merge", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Defaults: SiteConfig{
				Headers: map[string]string{"X-Default": "1", "X-Shared": "default"},
			},
			Sites: map[string]SiteConfig{
				"example.com": {
					Cookie:        "session=xyz",
					Headers:       map[string]string{"X-Shared": "site"},
					SkipResources: []string{"*.mp4"},
				},
			},
		}

		cfg := file.GetSiteConfig("example.com")
		if cfg.Cookie != "session=xyz" {
			t.Errorf("expected site cookie, got %q", cfg.Cookie)
		}
		if cfg.Headers["X-Default"] != "1" || cfg.Headers["X-Shared"] != "site" {
			t.Errorf("unexpected merged headers: %v", cfg.Headers)
		}
		if len(cfg.SkipResources) != 1 {
			t.Errorf("expected 1 skip pattern, got %d", len(cfg.SkipResources))
		}
		if file.Defaults.Headers["X-Shared"] != "default" {
			t.Error("merging must not modify the defaults")
		}
	})

	t.Run("lookup ignores case and www prefix", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Sites: map[string]SiteConfig{"example.com": {Cookie: "a=b"}},
		}

		if got := file.GetSiteConfig("WWW.Example.com").Cookie; got != "a=b" {
			t.Errorf("expected site cookie, got %q", got)
		}
	})

	t.Run("nil sites map", func(t *testing.T) {
		t.Parallel()

		file := &File{Defaults: SiteConfig{Cookie: "c=d"}}

		if got := file.GetSiteConfig("any.example").Cookie; got != "c=d" {
			t.Errorf("expected default cookie, got %q", got)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.pageaudit")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".pageaudit")
		content := `defaults:
  userAgent: "custom/1.0"
sites:
  example.com:
    cookie: "session=xyz"
    headers:
      Authorization: "Bearer token"
    skipResources:
      - "/ads/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.UserAgent != "custom/1.0" {
			t.Errorf("expected default user agent, got %q", cfg.Defaults.UserAgent)
		}
		site, ok := cfg.Sites["example.com"]
		if !ok {
			t.Fatal("expected example.com in sites")
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Error("expected Authorization header")
		}
		if len(site.SkipResources) != 1 || site.SkipResources[0] != "/ads/*" {
			t.Errorf("unexpected skip patterns: %v", site.SkipResources)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".pageaudit")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".pageaudit")
		if err := os.WriteFile(configPath, []byte("defaults:\n  cookie: a=b\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGConfigDir tests the XDG config directory helper.
func TestXDGConfigDir(t *testing.T) {
	t.Parallel()

	dir := XDGConfigDir()
	if filepath.Base(dir) != AppName {
		t.Errorf("expected directory to end with %q, got %q", AppName, dir)
	}
}
