package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// EngineStatic loads the page over HTTP and emulates the browser surface in-process.
	EngineStatic = "static"

	// EngineChrome drives a headless Chrome instance through the DevTools protocol.
	EngineChrome = "chrome"

	// DefaultEngine is the static engine because it needs nothing but the binary.
	DefaultEngine = EngineStatic

	// DefaultTimeout bounds loading the page and its sub-resources.
	DefaultTimeout = 60 * time.Second

	// DefaultObserveWindow is zero: the report is generated right after the
	// error monitor is registered.
	DefaultObserveWindow = time.Duration(0)

	// DefaultBatchSize is the number of targets audited concurrently.
	DefaultBatchSize = 4

	// DefaultOutputDir is where website-analysis-report.json is written.
	DefaultOutputDir = "."

	// AppName is the application name used for XDG directory paths.
	AppName = "pageaudit"

	// DefaultUserAgent is sent with every request made by the static engine.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) pageaudit/1.0"

	// DefaultMaxBodySize limits how much of the document and of each
	// sub-resource is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxResources caps the number of sub-resources the static engine fetches.
	DefaultMaxResources = 200

	// DefaultResourceConcurrency matches the per-host connection limit browsers use.
	DefaultResourceConcurrency = 6

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for pageaudit.
// It is populated from CLI flags and the optional site file and passed down
// explicitly; nothing reads it from global state.
type Config struct {
	// Targets are the pages to audit: URLs, bare hosts or local file paths.
	Targets []string

	// Engine selects the page engine (EngineStatic or EngineChrome).
	Engine string

	// Timeout bounds loading a single page including its sub-resources.
	Timeout time.Duration

	// ObserveWindow keeps the page alive after the error monitor is registered
	// so that late runtime errors end up in the report.
	ObserveWindow time.Duration

	// OutputDir is the directory that receives the exported report.
	OutputDir string

	// Quiet suppresses the diagnostic tables.
	Quiet bool

	// Verbose enables debug logging.
	Verbose bool

	// BatchSize is the number of concurrent audits when several targets are given.
	BatchSize int

	// ConfigFilePath is the explicit site file path given with --config.
	ConfigFilePath string

	// SiteConfigs holds the parsed site file. Never nil after flag parsing.
	SiteConfigs *File

	// UserAgent is the User-Agent header sent by the static engine.
	UserAgent string

	// MaxBodySize is the read limit for the document and every sub-resource.
	MaxBodySize int64

	// MaxResources caps how many sub-resources the static engine fetches.
	MaxResources int

	// ResourceConcurrency is the number of parallel sub-resource fetches.
	ResourceConcurrency int

	// SkipResources disables sub-resource fetching in the static engine.
	SkipResources bool

	// ProxyAddress is an external SOCKS5 proxy in host:port form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes every request through it.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ChromePath is the Chrome executable used by the chrome engine.
	// Empty means chromedp's default lookup.
	ChromePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Engine:              DefaultEngine,
		Timeout:             DefaultTimeout,
		ObserveWindow:       DefaultObserveWindow,
		OutputDir:           DefaultOutputDir,
		BatchSize:           DefaultBatchSize,
		UserAgent:           DefaultUserAgent,
		MaxBodySize:         DefaultMaxBodySize,
		MaxResources:        DefaultMaxResources,
		ResourceConcurrency: DefaultResourceConcurrency,
		TorStartupTimeout:   DefaultTorStartupTimeout,
		SiteConfigs:         &File{Sites: make(map[string]SiteConfig)},
	}
}

// XDGConfigDir returns the XDG config directory for pageaudit.
// On Linux: ~/.config/pageaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found as one of the sentinel errors in errors.go.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Engine != EngineStatic && c.Engine != EngineChrome {
		return ErrUnknownEngine
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ObserveWindow < 0 {
		return ErrInvalidObserveWindow
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxResources < 0 {
		return ErrInvalidMaxResources
	}
	if c.ResourceConcurrency <= 0 {
		return ErrInvalidResourceConcurrency
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxies
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	return nil
}

// UsesProxy reports whether requests leave through a SOCKS5 proxy.
func (c *Config) UsesProxy() bool {
	return c.UseTor || c.ProxyAddress != ""
}
