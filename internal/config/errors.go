package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no URL or file to audit was given.
	ErrNoTarget = errors.New("no target specified: provide a URL or a local HTML file")

	// ErrUnknownEngine is returned when --engine is neither static nor chrome.
	ErrUnknownEngine = errors.New("unknown engine: must be \"static\" or \"chrome\"")

	// ErrInvalidTimeout is returned when the page load timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidObserveWindow is returned when the observe window is negative.
	ErrInvalidObserveWindow = errors.New("invalid observe window: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxResources is returned when the resource cap is negative.
	ErrInvalidMaxResources = errors.New("invalid max resources: must be non-negative")

	// ErrInvalidResourceConcurrency is returned when the resource fetch
	// concurrency is not positive.
	ErrInvalidResourceConcurrency = errors.New("invalid resource concurrency: must be positive")

	// ErrConflictingProxies is returned when both --tor and --proxy are given.
	ErrConflictingProxies = errors.New("conflicting proxies: --tor and --proxy cannot be used together")

	// ErrNoOutputDir is returned when the report directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")
)
