// Package log provides the slog loggers used by pageaudit.
//
// Every logger is wrapped in a SecureHandler, which masks the cookies and
// headers injected from the site file, credential-looking values and the
// sensitive query parameters of logged URLs. Sanitization also applies in
// verbose mode.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("navigating", "url", "https://example.com/?token=abc") // token=***REDACTED***
//
// The audit command hands the same logger to the engines, the batch runner and
// the embedded Tor daemon.
package log
