package audit

import "errors"

var (
	// ErrNoPage is returned when the Analyzer is created without a page.
	ErrNoPage = errors.New("no page to audit")

	// ErrNoEngine is returned when the batch runner is created without an engine.
	ErrNoEngine = errors.New("no page engine configured")
)
