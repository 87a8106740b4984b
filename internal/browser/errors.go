package browser

import "errors"

// Page loading errors.
var (
	// ErrEmptyTarget is returned for a blank target.
	ErrEmptyTarget = errors.New("target is empty")

	// ErrUnsupportedScheme is returned for targets other than http, https and file.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrHTTPStatus is returned when the document responds with a 4xx or 5xx status.
	ErrHTTPStatus = errors.New("document returned an error status")

	// ErrNotHTML is returned when the document is not an HTML document.
	ErrNotHTML = errors.New("document is not HTML")

	// ErrBodyTooLarge is returned when the document exceeds the body size limit.
	ErrBodyTooLarge = errors.New("document exceeds the maximum body size")

	// ErrHeapUnavailable is returned by a heap probe whose page lost the capability.
	ErrHeapUnavailable = errors.New("heap size is not available")

	// ErrPageClosed is returned by operations on a closed page.
	ErrPageClosed = errors.New("page is closed")
)
