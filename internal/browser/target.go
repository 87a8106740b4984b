package browser

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ParseTarget turns a command line target into an absolute URL.
//
// Accepted forms:
//   - http:// and https:// URLs
//   - file:// URLs
//   - bare hosts such as "example.com/about" (https is assumed)
//   - local paths to an HTML file ("./index.html", "/tmp/page.html")
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyTarget
	}

	if isLocalPath(raw) {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", raw, err)
		}
		return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid target %q: missing host", raw)
		}
		if u.Path == "" {
			u.Path = "/"
		}
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("invalid target %q: missing path", raw)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	u.Fragment = ""
	return u, nil
}

func isLocalPath(raw string) bool {
	if strings.Contains(raw, "://") {
		return false
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(raw))
	return (ext == ".html" || ext == ".htm") && !strings.Contains(raw, "/")
}
