package browser

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "https URL keeps its path", raw: "https://example.com/about", want: "https://example.com/about"},
		{name: "empty path becomes root", raw: "http://example.com", want: "http://example.com/"},
		{name: "bare host gets https", raw: "example.com/docs?page=2", want: "https://example.com/docs?page=2"},
		{name: "fragment is dropped", raw: "https://example.com/a#section", want: "https://example.com/a"},
		{name: "scheme is lower-cased", raw: "HTTPS://example.com/", want: "https://example.com/"},
		{name: "surrounding space is ignored", raw: "  https://example.com/  ", want: "https://example.com/"},
		{name: "file URL", raw: "file:///tmp/page.html", want: "file:///tmp/page.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := ParseTarget(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.String() != tt.want {
				t.Errorf("ParseTarget(%q) = %q, want %q", tt.raw, u.String(), tt.want)
			}
		})
	}
}

func TestParseTarget_LocalFiles(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"./site/index.html", "index.html", "/var/www/page.htm"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			u, err := ParseTarget(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Scheme != "file" {
				t.Errorf("scheme = %q, want file", u.Scheme)
			}
			abs, err := filepath.Abs(raw)
			if err != nil {
				t.Fatal(err)
			}
			if u.Path != filepath.ToSlash(abs) {
				t.Errorf("path = %q, want %q", u.Path, filepath.ToSlash(abs))
			}
		})
	}
}

func TestParseTarget_Errors(t *testing.T) {
	t.Parallel()

	t.Run("blank target", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseTarget("   "); !errors.Is(err, ErrEmptyTarget) {
			t.Errorf("expected ErrEmptyTarget, got %v", err)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseTarget("ftp://example.com/file"); !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("expected ErrUnsupportedScheme, got %v", err)
		}
	})

	t.Run("missing host", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseTarget("https://"); err == nil {
			t.Error("expected an error for a URL without host")
		}
	})
}
