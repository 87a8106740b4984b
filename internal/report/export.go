package report

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/pageaudit/internal/model"
)

const (
	// DefaultFileName is the name of the exported report.
	DefaultFileName = "website-analysis-report.json"

	// MIMEType is the media type of the exported report.
	MIMEType = "application/json"

	dirPerm  = 0o750
	filePerm = 0o600
)

// FileExporter writes the report as indented JSON to DefaultFileName in a directory.
type FileExporter struct {
	dir string
}

// NewFileExporter creates an exporter writing into dir.
func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

// Path returns the file the report is written to.
func (e *FileExporter) Path() string {
	return filepath.Join(e.dir, DefaultFileName)
}

// Export writes report and returns the file path. The directory is created
// when missing; an existing report is replaced.
func (e *FileExporter) Export(report *model.Report) (string, error) {
	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.MkdirAll(e.dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	dest := e.Path()
	tmp, err := os.CreateTemp(e.dir, "."+DefaultFileName+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close() //nolint:errcheck,gosec // chmod error takes precedence
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return dest, nil
}

// TargetDirs returns the report directory of every target. A single target
// writes into base; several targets each get a subdirectory named after
// their host and path. Names are made unique with a numeric suffix.
func TargetDirs(base string, targets []*url.URL) []string {
	dirs := make([]string, len(targets))
	if len(targets) == 1 {
		dirs[0] = base
		return dirs
	}

	issued := make(map[string]bool, len(targets))
	for i, t := range targets {
		slug := Slug(t)
		name := slug
		for n := 2; issued[name]; n++ {
			name = slug + "-" + strconv.Itoa(n)
		}
		issued[name] = true
		dirs[i] = filepath.Join(base, name)
	}
	return dirs
}

// Slug turns a target into a directory name, e.g.
// "https://example.com:8080/docs/intro" becomes "example.com_8080-docs-intro"
// and "file:///tmp/site/index.html" becomes "index".
func Slug(u *url.URL) string {
	var raw string
	if u.Scheme == "file" {
		base := path.Base(u.Path)
		raw = strings.TrimSuffix(base, path.Ext(base))
	} else {
		raw = strings.ReplaceAll(u.Host, ":", "_") + strings.TrimSuffix(u.Path, "/")
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-.")
	if slug == "" {
		return "page"
	}
	return slug
}
