package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/pageaudit/internal/model"
)

// createTestReport creates a report with sample data for testing.
func createTestReport() *model.Report {
	r := model.NewReport("https://example.com/")
	r.Performance.LoadTime = model.SomeMillis(1234)
	r.Performance.DOMReady = model.SomeMillis(456)
	r.Performance.Resources = model.ResourceSummary{Count: 3, TotalBytes: 2048}
	r.Accessibility.Images = append(r.Accessibility.Images, model.ImageIssue{Src: "https://example.com/a.png", Issue: model.IssueMissingAlt})
	r.Accessibility.Headings = append(r.Accessibility.Headings, model.HeadingIssue{Text: "Deep | dive", Issue: model.SkippedHeadingLevel(1, 3)})
	desc := "A shop"
	r.SEO.Title = "Example"
	r.SEO.Meta.Description = &desc
	r.SEO.Headings.H1 = append(r.SEO.Headings.H1, model.HeadingInfo{Text: "Welcome", Visible: true})
	r.SEO.Links = model.LinkStats{Total: 4, External: 1, Broken: 1, Nofollow: 0}
	r.Memory = model.NewMemoryUsage(12<<20, 15<<20)
	r.Errors.Append(model.NewErrorEntry("Uncaught Error: boom", "https://example.com/app.js", 3, 9, "", time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC)))
	return r
}

func TestSectionLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"performance":   "Performance",
		"accessibility": "Accessibility",
		"seo":           "SEO",
		"memory":        "Memory",
		"errors":        "Errors",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := SectionLabel(name); got != want {
				t.Errorf("SectionLabel(%q) = %q, want %q", name, got, want)
			}
		})
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("renders the five labeled groups in order", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if n == 0 {
			t.Error("expected a byte count")
		}

		last := -1
		for _, label := range []string{"## Performance", "## Accessibility", "## SEO", "## Memory", "## Errors"} {
			i := strings.Index(out, label)
			if i < 0 {
				t.Fatalf("missing %q in output:\n%s", label, out)
			}
			if i < last {
				t.Errorf("%q is out of order", label)
			}
			last = i
		}

		for _, want := range []string{"1234 ms", "N/A", "Missing alt text", "Skipped heading level from 1 to 3", "(missing)", "15 MB", "Uncaught Error: boom", "https://example.com/app.js:3:9", "mermaid"} {
			if !strings.Contains(out, want) {
				t.Errorf("output should contain %q", want)
			}
		}
	})

	t.Run("empty sections render placeholders", func(t *testing.T) {
		t.Parallel()

		r := model.NewReport("https://example.com/")
		r.Memory = model.NewMemoryUnavailable()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"No accessibility issues found.", "Memory API not available", "No runtime errors captured.", "unavailable"} {
			if !strings.Contains(out, want) {
				t.Errorf("output should contain %q", want)
			}
		}
		if strings.Contains(out, "mermaid") {
			t.Error("no chart without issues")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("pretty print uses two spaces", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "{\n  \"performance\": {\n    \"loadTime\": 1234,") {
			t.Errorf("unexpected indentation:\n%s", buf.String())
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(model.NewReport("https://example.com/")); err != nil {
			t.Fatal(err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("expected a single line, got %q", buf.String())
		}
		for _, key := range []string{`"images":[]`, `"contrast":[]`, `"errors":[]`, `"h1":[]`} {
			if !strings.Contains(buf.String(), key) {
				t.Errorf("empty lists must serialize as []: missing %s", key)
			}
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*model.Report) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to every writer", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		n, err := NewMultiWriter(NewJSONWriter(&a), NewJSONWriter(&b)).Write(createTestReport())
		if err != nil {
			t.Fatal(err)
		}
		if a.Len() == 0 || a.String() != b.String() || n != a.Len()+b.Len() {
			t.Errorf("unexpected output: %d bytes, %q vs %q", n, a.String(), b.String())
		}
	})

	t.Run("stops on the first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		if _, err := NewMultiWriter(failingWriter{}, NewJSONWriter(&after)).Write(createTestReport()); err == nil {
			t.Error("expected an error")
		}
		if after.Len() != 0 {
			t.Error("writers after a failure must not run")
		}
	})
}

func TestFileExporter(t *testing.T) {
	t.Parallel()

	t.Run("writes the indented report", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "out", "nested")
		report := createTestReport()

		dest, err := NewFileExporter(dir).Export(report)
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if filepath.Base(dest) != "website-analysis-report.json" {
			t.Errorf("file name = %q", filepath.Base(dest))
		}

		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatal(err)
		}
		var want bytes.Buffer
		if _, err := NewJSONWriter(&want, WithIndent("", "  ")).Write(report); err != nil {
			t.Fatal(err)
		}
		if string(data) != want.String() {
			t.Errorf("file content differs from the indented report")
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("exported file is not JSON: %v", err)
		}
		for _, key := range []string{"performance", "accessibility", "seo", "memory", "errors"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("missing section %q", key)
			}
		}

		info, err := os.Stat(dest)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("replaces an existing report", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		exporter := NewFileExporter(dir)
		if _, err := exporter.Export(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if _, err := exporter.Export(model.NewReport("https://example.com/")); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(exporter.Path())
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "boom") {
			t.Error("old content should be replaced")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("temporary files left behind: %v", entries)
		}
	})
}

func TestTargetDirs(t *testing.T) {
	t.Parallel()

	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	t.Run("single target writes into the base directory", func(t *testing.T) {
		t.Parallel()

		dirs := TargetDirs("out", []*url.URL{parse("https://example.com/")})
		if dirs[0] != "out" {
			t.Errorf("dir = %q", dirs[0])
		}
	})

	t.Run("several targets get unique subdirectories", func(t *testing.T) {
		t.Parallel()

		dirs := TargetDirs("out", []*url.URL{
			parse("https://example.com/"),
			parse("https://example.com:8080/docs/intro"),
			parse("file:///tmp/site/index.html"),
			parse("https://EXAMPLE.com"),
		})
		want := []string{
			filepath.Join("out", "example.com"),
			filepath.Join("out", "example.com_8080-docs-intro"),
			filepath.Join("out", "index"),
			filepath.Join("out", "example.com-2"),
		}
		for i := range want {
			if dirs[i] != want[i] {
				t.Errorf("dirs[%d] = %q, want %q", i, dirs[i], want[i])
			}
		}
	})

	t.Run("suffixed names never collide with a later slug", func(t *testing.T) {
		t.Parallel()

		dirs := TargetDirs("out", []*url.URL{
			parse("https://a.com/x"),
			parse("https://a.com/x"),
			parse("https://a.com/x-2"),
			parse("https://a.com/x-2-2"),
		})
		want := []string{
			filepath.Join("out", "a.com-x"),
			filepath.Join("out", "a.com-x-2"),
			filepath.Join("out", "a.com-x-2-2"),
			filepath.Join("out", "a.com-x-2-2-2"),
		}
		seen := make(map[string]bool)
		for i := range want {
			if dirs[i] != want[i] {
				t.Errorf("dirs[%d] = %q, want %q", i, dirs[i], want[i])
			}
			if seen[dirs[i]] {
				t.Errorf("directory %q issued twice", dirs[i])
			}
			seen[dirs[i]] = true
		}
	})
}

func TestPublisher(t *testing.T) {
	t.Parallel()

	t.Run("prints and exports", func(t *testing.T) {
		t.Parallel()

		var console bytes.Buffer
		dir := t.TempDir()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		p := NewPublisher(NewFileExporter(dir), WithConsole(NewMarkdownWriter(&console)), WithPublisherLogger(logger))

		if err := p.Report(context.Background(), createTestReport()); err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if !strings.Contains(console.String(), "## Performance") {
			t.Error("diagnostic tables were not printed")
		}
		if _, err := os.Stat(filepath.Join(dir, DefaultFileName)); err != nil {
			t.Errorf("report file missing: %v", err)
		}
	})

	t.Run("quiet publisher only exports", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		p := NewPublisher(NewFileExporter(dir), WithPublisherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err := p.Report(context.Background(), createTestReport()); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, DefaultFileName)); err != nil {
			t.Errorf("report file missing: %v", err)
		}
	})

	t.Run("console errors are returned", func(t *testing.T) {
		t.Parallel()

		p := NewPublisher(NewFileExporter(t.TempDir()), WithConsole(failingWriter{}))
		if err := p.Report(context.Background(), createTestReport()); err == nil {
			t.Error("expected an error")
		}
	})
}
