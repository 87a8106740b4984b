package report

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/pageaudit/internal/model"
)

// Section names in the order they are rendered.
var sectionNames = []string{"performance", "accessibility", "seo", "memory", "errors"}

// acronyms are section names rendered in upper case.
var acronyms = map[string]bool{"seo": true}

// SectionLabel returns the heading of a report section, e.g. "Performance" or "SEO".
func SectionLabel(name string) string {
	if acronyms[name] {
		return strings.ToUpper(name)
	}
	return cases.Title(language.English).String(name)
}

// MarkdownWriter renders the five report sections as Markdown tables. It is
// the diagnostic view printed to the terminal.
type MarkdownWriter struct {
	baseWriter

	// mu keeps reports of concurrent audits from interleaving.
	mu sync.Mutex
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write renders report.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	md := markdown.NewMarkdown(w.output)
	md.H1("Website Analysis Report")
	md.PlainText("")
	if report.URL != "" {
		md.PlainTextf("Page: `%s`", report.URL)
		md.PlainText("")
	}

	for _, name := range sectionNames {
		md.H2(SectionLabel(name))
		md.PlainText("")
		switch name {
		case "performance":
			writePerformance(md, report.Performance)
		case "accessibility":
			writeAccessibility(md, report.Accessibility)
		case "seo":
			writeSEO(md, report.SEO)
		case "memory":
			writeMemory(md, report.Memory)
		case "errors":
			writeErrors(md, report.Errors)
		}
	}

	return len(md.String()), md.Build()
}

func writePerformance(md *markdown.Markdown, s model.PerformanceSection) {
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Load Time", s.LoadTime.String()},
			{"DOM Ready", s.DOMReady.String()},
			{"First Paint", s.FirstPaint.String()},
			{"Resources", strconv.Itoa(s.Resources.Count)},
			{"Transfer Size", strconv.FormatInt(s.Resources.TotalBytes, 10) + " bytes"},
		},
	})
	md.PlainText("")
}

func writeAccessibility(md *markdown.Markdown, s model.AccessibilitySection) {
	if s.IssueCount() == 0 {
		md.Tip("No accessibility issues found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, s.IssueCount())
	for _, i := range s.Images {
		rows = append(rows, []string{"Image", cell(i.Src, 60), i.Issue})
	}
	for _, h := range s.Headings {
		rows = append(rows, []string{"Heading", cell(h.Text, 60), h.Issue})
	}
	for _, c := range s.Contrast {
		rows = append(rows, []string{"Contrast", cell(c.Element, 60), c.Issue})
	}
	for _, a := range s.ARIA {
		rows = append(rows, []string{"ARIA", cell("<"+a.Element+" role=\""+a.Role+"\">", 60), a.Issue})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Element", "Issue"},
		Rows:   rows,
	})
	md.PlainText("")
	writeIssueChart(md, s)
}

// writeIssueChart adds a pie chart of the issue kinds when more than one kind occurs.
func writeIssueChart(md *markdown.Markdown, s model.AccessibilitySection) {
	counts := []struct {
		label string
		n     int
	}{
		{"Images", len(s.Images)},
		{"Headings", len(s.Headings)},
		{"Contrast", len(s.Contrast)},
		{"ARIA", len(s.ARIA)},
	}
	kinds := 0
	for _, c := range counts {
		if c.n > 0 {
			kinds++
		}
	}
	if kinds < 2 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Accessibility Issues"),
		piechart.WithShowData(true),
	)
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeSEO(md *markdown.Markdown, s model.SEOSection) {
	title := s.Title
	if title == "" {
		title = "(empty)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Signal", "Value"},
		Rows: [][]string{
			{"Title", cell(title, 70)},
			{"Meta Description", metaCell(s.Meta.Description)},
			{"Meta Keywords", metaCell(s.Meta.Keywords)},
			{"Meta Viewport", metaCell(s.Meta.Viewport)},
			{"Meta Robots", metaCell(s.Meta.Robots)},
			{"H1", headingCell(s.Headings.H1)},
			{"H2", headingCell(s.Headings.H2)},
			{"Links", "total " + strconv.Itoa(s.Links.Total) +
				", external " + strconv.Itoa(s.Links.External) +
				", broken " + strconv.Itoa(s.Links.Broken) +
				", nofollow " + strconv.Itoa(s.Links.Nofollow)},
			{"Images", "total " + strconv.Itoa(s.Images.Total) +
				", with alt " + strconv.Itoa(s.Images.WithAlt) +
				", without alt " + strconv.Itoa(s.Images.WithoutAlt) +
				", lazy " + strconv.Itoa(s.Images.LazyLoaded)},
			{"Landmarks", landmarks(s.Structure)},
			{"Articles", strconv.Itoa(s.Structure.ArticleCount)},
		},
	})
	md.PlainText("")
}

func metaCell(v *string) string {
	if v == nil {
		return "(missing)"
	}
	if *v == "" {
		return "(empty)"
	}
	return cell(*v, 70)
}

func headingCell(hs []model.HeadingInfo) string {
	if len(hs) == 0 {
		return "(none)"
	}
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = h.Text
		if !h.Visible {
			parts[i] += " (hidden)"
		}
	}
	return cell(strings.Join(parts, "; "), 70)
}

func landmarks(s model.StructureStats) string {
	var present []string
	if s.HasMain {
		present = append(present, "main")
	}
	if s.HasNav {
		present = append(present, "nav")
	}
	if s.HasFooter {
		present = append(present, "footer")
	}
	if len(present) == 0 {
		return "(none)"
	}
	return strings.Join(present, ", ")
}

func writeMemory(md *markdown.Markdown, s model.MemorySection) {
	if !s.Available() {
		md.Note(s.Error)
		md.PlainText("")
		return
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Initial", s.Initial},
			{"Final", s.Final},
			{"Difference", s.Difference},
		},
	})
	md.PlainText("")
}

func writeErrors(md *markdown.Markdown, log *model.ErrorLog) {
	var entries []model.ErrorEntry
	if log != nil {
		entries = log.Entries()
	}
	if len(entries) == 0 {
		md.Tip("No runtime errors captured.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{cell(e.Message, 60), cell(e.Location, 60), e.Timestamp}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Message", "Location", "Timestamp"},
		Rows:   rows,
	})
	md.PlainText("")
}

// cell flattens s into a single table cell of at most maxLen runes.
func cell(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	return truncateString(s, maxLen)
}

// truncateString truncates s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
