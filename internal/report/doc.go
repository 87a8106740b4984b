// Package report renders and exports audit reports.
//
// MarkdownWriter prints the five sections (Performance, Accessibility, SEO,
// Memory, Errors) as Markdown tables built with nao1215/markdown. JSONWriter
// encodes the report; FileExporter writes it with two-space indentation to
// website-analysis-report.json. Publisher combines both and is what the
// Analyzer's report step calls.
package report
