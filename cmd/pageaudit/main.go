// Package main provides the entry point for the pageaudit CLI.
//
// pageaudit loads a web page once and reports its load performance,
// accessibility violations, SEO signals, JavaScript heap growth and uncaught
// runtime errors. The report is printed as Markdown tables and exported to
// website-analysis-report.json.
//
// Usage:
//
//	pageaudit audit https://example.com
//	pageaudit audit --engine chrome ./index.html
//
// See --help for all available options.
package main

// main is the entry point for pageaudit.
func main() {
	Execute()
}
