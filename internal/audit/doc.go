// Package audit runs the checks of a page audit and assembles the report.
//
// An Analyzer executes a Pipeline of six steps against one browser.Page:
//
//  1. performance: navigation, first paint and resource timing
//  2. accessibility: missing alt text, skipped heading levels, unnamed roles
//  3. seo: title, meta tags, headings, links, images and landmarks
//  4. memory: two heap samples around a 3 second wait
//  5. errors: registers the uncaught error listener
//  6. report: hands the report to a Reporter
//
// A page that lacks a capability (no heap probe, no paint timing) yields the
// section's marker value instead of an error. Any other step failure stops
// the pipeline.
//
// BatchRunner loads several targets with a browser.Engine and audits them
// concurrently, bounded by errgroup.SetLimit.
package audit
