// Package model defines the audit report and its sections.
//
// The report is exported as JSON, so the types carry the camelCase keys of
// the exported document. Values a page may not provide are explicit types
// rather than zero values:
//   - Millis: integer milliseconds or null
//   - PaintTime: integer milliseconds or the "N/A" sentinel
//   - MemorySection: either the capability-absent marker or three samples
//
// The model lives in its own package because the checks (audit), the page
// engines (browser) and the writers (report) all need it.
package model
