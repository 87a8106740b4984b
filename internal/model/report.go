package model

// Report is the result of one audit run.
//
// The five sections map one-to-one to the checks of the Analyzer. Each check
// writes only its own section; the error log is the one part that keeps
// growing after the report was generated because the page can still raise
// errors.
type Report struct {
	// URL is the audited page. It is not part of the exported document.
	URL string `json:"-"`

	Performance   PerformanceSection   `json:"performance"`
	Accessibility AccessibilitySection `json:"accessibility"`
	SEO           SEOSection           `json:"seo"`
	Memory        MemorySection        `json:"memory"`
	Errors        *ErrorLog            `json:"errors"`
}

// NewReport creates an empty report for pageURL with every sequence
// initialized, so that an unpopulated section still serializes as [] and
// never as null.
func NewReport(pageURL string) *Report {
	return &Report{
		URL:           pageURL,
		Performance:   NewPerformanceSection(),
		Accessibility: NewAccessibilitySection(),
		SEO:           NewSEOSection(),
		Errors:        NewErrorLog(),
	}
}
