package model

// PerformanceSection holds navigation, paint and resource timing.
type PerformanceSection struct {
	// LoadTime is loadEventEnd minus the navigation start.
	LoadTime Millis `json:"loadTime"`

	// DOMReady is domContentLoadedEventEnd minus the navigation start.
	DOMReady Millis `json:"domReady"`

	// FirstPaint is the start time of the first "paint" entry.
	FirstPaint PaintTime `json:"firstPaint"`

	Resources ResourceSummary `json:"resources"`
}

// ResourceSummary aggregates every resource timing entry.
type ResourceSummary struct {
	Count int `json:"count"`

	// TotalBytes sums the transfer sizes; entries without one count as zero.
	TotalBytes int64 `json:"totalBytes"`
}

// NewPerformanceSection returns a section with every metric unavailable.
func NewPerformanceSection() PerformanceSection {
	return PerformanceSection{}
}
