package audit

import (
	"context"
	"math"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// PerformanceStep reads the navigation, paint and resource timeline.
type PerformanceStep struct {
	page browser.Page
}

// NewPerformanceStep creates the performance check for page.
func NewPerformanceStep(page browser.Page) *PerformanceStep {
	return &PerformanceStep{page: page}
}

// Name returns the step name.
func (s *PerformanceStep) Name() string {
	return "performance"
}

// Do fills report.Performance.
func (s *PerformanceStep) Do(_ context.Context, report *model.Report) error {
	report.Performance = CheckPerformance(s.page)
	return nil
}

// CheckPerformance computes the performance section. Load and DOM-ready times
// are relative to the navigation start; without a navigation entry they stay
// unavailable.
func CheckPerformance(page browser.Page) model.PerformanceSection {
	section := model.NewPerformanceSection()

	if nav, ok := page.Navigation(); ok {
		section.LoadTime = model.SomeMillis(roundMillis(nav.LoadEventEnd - nav.StartTime))
		section.DOMReady = model.SomeMillis(roundMillis(nav.DOMContentLoadedEventEnd - nav.StartTime))
	}

	if paints := page.Entries(browser.EntryPaint); len(paints) > 0 {
		section.FirstPaint = model.SomePaintTime(roundMillis(paints[0].StartTime))
	}

	for _, e := range page.Entries(browser.EntryResource) {
		section.Resources.Count++
		if e.TransferSize != nil && *e.TransferSize > 0 {
			section.Resources.TotalBytes += *e.TransferSize
		}
	}
	return section
}

func roundMillis(ms float64) int64 {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0
	}
	return int64(math.Round(ms))
}
