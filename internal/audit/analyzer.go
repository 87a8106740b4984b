package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// Reporter publishes a finished report.
type Reporter interface {
	Report(ctx context.Context, report *model.Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, report *model.Report) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, report *model.Report) error {
	return f(ctx, report)
}

// ReportStep hands the report to a Reporter.
type ReportStep struct {
	reporter Reporter
}

// NewReportStep creates the report generation step.
func NewReportStep(reporter Reporter) *ReportStep {
	return &ReportStep{reporter: reporter}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do publishes report.
func (s *ReportStep) Do(ctx context.Context, report *model.Report) error {
	return s.reporter.Report(ctx, report)
}

// Analyzer audits one loaded page.
type Analyzer struct {
	page        browser.Page
	reporter    Reporter
	memoryDelay time.Duration
	observe     time.Duration
	logger      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithReporter sets where the finished report goes. Without one the report
// is only returned.
func WithReporter(r Reporter) Option {
	return func(a *Analyzer) {
		a.reporter = r
	}
}

// WithMemoryDelay overrides the wait between heap samples.
func WithMemoryDelay(d time.Duration) Option {
	return func(a *Analyzer) {
		a.memoryDelay = d
	}
}

// WithObserveWindow keeps the page running for d after the error monitor is registered.
func WithObserveWindow(d time.Duration) Option {
	return func(a *Analyzer) {
		a.observe = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an Analyzer for page.
func NewAnalyzer(page browser.Page, opts ...Option) (*Analyzer, error) {
	if page == nil {
		return nil, ErrNoPage
	}
	a := &Analyzer{
		page:        page,
		memoryDelay: DefaultMemoryDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Pipeline returns the checks in the order they run:
// performance, accessibility, seo, memory, errors and report.
func (a *Analyzer) Pipeline() *Pipeline {
	p := NewPipeline(WithPipelineLogger(a.logger))
	p.AddSteps(
		NewPerformanceStep(a.page),
		NewAccessibilityStep(a.page),
		NewSEOStep(a.page),
		NewMemoryStep(a.page, a.memoryDelay, a.logger),
		NewMonitorStep(a.page, a.observe, a.logger),
	)
	if a.reporter != nil {
		p.AddStep(NewReportStep(a.reporter))
	}
	return p
}

// Run audits the page. The returned report is non-nil even on error and
// holds the sections completed before the failing step.
func (a *Analyzer) Run(ctx context.Context) (*model.Report, error) {
	report := model.NewReport(a.page.URL().String())
	start := time.Now()
	if err := a.Pipeline().Execute(ctx, report); err != nil {
		return report, err
	}
	a.logger.Info("audit complete",
		"url", report.URL,
		"elapsed", time.Since(start),
		"accessibilityIssues", report.Accessibility.IssueCount(),
		"errors", report.Errors.Len())
	return report, nil
}
