package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// MonitorStep registers the error listener. With a non-zero observe window
// it keeps the page running afterwards so late errors are captured before
// the report is generated.
type MonitorStep struct {
	page    browser.Page
	observe time.Duration
	logger  *slog.Logger
}

// NewMonitorStep creates the error monitoring setup for page.
func NewMonitorStep(page browser.Page, observe time.Duration, logger *slog.Logger) *MonitorStep {
	return &MonitorStep{page: page, observe: observe, logger: logger}
}

// Name returns the step name.
func (s *MonitorStep) Name() string {
	return "errors"
}

// Do registers the listener on report.Errors and waits out the observe window.
func (s *MonitorStep) Do(ctx context.Context, report *model.Report) error {
	MonitorErrors(s.page, report.Errors, s.logger)
	if s.observe <= 0 {
		return nil
	}
	return s.page.Idle(ctx, s.observe)
}

// MonitorErrors appends every uncaught page error raised from now on to log.
// The listener stays registered for the life of the page.
func MonitorErrors(page browser.Page, log *model.ErrorLog, logger *slog.Logger) {
	page.OnError(func(ev browser.ErrorEvent) {
		at := ev.Time
		if at.IsZero() {
			at = time.Now()
		}
		log.Append(model.NewErrorEntry(ev.Message, ev.Filename, ev.Line, ev.Column, ev.Stack, at))
		logger.Debug("page error captured", "message", ev.Message, "source", ev.Filename)
	})
}
