package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// DefaultMemoryDelay is the wait between the two heap samples.
const DefaultMemoryDelay = 3000 * time.Millisecond

// MemoryStep samples the JavaScript heap twice, letting the page run in between.
type MemoryStep struct {
	page   browser.Page
	delay  time.Duration
	logger *slog.Logger
}

// NewMemoryStep creates the memory check for page.
func NewMemoryStep(page browser.Page, delay time.Duration, logger *slog.Logger) *MemoryStep {
	return &MemoryStep{page: page, delay: delay, logger: logger}
}

// Name returns the step name.
func (s *MemoryStep) Name() string {
	return "memory"
}

// Do fills report.Memory.
func (s *MemoryStep) Do(ctx context.Context, report *model.Report) error {
	section, err := CheckMemory(ctx, s.page, s.delay, s.logger)
	if err != nil {
		return err
	}
	report.Memory = section
	return nil
}

// CheckMemory returns the capability-absent marker when the page has no heap
// probe, or when a sample cannot be taken. Otherwise it samples, waits delay
// through Page.Idle and samples again. Only a failed wait is an error.
func CheckMemory(ctx context.Context, page browser.Page, delay time.Duration, logger *slog.Logger) (model.MemorySection, error) {
	probe, ok := page.Heap()
	if !ok {
		return model.NewMemoryUnavailable(), nil
	}

	initial, err := probe.UsedHeapSize(ctx)
	if err != nil {
		logger.Warn("heap sample failed", "sample", "initial", "error", err)
		return model.NewMemoryUnavailable(), nil
	}

	if err := page.Idle(ctx, delay); err != nil {
		return model.MemorySection{}, fmt.Errorf("waiting between heap samples: %w", err)
	}

	final, err := probe.UsedHeapSize(ctx)
	if err != nil {
		logger.Warn("heap sample failed", "sample", "final", "error", err)
		return model.NewMemoryUnavailable(), nil
	}

	logger.Debug("heap sampled", "initialBytes", initial, "finalBytes", final, "delay", delay)
	return model.NewMemoryUsage(initial, final), nil
}
