package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/pageaudit/internal/model"
)

// Step is one check of the audit. Each step writes only its own section of
// the report.
type Step interface {
	// Do runs the check. A missing page capability is not an error: the step
	// records the section's marker value and returns nil.
	Do(ctx context.Context, report *model.Report) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline runs steps in order and stops at the first failure.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step in order. Cancellation is checked between steps;
// the first step error aborts the remaining steps.
func (p *Pipeline) Execute(ctx context.Context, report *model.Report) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("audit cancelled", "step", step.Name(), "url", report.URL, "reason", err)
			return err
		}

		p.logger.Debug("running check", "step", step.Name(), "url", report.URL)
		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("check failed", "step", step.Name(), "url", report.URL, "error", err)
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
