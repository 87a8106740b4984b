package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// defaultBatchConcurrency is used when no positive concurrency is configured.
const defaultBatchConcurrency = 4

// Result is the outcome of auditing one target.
type Result struct {
	Target *url.URL

	// Report is nil when the page could not be loaded.
	Report *model.Report

	Err error
}

// BatchRunner loads and audits several targets concurrently. Every target
// gets its own page, report and reporter.
type BatchRunner struct {
	engine      browser.Engine
	reporterFor func(target *url.URL) Reporter
	loadTimeout time.Duration
	concurrency int
	options     []Option
	logger      *slog.Logger
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithConcurrency sets the number of targets audited at once. Non-positive
// values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchRunner) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLoadTimeout bounds loading each page. The checks that follow are not
// bounded by it.
func WithLoadTimeout(d time.Duration) BatchOption {
	return func(b *BatchRunner) {
		b.loadTimeout = d
	}
}

// WithReporterFactory sets the reporter created for each target.
func WithReporterFactory(fn func(target *url.URL) Reporter) BatchOption {
	return func(b *BatchRunner) {
		b.reporterFor = fn
	}
}

// WithAnalyzerOptions sets options applied to every Analyzer.
func WithAnalyzerOptions(opts ...Option) BatchOption {
	return func(b *BatchRunner) {
		b.options = append(b.options, opts...)
	}
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchRunner) {
		b.logger = logger
	}
}

// NewBatchRunner creates a runner that loads pages with engine.
func NewBatchRunner(engine browser.Engine, opts ...BatchOption) (*BatchRunner, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	b := &BatchRunner{
		engine:      engine,
		concurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Run audits every target and returns the results in the order of targets.
// A failing target does not stop the others; its error is in its Result.
func (b *BatchRunner) Run(ctx context.Context, targets []*url.URL) []Result {
	results := make([]Result, len(targets))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			b.logger.Info("auditing page", "url", target.String(), "index", i+1, "total", len(targets))
			report, err := b.audit(gctx, target)
			results[i] = Result{Target: target, Report: report, Err: err}
			if err != nil {
				b.logger.Warn("audit failed", "url", target.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // failures are reported per target

	b.logger.Info("batch complete", "targets", len(targets), "elapsed", time.Since(start))
	return results
}

// Audit loads one target and runs the Analyzer on it.
func (b *BatchRunner) Audit(ctx context.Context, target *url.URL) (*model.Report, error) {
	return b.audit(ctx, target)
}

func (b *BatchRunner) audit(ctx context.Context, target *url.URL) (*model.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.open(ctx, target)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			b.logger.Debug("closing page failed", "url", target.String(), "error", cerr)
		}
	}()

	opts := append([]Option{WithLogger(b.logger)}, b.options...)
	if b.reporterFor != nil {
		opts = append(opts, WithReporter(b.reporterFor(target)))
	}
	analyzer, err := NewAnalyzer(page, opts...)
	if err != nil {
		return nil, err
	}
	report, err := analyzer.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("auditing %s: %w", target, err)
	}
	return report, nil
}

func (b *BatchRunner) open(ctx context.Context, target *url.URL) (browser.Page, error) {
	loadCtx := ctx
	if b.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, b.loadTimeout)
		defer cancel()
	}
	page, err := b.engine.Open(loadCtx, target)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", target, err)
	}
	return page, nil
}
