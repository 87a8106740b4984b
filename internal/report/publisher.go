package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/pageaudit/internal/model"
)

// Publisher renders a finished report to the diagnostic stream and exports
// it to a file.
type Publisher struct {
	console  Writer
	exporter *FileExporter
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithConsole sets the diagnostic writer. Without one nothing is printed.
func WithConsole(w Writer) PublisherOption {
	return func(p *Publisher) {
		p.console = w
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a Publisher exporting through exporter.
func NewPublisher(exporter *FileExporter, opts ...PublisherOption) *Publisher {
	p := &Publisher{exporter: exporter}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Report prints the diagnostic tables and writes the JSON file.
func (p *Publisher) Report(ctx context.Context, report *model.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.console != nil {
		if _, err := p.console.Write(report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}
	if p.exporter == nil {
		return nil
	}
	dest, err := p.exporter.Export(report)
	if err != nil {
		return err
	}
	p.logger.Info("report exported", "url", report.URL, "path", dest, "type", MIMEType)
	return nil
}
