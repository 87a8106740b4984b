package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pageaudit/internal/audit"
	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/config"
	pagelog "github.com/nao1215/pageaudit/internal/log"
	"github.com/nao1215/pageaudit/internal/report"
	"github.com/nao1215/pageaudit/internal/transport"
)

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [url|file]...",
		Short: "Audit one or more web pages",
		Long: `Audit loads each page once and reports:
- Performance: load time, DOM ready, first paint, resource count and size
- Accessibility: images without alt text, skipped heading levels, unnamed ARIA roles
- SEO: title, meta tags, headings, link and image statistics, landmarks
- Memory: JavaScript heap before and after a 3 second wait
- Errors: uncaught runtime errors raised by the page

The report is printed as Markdown tables and written to
website-analysis-report.json in the output directory. With several targets,
every page gets its own subdirectory.

Examples:
  # Audit a site
  pageaudit audit https://example.com

  # Audit a local file with headless Chrome
  pageaudit audit --engine chrome ./public/index.html

  # Keep collecting runtime errors for 10 seconds
  pageaudit audit --observe 10s https://example.com

  # Audit an onion service through an embedded Tor daemon
  pageaudit audit --tor exampleonion.onion

Configuration file (.pageaudit) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      skipResources: ["*.mp4", "/ads/*"]`,
		Args: cobra.ArbitraryArgs,
		RunE: runAuditCmd,
	}

	// Page loading flags
	cmd.Flags().StringP("engine", "e", config.DefaultEngine,
		"Page engine: static or chrome")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Page load timeout")
	cmd.Flags().Duration("observe", config.DefaultObserveWindow,
		"Keep listening for page errors before reporting")
	cmd.Flags().Bool("no-resources", false,
		"Static engine: do not fetch sub-resources")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable for the chrome engine")
	cmd.Flags().StringP("user-agent", "A", "",
		"User-Agent header (default: a pageaudit agent for static, Chrome's own for chrome)")

	// Report flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Report directory")
	cmd.Flags().BoolP("quiet", "q", false,
		"Do not print the diagnostic tables")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent audits")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Site configuration file (default: .pageaudit in current or home directory)")

	// Proxy flags
	cmd.Flags().String("proxy", "",
		"Route requests through the SOCKS5 proxy at host:port")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, getBoolFlag(cmd, "log-json"))
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runAudit(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getBoolFlag retrieves a bool flag from the command or the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Engine, err = flags.GetString("engine"); err != nil {
		return nil, err
	}
	cfg.Engine = strings.ToLower(cfg.Engine)
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ObserveWindow, err = flags.GetDuration("observe"); err != nil {
		return nil, err
	}
	if cfg.SkipResources, err = flags.GetBool("no-resources"); err != nil {
		return nil, err
	}
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	userAgent, err := flags.GetString("user-agent")
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")

	// If the user named a config file it must exist; otherwise a missing
	// file just means no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.Targets = args
	return cfg, nil
}

// setupLogger creates the structured logger. Secrets in attributes are redacted.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return pagelog.NewSecureJSONLogger(w, verbose)
	}
	return pagelog.NewSecureLogger(w, verbose)
}

// runAudit audits every target of cfg. It returns an error when any target failed.
func runAudit(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	targets, err := parseTargets(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting audit",
		"targets", len(targets),
		"engine", cfg.Engine,
		"batchSize", cfg.BatchSize,
		"proxy", cfg.UsesProxy(),
	)

	client, cleanup, err := newClient(ctx, cfg, targets[0].Hostname(), stderr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := newEngine(cfg, client, logger)

	dirs := report.TargetDirs(cfg.OutputDir, targets)
	dirOf := make(map[*url.URL]string, len(targets))
	for i, t := range targets {
		dirOf[t] = dirs[i]
	}

	publisherOpts := []report.PublisherOption{report.WithPublisherLogger(logger)}
	if !cfg.Quiet {
		publisherOpts = append(publisherOpts, report.WithConsole(report.NewMarkdownWriter(stdout)))
	}

	runner, err := audit.NewBatchRunner(engine,
		audit.WithConcurrency(cfg.BatchSize),
		audit.WithLoadTimeout(cfg.Timeout),
		audit.WithBatchLogger(logger),
		audit.WithAnalyzerOptions(audit.WithObserveWindow(cfg.ObserveWindow)),
		audit.WithReporterFactory(func(target *url.URL) audit.Reporter {
			return report.NewPublisher(report.NewFileExporter(dirOf[target]), publisherOpts...)
		}),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	results := runner.Run(ctx, targets)

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		if !cfg.Quiet {
			fmt.Fprintf(stderr, "Report saved: %s\n", filepath.Join(dirs[i], report.DefaultFileName))
		}
	}
	if !cfg.Quiet && len(targets) > 1 {
		fmt.Fprintf(stderr, "Audited %d pages in %s\n", len(targets), time.Since(start).Round(time.Millisecond))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d audits failed: %w", len(errs), len(targets), errors.Join(errs...))
	}
	return nil
}

// parseTargets turns the command line targets into URLs. Onion hosts must be
// valid v3 addresses and need a proxy; without a scheme they default to http.
func parseTargets(cfg *config.Config) ([]*url.URL, error) {
	targets := make([]*url.URL, 0, len(cfg.Targets))
	for _, raw := range cfg.Targets {
		u, err := browser.ParseTarget(raw)
		if err != nil {
			return nil, err
		}

		if transport.IsOnionHost(u.Hostname()) {
			if err := transport.ValidateOnionHost(u.Hostname()); err != nil {
				return nil, fmt.Errorf("%s: %w", raw, err)
			}
			if !cfg.UsesProxy() {
				return nil, fmt.Errorf("%s: %w", raw, transport.ErrOnionNeedsProxy)
			}
			if !strings.Contains(raw, "://") {
				u.Scheme = "http"
			}
		}
		targets = append(targets, u)
	}
	return targets, nil
}

// newClient returns the transport the engines load pages through, and a
// cleanup function that stops an embedded Tor daemon.
func newClient(ctx context.Context, cfg *config.Config, probeHost string, stderr io.Writer, logger *slog.Logger) (*transport.Client, func(), error) {
	opts := []transport.Option{transport.WithUserAgent(cfg.UserAgent)}
	noop := func() {}

	switch {
	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, probeHost, stderr, logger, opts)

	case cfg.ProxyAddress != "":
		client, err := transport.NewClient(cfg.ProxyAddress, cfg.Timeout, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx, probeHost); status != transport.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Err(), cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return client, noop, nil

	default:
		return transport.NewDirectClient(cfg.Timeout, opts...), noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon and returns a client routed through it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, probeHost string, stderr io.Writer, logger *slog.Logger, opts []transport.Option) (*transport.Client, func(), error) {
	if !cfg.Quiet {
		fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
		fmt.Fprintln(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")
	}

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
		transport.WithLogger(logger),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	stop := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	client, err := embeddedTor.NewClient(cfg.Timeout, opts...)
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx, probeHost); status != transport.ProxyStatusOK {
		stop()
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	return client, stop, nil
}

// newEngine returns the page engine selected by cfg.
func newEngine(cfg *config.Config, client *transport.Client, logger *slog.Logger) browser.Engine {
	if cfg.Engine == config.EngineChrome {
		opts := []browser.ChromeOption{
			browser.WithChromePath(cfg.ChromePath),
			browser.WithChromeSiteConfigs(cfg.SiteConfigs),
			browser.WithChromeLogger(logger),
		}
		if cfg.UserAgent != config.DefaultUserAgent {
			opts = append(opts, browser.WithChromeUserAgent(cfg.UserAgent))
		}
		return browser.NewChromeEngine(client, opts...)
	}

	opts := []browser.StaticOption{
		browser.WithSiteConfigs(cfg.SiteConfigs),
		browser.WithMaxBodySize(cfg.MaxBodySize),
		browser.WithMaxResources(cfg.MaxResources),
		browser.WithResourceConcurrency(cfg.ResourceConcurrency),
		browser.WithStaticUserAgent(cfg.UserAgent),
		browser.WithStaticLogger(logger),
	}
	if cfg.SkipResources {
		opts = append(opts, browser.WithoutResources())
	}
	return browser.NewStaticEngine(client, opts...)
}
