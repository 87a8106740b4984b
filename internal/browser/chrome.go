package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/nao1215/pageaudit/internal/config"
	"github.com/nao1215/pageaudit/internal/transport"
)

const loadPollInterval = 50 * time.Millisecond

// ChromeEngine drives a headless Chrome through the DevTools protocol. Every
// Open starts its own browser process so that pages never share a heap.
type ChromeEngine struct {
	client    *transport.Client
	sites     *config.File
	execPath  string
	userAgent string
	logger    *slog.Logger
}

// ChromeOption configures a ChromeEngine.
type ChromeOption func(*ChromeEngine)

// WithChromePath sets the Chrome executable.
func WithChromePath(path string) ChromeOption {
	return func(e *ChromeEngine) {
		e.execPath = path
	}
}

// WithChromeSiteConfigs sets the per-site cookies and headers.
func WithChromeSiteConfigs(f *config.File) ChromeOption {
	return func(e *ChromeEngine) {
		if f != nil {
			e.sites = f
		}
	}
}

// WithChromeUserAgent overrides Chrome's user agent.
func WithChromeUserAgent(ua string) ChromeOption {
	return func(e *ChromeEngine) {
		e.userAgent = ua
	}
}

// WithChromeLogger sets the logger.
func WithChromeLogger(logger *slog.Logger) ChromeOption {
	return func(e *ChromeEngine) {
		e.logger = logger
	}
}

// NewChromeEngine returns an engine that routes Chrome through client's proxy, if any.
func NewChromeEngine(client *transport.Client, opts ...ChromeOption) *ChromeEngine {
	e := &ChromeEngine{
		client: client,
		sites:  &config.File{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open starts Chrome, navigates to target and waits for the load event to end.
func (e *ChromeEngine) Open(ctx context.Context, target *url.URL) (Page, error) {
	site := e.sites.GetSiteConfig(target.Hostname())

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("enable-precise-memory-info", true))
	if proxyURL := e.client.ProxyURL(); proxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(proxyURL))
	}
	if e.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.execPath))
	}
	ua := e.userAgent
	if site.UserAgent != "" {
		ua = site.UserAgent
	}
	if ua != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(ua))
	}

	// The browser outlives the Open call, so it hangs off a background context.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	p := &chromePage{
		ctx:    tabCtx,
		logger: e.logger.With("url", target.String()),
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}
	chromedp.ListenTarget(tabCtx, p.listen)

	actions := []chromedp.Action{runtime.Enable(), network.Enable()}
	if headers := requestHeaders(site); len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions, chromedp.Navigate(target.String()))

	if err := p.run(ctx, actions...); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	if err := p.waitForLoad(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	if err := p.snapshot(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to inspect %s: %w", target, err)
	}
	return p, nil
}

func requestHeaders(site config.SiteConfig) network.Headers {
	headers := network.Headers{}
	for k, v := range site.Headers {
		headers[k] = v
	}
	if site.Cookie != "" {
		headers["Cookie"] = site.Cookie
	}
	return headers
}

// chromePage is a page open in a Chrome tab. The DOM, the timeline and the
// computed styles are captured once, right after the load event.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	url       *url.URL
	doc       *goquery.Document
	nav       NavigationTiming
	hasNav    bool
	paint     []Entry
	resources []Entry
	styles    map[*html.Node]Style
	fallback  *cascade
	hasHeap   bool

	mu        sync.Mutex
	listeners []func(ErrorEvent)
	closed    bool
}

// run executes actions on the tab, bounded by ctx as well as the tab's own lifetime.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) evaluate(ctx context.Context, expr string, res any) error {
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

func (p *chromePage) waitForLoad(ctx context.Context) error {
	const expr = `(() => {
		const nav = performance.getEntriesByType('navigation')[0];
		return document.readyState === 'complete' && (!nav || nav.loadEventEnd > 0);
	})()`
	for {
		var done bool
		if err := p.evaluate(ctx, expr, &done); err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loadPollInterval):
		}
	}
}

type jsEntry struct {
	Name          string  `json:"name"`
	EntryType     string  `json:"entryType"`
	StartTime     float64 `json:"startTime"`
	Duration      float64 `json:"duration"`
	InitiatorType string  `json:"initiatorType"`
	TransferSize  *int64  `json:"transferSize"`
}

func (e jsEntry) entry() Entry {
	return Entry{
		Name:          e.Name,
		EntryType:     EntryType(e.EntryType),
		StartTime:     e.StartTime,
		Duration:      e.Duration,
		InitiatorType: e.InitiatorType,
		TransferSize:  e.TransferSize,
	}
}

type jsSnapshot struct {
	URL        string `json:"url"`
	HTML       string `json:"html"`
	Navigation *struct {
		StartTime                float64 `json:"startTime"`
		ResponseStart            float64 `json:"responseStart"`
		ResponseEnd              float64 `json:"responseEnd"`
		DOMContentLoadedEventEnd float64 `json:"domContentLoadedEventEnd"`
		LoadEventEnd             float64 `json:"loadEventEnd"`
	} `json:"navigation"`
	Paint     []jsEntry   `json:"paint"`
	Resources []jsEntry   `json:"resources"`
	Styles    [][2]string `json:"styles"`
	Heap      bool        `json:"heap"`
}

const snapshotScript = `(() => {
	const entry = e => ({
		name: e.name,
		entryType: e.entryType,
		startTime: e.startTime,
		duration: e.duration,
		initiatorType: e.initiatorType || '',
		transferSize: typeof e.transferSize === 'number' ? e.transferSize : null,
	});
	const nav = performance.getEntriesByType('navigation')[0];
	return {
		url: location.href,
		html: '<!DOCTYPE html>' + document.documentElement.outerHTML,
		navigation: nav ? {
			startTime: nav.startTime,
			responseStart: nav.responseStart,
			responseEnd: nav.responseEnd,
			domContentLoadedEventEnd: nav.domContentLoadedEventEnd,
			loadEventEnd: nav.loadEventEnd,
		} : null,
		paint: performance.getEntriesByType('paint').map(entry),
		resources: performance.getEntriesByType('resource').map(entry),
		styles: Array.from(document.querySelectorAll('*'), el => {
			const cs = getComputedStyle(el);
			return [cs.display, cs.visibility];
		}),
		heap: !!(performance.memory && typeof performance.memory.usedJSHeapSize === 'number'),
	};
})()`

func (p *chromePage) snapshot(ctx context.Context) error {
	var snap jsSnapshot
	if err := p.evaluate(ctx, snapshotScript, &snap); err != nil {
		return err
	}

	u, err := url.Parse(snap.URL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return err
	}
	doc.Url = u
	p.url = u
	p.doc = doc

	if n := snap.Navigation; n != nil {
		p.hasNav = true
		p.nav = NavigationTiming{
			StartTime:                n.StartTime,
			ResponseStart:            n.ResponseStart,
			ResponseEnd:              n.ResponseEnd,
			DOMContentLoadedEventEnd: n.DOMContentLoadedEventEnd,
			LoadEventEnd:             n.LoadEventEnd,
		}
	}
	for _, e := range snap.Paint {
		p.paint = append(p.paint, e.entry())
	}
	for _, e := range snap.Resources {
		p.resources = append(p.resources, e.entry())
	}
	p.hasHeap = snap.Heap

	// Re-parsing the serialized DOM yields the elements in the same order as
	// querySelectorAll('*'). When the counts disagree the styles cannot be
	// matched and the inline stylesheets are used instead.
	nodes := doc.Find("*").Nodes
	if len(nodes) == len(snap.Styles) {
		p.styles = make(map[*html.Node]Style, len(nodes))
		for i, n := range nodes {
			p.styles[n] = Style{Display: snap.Styles[i][0], Visibility: snap.Styles[i][1]}
		}
	} else {
		p.logger.Debug("computed styles do not line up with the DOM",
			"elements", len(nodes), "styles", len(snap.Styles))
		p.fallback = newCascade(stylesheets(doc, nil))
	}
	return nil
}

// listen receives DevTools events. It runs on a chromedp goroutine and must not block.
func (p *chromePage) listen(ev any) {
	thrown, ok := ev.(*runtime.EventExceptionThrown)
	if !ok || thrown.ExceptionDetails == nil {
		return
	}
	p.emit(chromeErrorEvent(thrown.ExceptionDetails))
}

func chromeErrorEvent(d *runtime.ExceptionDetails) ErrorEvent {
	ev := ErrorEvent{
		Message:  d.Text,
		Filename: d.URL,
		// DevTools positions are zero based.
		Line:   int(d.LineNumber) + 1,
		Column: int(d.ColumnNumber) + 1,
		Time:   time.Now(),
	}
	if d.Exception != nil && d.Exception.Description != "" {
		ev.Stack = d.Exception.Description
		first, _, _ := strings.Cut(d.Exception.Description, "\n")
		ev.Message = strings.TrimSpace(d.Text + " " + first)
	}
	if ev.Filename == "" && d.StackTrace != nil && len(d.StackTrace.CallFrames) > 0 {
		ev.Filename = d.StackTrace.CallFrames[0].URL
	}
	return ev
}

func (p *chromePage) emit(ev ErrorEvent) {
	p.mu.Lock()
	listeners := append([]func(ErrorEvent){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (p *chromePage) URL() *url.URL               { return p.url }
func (p *chromePage) Document() *goquery.Document { return p.doc }

func (p *chromePage) Navigation() (NavigationTiming, bool) {
	return p.nav, p.hasNav
}

func (p *chromePage) Entries(t EntryType) []Entry {
	switch t {
	case EntryPaint:
		return append([]Entry(nil), p.paint...)
	case EntryResource:
		return append([]Entry(nil), p.resources...)
	default:
		return nil
	}
}

func (p *chromePage) Style(n *html.Node) Style {
	if p.styles != nil {
		if s, ok := p.styles[n]; ok {
			return s
		}
		return Style{Display: "none", Visibility: "visible"}
	}
	return p.fallback.Style(n)
}

func (p *chromePage) Heap() (HeapProbe, bool) {
	if !p.hasHeap {
		return nil, false
	}
	return chromeHeap{page: p}, true
}

func (p *chromePage) OnError(fn func(ErrorEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *chromePage) Idle(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPageClosed
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPageClosed
	case <-t.C:
		return nil
	}
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// chromeHeap reads performance.memory.usedJSHeapSize.
type chromeHeap struct {
	page *chromePage
}

func (h chromeHeap) UsedHeapSize(ctx context.Context) (int64, error) {
	var used float64 = -1
	err := h.page.evaluate(ctx, `performance.memory ? performance.memory.usedJSHeapSize : -1`, &used)
	if err != nil {
		return 0, err
	}
	if used < 0 {
		return 0, ErrHeapUnavailable
	}
	return int64(used), nil
}
