package browser

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/pageaudit/internal/config"
	"github.com/nao1215/pageaudit/internal/transport"
)

// StaticEngine loads pages without a browser. It fetches the document and
// its sub-resources over HTTP (or from disk), runs classic scripts in a goja
// VM and derives computed style from the page's own stylesheets.
//
// The static engine records no paint entries and has no heap introspection.
type StaticEngine struct {
	client              *transport.Client
	sites               *config.File
	userAgent           string
	maxBodySize         int64
	maxResources        int
	resourceConcurrency int
	skipResources       bool
	scripts             bool
	logger              *slog.Logger
}

// StaticOption configures a StaticEngine.
type StaticOption func(*StaticEngine)

// WithSiteConfigs sets the per-site cookies, headers and skip patterns.
func WithSiteConfigs(f *config.File) StaticOption {
	return func(e *StaticEngine) {
		if f != nil {
			e.sites = f
		}
	}
}

// WithMaxBodySize limits the size of the document and of each sub-resource.
// Zero keeps the default limit.
func WithMaxBodySize(n int64) StaticOption {
	return func(e *StaticEngine) {
		if n > 0 {
			e.maxBodySize = n
		}
	}
}

// WithMaxResources limits the number of sub-resources fetched per page.
func WithMaxResources(n int) StaticOption {
	return func(e *StaticEngine) {
		e.maxResources = n
	}
}

// WithResourceConcurrency sets how many sub-resources are fetched at once.
func WithResourceConcurrency(n int) StaticOption {
	return func(e *StaticEngine) {
		e.resourceConcurrency = n
	}
}

// WithoutResources disables sub-resource loading. External scripts and
// stylesheets are then neither run nor applied.
func WithoutResources() StaticOption {
	return func(e *StaticEngine) {
		e.skipResources = true
	}
}

// WithoutScripts disables script execution.
func WithoutScripts() StaticOption {
	return func(e *StaticEngine) {
		e.scripts = false
	}
}

// WithStaticLogger sets the logger.
func WithStaticLogger(logger *slog.Logger) StaticOption {
	return func(e *StaticEngine) {
		e.logger = logger
	}
}

// WithStaticUserAgent sets the user agent scripts see in navigator.userAgent.
func WithStaticUserAgent(ua string) StaticOption {
	return func(e *StaticEngine) {
		e.userAgent = ua
	}
}

// NewStaticEngine returns an engine that loads pages through client.
func NewStaticEngine(client *transport.Client, opts ...StaticOption) *StaticEngine {
	e := &StaticEngine{
		client:              client,
		sites:               &config.File{},
		userAgent:           config.DefaultUserAgent,
		maxBodySize:         config.DefaultMaxBodySize,
		maxResources:        config.DefaultMaxResources,
		resourceConcurrency: config.DefaultResourceConcurrency,
		scripts:             true,
		logger:              slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads target and runs it to the end of its load event.
//
// The load follows the browser sequence: the document is fetched and parsed,
// render-blocking scripts and stylesheets are fetched, scripts run in document
// order, DOMContentLoaded fires, images and icons are fetched and finally the
// load event fires. Timers scheduled by scripts only run during Idle.
func (e *StaticEngine) Open(ctx context.Context, target *url.URL) (Page, error) {
	origin := time.Now()
	site := e.sites.GetSiteConfig(target.Hostname())
	hc := e.client.HTTPClient(site)

	ua := e.userAgent
	if site.UserAgent != "" {
		ua = site.UserAgent
	}

	var (
		doc *goquery.Document
		src []byte
		nav NavigationTiming
		err error
	)
	final := target
	switch target.Scheme {
	case "file":
		doc, src, nav, err = e.loadFile(target, origin)
	case "http", "https":
		doc, src, final, nav, err = e.loadHTTP(ctx, hc, target, origin)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, target.Scheme)
	}
	if err != nil {
		return nil, err
	}
	doc.Url = final

	p := &staticPage{
		url:    final,
		doc:    doc,
		logger: e.logger.With("url", final.String()),
	}

	loader := &resourceLoader{
		client:      hc,
		page:        final,
		origin:      origin,
		maxBodySize: e.maxBodySize,
		concurrency: e.resourceConcurrency,
	}

	var refs []resourceRef
	if !e.skipResources {
		refs = collectResources(doc, final, site.SkipResources, e.maxResources)
	}
	blocking, deferred := splitBlocking(refs)

	bodies := make(map[*html.Node][]byte)
	for i, f := range loader.fetchAll(ctx, blocking) {
		p.record(f)
		if f.err == nil {
			bodies[blocking[i].node] = f.body
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", final, err)
	}

	p.style = newCascade(stylesheets(doc, bodies))

	if e.scripts {
		p.js = newScriptHost(final, doc, origin, ua, p.logger, p.emit)
		for _, s := range classicScripts(doc, final, bodies, inlineScriptStarts(src)) {
			p.js.runScript(s.name, s.code())
		}
		p.js.readyState = "interactive"
		p.js.dispatch("document", "DOMContentLoaded")
	}
	nav.DOMContentLoadedEventEnd = sinceMillis(origin, time.Now())

	for _, f := range loader.fetchAll(ctx, deferred) {
		p.record(f)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", final, err)
	}

	if p.js != nil {
		p.js.readyState = "complete"
		p.js.dispatch("window", "load")
	}
	nav.LoadEventEnd = sinceMillis(origin, time.Now())
	p.nav = nav

	p.logger.Debug("page loaded",
		"responseStart", nav.ResponseStart,
		"domContentLoaded", nav.DOMContentLoadedEventEnd,
		"load", nav.LoadEventEnd,
		"resources", len(p.resources))
	return p, nil
}

func (e *StaticEngine) loadHTTP(ctx context.Context, hc *http.Client, target *url.URL, origin time.Time) (*goquery.Document, []byte, *url.URL, NavigationTiming, error) {
	var nav NavigationTiming
	var trace timingTrace
	ctx = httptrace.WithClientTrace(ctx, trace.clientTrace())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil, nil, nav, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, nil, nav, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, nil, nav, fmt.Errorf("%s: %w: %d", target, ErrHTTPStatus, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, nil, nil, nav, fmt.Errorf("%s: %w: %s", target, ErrNotHTML, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize+1))
	if err != nil {
		return nil, nil, nil, nav, fmt.Errorf("failed to read %s: %w", target, err)
	}
	if int64(len(body)) > e.maxBodySize {
		return nil, nil, nil, nav, fmt.Errorf("%s: %w", target, ErrBodyTooLarge)
	}
	responseEnd := time.Now()

	doc, src, err := parseDocument(body, contentType)
	if err != nil {
		return nil, nil, nil, nav, fmt.Errorf("failed to parse %s: %w", target, err)
	}

	nav.ResponseStart = sinceMillis(origin, trace.firstByte(responseEnd))
	nav.ResponseEnd = sinceMillis(origin, responseEnd)
	e.logger.Debug("document fetched",
		"url", resp.Request.URL.String(),
		"status", resp.StatusCode,
		"dns", trace.dns(),
		"connect", trace.connect(),
		"tls", trace.tls(),
		"bytes", len(body))
	return doc, src, resp.Request.URL, nav, nil
}

func (e *StaticEngine) loadFile(target *url.URL, origin time.Time) (*goquery.Document, []byte, NavigationTiming, error) {
	var nav NavigationTiming
	body, err := readLimitedFile(target, e.maxBodySize)
	if err != nil {
		return nil, nil, nav, fmt.Errorf("failed to read %s: %w", target.Path, err)
	}
	nav.ResponseStart = sinceMillis(origin, time.Now())
	doc, src, err := parseDocument(body, "text/html")
	if err != nil {
		return nil, nil, nav, fmt.Errorf("failed to parse %s: %w", target.Path, err)
	}
	nav.ResponseEnd = sinceMillis(origin, time.Now())
	return doc, src, nav, nil
}

// parseDocument decodes body using the charset of contentType or of a
// <meta charset> in the document. It also returns the decoded source.
func parseDocument(body []byte, contentType string) (*goquery.Document, []byte, error) {
	src := body
	if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
		if decoded, err := io.ReadAll(r); err == nil {
			src = decoded
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return nil, nil, err
	}
	return doc, src, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func splitBlocking(refs []resourceRef) (blocking, deferred []resourceRef) {
	for _, r := range refs {
		if r.kind.blocking() {
			blocking = append(blocking, r)
		} else {
			deferred = append(deferred, r)
		}
	}
	return blocking, deferred
}

// stylesheets returns the author stylesheets that apply to a screen, in document order.
func stylesheets(doc *goquery.Document, bodies map[*html.Node][]byte) []string {
	var sheets []string
	doc.Find("style, link[rel]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if !screenMedia(attr(n, "media")) {
			return
		}
		switch n.Data {
		case "style":
			sheets = append(sheets, s.Text())
		case "link":
			if body, ok := bodies[n]; ok && relTokens(attr(n, "rel"))["stylesheet"] {
				sheets = append(sheets, string(body))
			}
		}
	})
	return sheets
}

type pageScript struct {
	name   string
	source string
	// start is where an inline script begins in the document; zero for
	// external scripts.
	start textPos
}

// code pads an inline script so that positions reported by the runtime
// are document positions.
func (s pageScript) code() string {
	if s.start.line < 1 || s.start.col < 1 {
		return s.source
	}
	return strings.Repeat("\n", s.start.line-1) + strings.Repeat(" ", s.start.col-1) + s.source
}

type textPos struct {
	line, col int
}

// inlineScriptStarts returns where the text of each <script> element begins
// in src, in document order.
func inlineScriptStarts(src []byte) []textPos {
	var starts []textPos
	z := html.NewTokenizer(bytes.NewReader(src))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return starts
		}
		offset += len(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		if name, _ := z.TagName(); string(name) == "script" {
			starts = append(starts, positionAt(src, offset))
		}
	}
}

// positionAt converts a byte offset into a 1-based line and column.
// CRLF counts as one line break.
func positionAt(src []byte, offset int) textPos {
	pos := textPos{line: 1, col: 1}
	prev := rune(0)
	for _, r := range string(src[:min(offset, len(src))]) {
		switch {
		case r == '\n' && prev == '\r':
		case r == '\n' || r == '\r':
			pos.line++
			pos.col = 1
		default:
			pos.col++
		}
		prev = r
	}
	return pos
}

// classicScripts returns the scripts a modern browser runs as classic
// scripts: no modules, no nomodule fallbacks, no data blocks.
func classicScripts(doc *goquery.Document, page *url.URL, bodies map[*html.Node][]byte, starts []textPos) []pageScript {
	var scripts []pageScript
	all := doc.Find("script")
	if len(starts) != all.Length() {
		starts = nil
	}
	all.Each(func(i int, s *goquery.Selection) {
		n := s.Get(0)
		if _, nomodule := attrValue(n, "nomodule"); nomodule || !isClassicScriptType(attr(n, "type")) {
			return
		}
		if src, ok := attrValue(n, "src"); ok {
			body, fetched := bodies[n]
			if !fetched {
				return
			}
			name := src
			if u, err := page.Parse(strings.TrimSpace(src)); err == nil {
				name = u.String()
			}
			scripts = append(scripts, pageScript{name: name, source: string(body)})
			return
		}
		ps := pageScript{name: page.String(), source: s.Text()}
		if starts != nil {
			ps.start = starts[i]
		}
		scripts = append(scripts, ps)
	})
	return scripts
}

func isClassicScriptType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "", "text/javascript", "application/javascript", "application/x-javascript", "text/ecmascript", "application/ecmascript":
		return true
	default:
		return false
	}
}

// timingTrace records the connection milestones of the document request.
type timingTrace struct {
	mu                   sync.Mutex
	dnsStart, dnsDone    time.Time
	connStart, connDone  time.Time
	tlsStart, tlsDone    time.Time
	gotFirstResponseByte time.Time
}

func (t *timingTrace) set(field *time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if field.IsZero() {
		*field = time.Now()
	}
}

func (t *timingTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { t.set(&t.dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { t.set(&t.dnsDone) },
		ConnectStart:         func(string, string) { t.set(&t.connStart) },
		ConnectDone:          func(string, string, error) { t.set(&t.connDone) },
		TLSHandshakeStart:    func() { t.set(&t.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.set(&t.tlsDone) },
		GotFirstResponseByte: func() { t.set(&t.gotFirstResponseByte) },
	}
}

func (t *timingTrace) firstByte(fallback time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gotFirstResponseByte.IsZero() {
		return fallback
	}
	return t.gotFirstResponseByte
}

func (t *timingTrace) span(start, end *time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(*start)
}

func (t *timingTrace) dns() time.Duration     { return t.span(&t.dnsStart, &t.dnsDone) }
func (t *timingTrace) connect() time.Duration { return t.span(&t.connStart, &t.connDone) }
func (t *timingTrace) tls() time.Duration     { return t.span(&t.tlsStart, &t.tlsDone) }

// staticPage is a page loaded by the StaticEngine.
type staticPage struct {
	url       *url.URL
	doc       *goquery.Document
	nav       NavigationTiming
	resources []Entry
	style     *cascade
	js        *scriptHost
	logger    *slog.Logger

	mu        sync.Mutex
	listeners []func(ErrorEvent)
	closed    bool
}

func (p *staticPage) record(f fetched) {
	if f.err != nil && !isTimeout(f.err) {
		p.logger.Debug("sub-resource failed", "resource", f.entry.Name, "error", f.err)
	}
	p.resources = append(p.resources, f.entry)
}

// emit delivers an uncaught error to the listeners registered so far.
func (p *staticPage) emit(ev ErrorEvent) {
	p.mu.Lock()
	listeners := append([]func(ErrorEvent){}, p.listeners...)
	p.mu.Unlock()

	if len(listeners) == 0 {
		p.logger.Debug("uncaught page error before monitoring", "message", ev.Message)
	}
	for _, fn := range listeners {
		fn(ev)
	}
}

func (p *staticPage) URL() *url.URL               { return p.url }
func (p *staticPage) Document() *goquery.Document { return p.doc }

func (p *staticPage) Navigation() (NavigationTiming, bool) {
	return p.nav, true
}

func (p *staticPage) Entries(t EntryType) []Entry {
	if t != EntryResource {
		return nil
	}
	out := make([]Entry, len(p.resources))
	copy(out, p.resources)
	return out
}

func (p *staticPage) Style(n *html.Node) Style {
	return p.style.Style(n)
}

func (p *staticPage) Heap() (HeapProbe, bool) {
	return nil, false
}

func (p *staticPage) OnError(fn func(ErrorEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *staticPage) Idle(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPageClosed
	}

	deadline := time.Now().Add(d)
	if p.js == nil {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return p.js.runTasks(ctx, deadline)
}

func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.js != nil {
		p.js.vm.Interrupt(ErrPageClosed)
	}
	return nil
}
