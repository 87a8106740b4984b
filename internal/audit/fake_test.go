package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/pageaudit/internal/browser"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakePage is an in-memory browser.Page.
type fakePage struct {
	url     *url.URL
	doc     *goquery.Document
	nav     *browser.NavigationTiming
	entries map[browser.EntryType][]browser.Entry
	hidden  map[string]bool // element ids that are not rendered
	heap    *fakeHeap
	idleErr error

	mu        sync.Mutex
	listeners []func(browser.ErrorEvent)
	idled     []time.Duration
	onIdle    func()
	closed    bool
}

func newFakePage(t *testing.T, rawURL, page string) *fakePage {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	doc.Url = u
	return &fakePage{
		url:     u,
		doc:     doc,
		entries: make(map[browser.EntryType][]browser.Entry),
		hidden:  make(map[string]bool),
	}
}

func (p *fakePage) URL() *url.URL               { return p.url }
func (p *fakePage) Document() *goquery.Document { return p.doc }

func (p *fakePage) Navigation() (browser.NavigationTiming, bool) {
	if p.nav == nil {
		return browser.NavigationTiming{}, false
	}
	return *p.nav, true
}

func (p *fakePage) Entries(t browser.EntryType) []browser.Entry {
	return p.entries[t]
}

func (p *fakePage) Style(n *html.Node) browser.Style {
	for _, a := range n.Attr {
		if a.Key == "id" && p.hidden[a.Val] {
			return browser.Style{Display: "none", Visibility: "visible"}
		}
	}
	return browser.Style{Display: "block", Visibility: "visible"}
}

func (p *fakePage) Heap() (browser.HeapProbe, bool) {
	if p.heap == nil {
		return nil, false
	}
	return p.heap, true
}

func (p *fakePage) OnError(fn func(browser.ErrorEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *fakePage) raise(ev browser.ErrorEvent) {
	p.mu.Lock()
	listeners := append([]func(browser.ErrorEvent){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (p *fakePage) Idle(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	p.idled = append(p.idled, d)
	onIdle := p.onIdle
	p.mu.Unlock()
	if onIdle != nil {
		onIdle()
	}
	return p.idleErr
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeHeap returns its samples in order.
type fakeHeap struct {
	mu      sync.Mutex
	samples []int64
	err     error
}

func (h *fakeHeap) UsedHeapSize(context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return 0, h.err
	}
	if len(h.samples) == 0 {
		return 0, errors.New("no more samples")
	}
	v := h.samples[0]
	h.samples = h.samples[1:]
	return v, nil
}

func sizePtr(n int64) *int64 {
	return &n
}
