package browser

import (
	"context"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// EntryType is the type of a performance timeline entry.
type EntryType string

// Timeline entry types a page exposes.
const (
	EntryPaint    EntryType = "paint"
	EntryResource EntryType = "resource"
)

// NavigationTiming is the navigation entry of a page. All values are
// milliseconds relative to the time origin of the page.
type NavigationTiming struct {
	StartTime                float64
	ResponseStart            float64
	ResponseEnd              float64
	DOMContentLoadedEventEnd float64
	LoadEventEnd             float64
}

// Entry is a paint or resource timeline entry.
type Entry struct {
	Name          string
	EntryType     EntryType
	StartTime     float64
	Duration      float64
	InitiatorType string

	// TransferSize is nil when the engine does not report one.
	TransferSize *int64
}

// Style is the part of an element's computed style the checks read.
type Style struct {
	Display    string
	Visibility string
}

// Rendered reports whether the element is neither display:none nor visibility:hidden.
func (s Style) Rendered() bool {
	return s.Display != "none" && s.Visibility != "hidden"
}

// HeapProbe samples the page's JavaScript heap.
type HeapProbe interface {
	UsedHeapSize(ctx context.Context) (int64, error)
}

// ErrorEvent is one uncaught runtime error raised by the page.
type ErrorEvent struct {
	Message  string
	Filename string
	Line     int
	Column   int
	Stack    string
	Time     time.Time
}

// Page is a loaded page and its introspection surface.
//
// Methods other than OnError must be called from one goroutine. Error
// listeners may be invoked from an engine goroutine.
type Page interface {
	// URL returns the final URL of the document after redirects.
	URL() *url.URL

	// Document returns the parsed DOM.
	Document() *goquery.Document

	// Navigation returns the navigation entry; ok is false when the page has none.
	Navigation() (timing NavigationTiming, ok bool)

	// Entries returns the timeline entries of type t in the order they were recorded.
	Entries(t EntryType) []Entry

	// Style returns the computed style of an element node of Document.
	Style(n *html.Node) Style

	// Heap returns the heap probe; ok is false when the capability is absent.
	Heap() (probe HeapProbe, ok bool)

	// OnError registers fn for every uncaught error raised from now on.
	// Listeners are never removed.
	OnError(fn func(ErrorEvent))

	// Idle lets the page's event loop run for d or until ctx is done.
	Idle(ctx context.Context, d time.Duration) error

	// Close releases the page.
	Close() error
}

// Engine loads pages.
type Engine interface {
	Open(ctx context.Context, target *url.URL) (Page, error)
}
