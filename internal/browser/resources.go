package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// resourceKind separates render-blocking sub-resources from the rest.
type resourceKind int

const (
	kindScript resourceKind = iota
	kindStylesheet
	kindImage
	kindIcon
)

func (k resourceKind) initiator() string {
	switch k {
	case kindScript:
		return "script"
	case kindImage:
		return "img"
	default:
		return "link"
	}
}

func (k resourceKind) blocking() bool {
	return k == kindScript || k == kindStylesheet
}

// resourceRef is a sub-resource referenced by the document.
type resourceRef struct {
	url  *url.URL
	kind resourceKind
	node *html.Node
}

// fetched is the outcome of loading one sub-resource.
type fetched struct {
	entry Entry
	body  []byte
	err   error
}

// collectResources lists the sub-resources a browser would fetch while loading
// the document, in document order. Lazy images, data: URLs, duplicates and
// paths matching skip are left out; at most limit references are returned.
func collectResources(doc *goquery.Document, base *url.URL, skip []string, limit int) []resourceRef {
	var refs []resourceRef
	seen := make(map[string]bool)

	add := func(n *html.Node, raw string, kind resourceKind) {
		if limit > 0 && len(refs) >= limit {
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		u, err := base.Parse(raw)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return
		}
		u.Fragment = ""
		key := u.String()
		if seen[key] || skipped(skip, u) {
			return
		}
		seen[key] = true
		refs = append(refs, resourceRef{url: u, kind: kind, node: n})
	}

	doc.Find("script[src], link[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		switch n.Data {
		case "script":
			add(n, attr(n, "src"), kindScript)
		case "img":
			if strings.EqualFold(strings.TrimSpace(attr(n, "loading")), "lazy") {
				return
			}
			add(n, attr(n, "src"), kindImage)
		case "link":
			rel := relTokens(attr(n, "rel"))
			switch {
			case rel["stylesheet"] && !rel["alternate"]:
				add(n, attr(n, "href"), kindStylesheet)
			case rel["icon"] || rel["apple-touch-icon"]:
				add(n, attr(n, "href"), kindIcon)
			}
		}
	})
	return refs
}

// relTokens splits a rel attribute into its lower-cased tokens.
func relTokens(rel string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(rel)) {
		tokens[t] = true
	}
	return tokens
}

func skipped(patterns []string, u *url.URL) bool {
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, p := range patterns {
		if matchPattern(p, path) {
			return true
		}
	}
	return false
}

// matchPattern matches a path against a glob pattern:
//   - "/ads/*" matches everything below /ads
//   - "*.mp4" matches the extension anywhere
//   - other patterns go through filepath.Match, on the full path and on the base name
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}

// resourceLoader fetches sub-resources for one page.
type resourceLoader struct {
	client      *http.Client
	page        *url.URL
	origin      time.Time
	maxBodySize int64
	concurrency int
}

// fetchAll loads refs concurrently and returns the outcomes in the order of refs.
// A failed resource is still recorded, with a transfer size of zero.
func (l *resourceLoader) fetchAll(ctx context.Context, refs []resourceRef) []fetched {
	out := make([]fetched, len(refs))
	if len(refs) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, l.concurrency))

	for i, ref := range refs {
		g.Go(func() error {
			out[i] = l.fetch(gctx, ref)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // fetch never returns an error to the group
	return out
}

func (l *resourceLoader) fetch(ctx context.Context, ref resourceRef) fetched {
	start := time.Now()
	entry := Entry{
		Name:          ref.url.String(),
		EntryType:     EntryResource,
		StartTime:     sinceMillis(l.origin, start),
		InitiatorType: ref.kind.initiator(),
	}
	zero := int64(0)
	entry.TransferSize = &zero

	var (
		body []byte
		err  error
	)
	if ref.url.Scheme == "file" {
		body, err = readLimitedFile(ref.url, l.maxBodySize)
	} else {
		var size int64
		body, size, err = l.fetchHTTP(ctx, ref.url)
		entry.TransferSize = &size
	}
	entry.Duration = sinceMillis(start, time.Now())
	return fetched{entry: entry, body: body, err: err}
}

func (l *resourceLoader) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", l.page.String())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBodySize))
	if err != nil {
		return nil, 0, err
	}

	var size int64
	if timingAllowed(l.page, resp) {
		size = int64(len(body)) + headerSize(resp)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, size, fmt.Errorf("%s: %w: %d", u, ErrHTTPStatus, resp.StatusCode)
	}
	return body, size, nil
}

// timingAllowed reports whether the page may see the size of a response:
// same-origin responses always, cross-origin ones only with a matching
// Timing-Allow-Origin header.
func timingAllowed(page *url.URL, resp *http.Response) bool {
	res := resp.Request.URL
	if sameOrigin(page, res) {
		return true
	}
	pageOrigin := page.Scheme + "://" + page.Host
	for _, v := range resp.Header.Values("Timing-Allow-Origin") {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o == "*" || strings.EqualFold(o, pageOrigin) {
				return true
			}
		}
	}
	return false
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// headerSize approximates the encoded size of the status line and headers.
func headerSize(resp *http.Response) int64 {
	n := int64(len(resp.Proto) + len(resp.Status) + 3)
	for k, vs := range resp.Header {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 4)
		}
	}
	return n + 2
}

func readLimitedFile(u *url.URL, limit int64) ([]byte, error) {
	f, err := os.Open(filepath.FromSlash(u.Path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func sinceMillis(origin, t time.Time) float64 {
	return float64(t.Sub(origin).Microseconds()) / 1000
}

// isTimeout reports whether err is a deadline or cancellation.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
