package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/pageaudit/internal/config"
)

// maxRedirects bounds redirect chains while loading a page or a sub-resource.
const maxRedirects = 10

// Client builds the HTTP clients the page engines load pages with.
// A zero proxy address means direct connections.
type Client struct {
	proxyAddress string
	dialer       proxy.ContextDialer
	timeout      time.Duration
	userAgent    string
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the default User-Agent. A site file entry overrides it.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewDirectClient returns a client that connects without a proxy.
func NewDirectClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		dialer:  &net.Dialer{Timeout: timeout},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient returns a client that routes every connection through the SOCKS5
// proxy at proxyAddress ("host:port"). The proxy is not contacted here; call
// CheckConnection to verify it.
func NewClient(proxyAddress string, timeout time.Duration, opts ...Option) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	d, err := proxy.SOCKS5("tcp", proxyAddress, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", proxyAddress)
	}

	c := &Client{
		proxyAddress: proxyAddress,
		dialer:       cd,
		timeout:      timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the SOCKS5 proxy address, or "" for a direct client.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// ProxyURL returns the proxy in the form browsers accept, e.g. "socks5://127.0.0.1:9050".
func (c *Client) ProxyURL() string {
	if c.proxyAddress == "" {
		return ""
	}
	return "socks5://" + c.proxyAddress
}

// Timeout returns the per-request timeout of the clients built by c.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// DialContext opens a connection through the configured route.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, network, address)
}

// HTTPClient returns an HTTP client for one site. The site's cookie, headers
// and user agent are injected into every request, including redirects and
// sub-resource fetches.
//
// Responses are requested without compression so that the body length read
// from the wire is the transfer size of the resource.
func (c *Client) HTTPClient(site config.SiteConfig) *http.Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // only fails with invalid options

	ua := c.userAgent
	if site.UserAgent != "" {
		ua = site.UserAgent
	}

	return &http.Client{
		Transport: &headerInjectingTransport{
			base: &onionAwareTransport{
				verified: c.newTransport(false),
				onion:    c.newTransport(true),
			},
			cookie:    site.Cookie,
			headers:   site.Headers,
			userAgent: ua,
		},
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func (c *Client) newTransport(skipVerify bool) *http.Transport {
	return &http.Transport{
		DialContext: c.dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: skipVerify, //nolint:gosec // onion services authenticate through their address
			MinVersion:         tls.VersionTLS12,
		},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 6,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}
}

// onionAwareTransport sends .onion hosts through a transport that accepts
// self-signed certificates and everything else through a verifying one.
type onionAwareTransport struct {
	verified http.RoundTripper
	onion    http.RoundTripper
}

func (t *onionAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if IsOnionHost(req.URL.Hostname()) {
		return t.onion.RoundTrip(req)
	}
	return t.verified.RoundTrip(req)
}

// headerInjectingTransport adds the site's cookie, headers and user agent to
// every request it forwards.
type headerInjectingTransport struct {
	base      http.RoundTripper
	cookie    string
	headers   map[string]string
	userAgent string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
