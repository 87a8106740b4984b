// Package transport builds the HTTP clients the page engines load pages with.
//
// A Client connects either directly or through a SOCKS5 proxy. The proxy can
// be external (--proxy) or an embedded Tor daemon started with tornago
// (--tor). Per-site cookies, headers and user agents from the site file are
// injected by the client's RoundTripper, so sub-resource requests carry them
// too.
//
// Onion hosts are validated (v3 format and checksum) before any connection is
// attempted and are reached with certificate verification turned off; every
// other host is verified normally.
package transport
