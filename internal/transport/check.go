package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

const checkProxyTimeout = 2 * time.Second

const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeFQDN  = 0x03
	socks5ReplyMinBytes = 4
)

// CheckConnection performs a SOCKS5 greeting and one CONNECT request against
// the proxy. The CONNECT target is probeHost:80; any SOCKS5 reply, success or
// failure, counts as a working proxy. A direct client always reports OK.
func (c *Client) CheckConnection(ctx context.Context, probeHost string) ProxyStatus {
	if c.proxyAddress == "" {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}
	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return readFailure(err)
	}
	if greeting[0] != socks5Version || greeting[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	if len(probeHost) == 0 || len(probeHost) > 255 {
		probeHost = "example.com"
	}
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeFQDN, byte(len(probeHost))}
	req = append(req, probeHost...)
	req = append(req, 0x00, 80)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	reply := make([]byte, socks5ReplyMinBytes)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readFailure(err)
	}
	if reply[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
