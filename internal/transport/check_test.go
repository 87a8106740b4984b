package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// serveOnce accepts one connection on a local listener and hands it to handle.
func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return ln.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("SOCKS5 proxy is OK", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(conn, greeting); err != nil {
				return
			}
			_, _ = conn.Write([]byte{socks5Version, socks5AuthNone})

			header := make([]byte, 5)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			rest := make([]byte, int(header[4])+2)
			if _, err := io.ReadFull(conn, rest); err != nil {
				return
			}
			// host unreachable still proves the proxy speaks SOCKS5
			_, _ = conn.Write([]byte{socks5Version, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})

		client, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if got := client.CheckConnection(context.Background(), "example.com"); got != ProxyStatusOK {
			t.Errorf("status = %v, want OK", got)
		}
	})

	t.Run("HTTP server is the wrong type", func(t *testing.T) {
		t.Parallel()

		addr := serveOnce(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = io.ReadFull(conn, buf)
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		})

		client, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		status := client.CheckConnection(context.Background(), "example.com")
		if status != ProxyStatusWrongType {
			t.Errorf("status = %v, want wrong type", status)
		}
		if !errors.Is(status.Err(), ErrProxyNotSOCKS5) {
			t.Errorf("Err() = %v", status.Err())
		}
	})

	t.Run("closed port cannot connect", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen failed: %v", err)
		}
		addr := ln.Addr().String()
		ln.Close()

		client, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if got := client.CheckConnection(context.Background(), "example.com"); got != ProxyStatusCannotConnect {
			t.Errorf("status = %v, want cannot connect", got)
		}
	})

	t.Run("direct client is always OK", func(t *testing.T) {
		t.Parallel()

		if got := NewDirectClient(time.Second).CheckConnection(context.Background(), ""); got != ProxyStatusOK {
			t.Errorf("status = %v", got)
		}
	})
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		str     string
		wantErr error
	}{
		{status: ProxyStatusOK, str: "OK", wantErr: nil},
		{status: ProxyStatusWrongType, str: "wrong type (not SOCKS5)", wantErr: ErrProxyNotSOCKS5},
		{status: ProxyStatusCannotConnect, str: "cannot connect", wantErr: ErrProxyCannotConnect},
		{status: ProxyStatusTimeout, str: "timeout", wantErr: ErrProxyTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			t.Parallel()

			if tt.status.String() != tt.str {
				t.Errorf("String() = %q", tt.status.String())
			}
			if !errors.Is(tt.status.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", tt.status.Err(), tt.wantErr)
			}
		})
	}

	if ProxyStatus(99).String() != "unknown" || ProxyStatus(99).Err() == nil {
		t.Error("unexpected handling of unknown status")
	}
}
