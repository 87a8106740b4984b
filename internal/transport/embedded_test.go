package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/nao1215/pageaudit/internal/config"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("uses the default startup timeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != config.DefaultTorStartupTimeout {
			t.Errorf("startupTimeout = %v", e.startupTimeout)
		}
	})

	t.Run("applies WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(30 * time.Second))
		if e.startupTimeout != 30*time.Second {
			t.Errorf("startupTimeout = %v", e.startupTimeout)
		}
	})
}

func TestEmbeddedTor_Stopped(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()

	if e.IsRunning() {
		t.Error("expected a new daemon to be stopped")
	}
	if e.SocksAddr() != "" {
		t.Errorf("SocksAddr() = %q", e.SocksAddr())
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on a stopped daemon: %v", err)
	}
	if _, err := e.NewClient(time.Second); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
}
