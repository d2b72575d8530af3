package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)

	t.Run("zero timeout falls back to default", func(t *testing.T) {
		sm := NewShutdownManager(logger, 0)
		if sm.shutdownTimeout != 30*time.Second {
			t.Errorf("expected 30s default timeout, got %v", sm.shutdownTimeout)
		}
	})

	t.Run("explicit timeout kept", func(t *testing.T) {
		sm := NewShutdownManager(logger, 5*time.Second, &http.Server{Addr: ":0"})
		if sm.shutdownTimeout != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", sm.shutdownTimeout)
		}
		if len(sm.servers) != 1 {
			t.Errorf("expected 1 server, got %d", len(sm.servers))
		}
	})
}

func TestShutdownManager_RegisterShutdownFunc(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second)

	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	sm.mu.Lock()
	count := len(sm.shutdownFuncs)
	sm.mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 registered shutdown funcs, got %d", count)
	}
}
