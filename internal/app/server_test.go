package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/pkg/health"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServe_DrainsOnCancel(t *testing.T) {
	hs := health.New()
	hs.SetReady(true)

	srv := &http.Server{
		Addr:              freeAddr(t),
		ReadHeaderTimeout: time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, zap.NewNop(), srv, hs, GracefulConfig{ShutdownTimeout: time.Second})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, hs.IsReady())
}

func TestServe_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	hs := health.New()
	hs.SetReady(true)
	srv := &http.Server{Addr: l.Addr().String(), ReadHeaderTimeout: time.Second}

	err = serve(context.Background(), zap.NewNop(), srv, hs, GracefulConfig{
		ReadinessDelay:  time.Hour,
		ShutdownTimeout: time.Second,
	})

	require.Error(t, err)
	assert.False(t, hs.IsReady())
}
