package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidenceledger/internal/platform/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(context.Background(), config.Server{Addr: ":0"}, http.NotFoundHandler(), log)

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 60*time.Second, srv.ReadTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.NotNil(t, srv.ErrorLog)
}

func TestServeStopsOnCancel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(context.Background(), config.Server{Addr: "127.0.0.1:0", WriteTimeout: time.Second}, http.NotFoundHandler(), log)
	assert.Equal(t, time.Second, srv.WriteTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second, log) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
