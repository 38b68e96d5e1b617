package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

func TestListenAddrPrefersPlatformPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Port = "8080"

	t.Setenv("PORT", "")
	require.Equal(t, ":8080", listenAddr(cfg))

	t.Setenv("PORT", " 9090 ")
	require.Equal(t, ":9090", listenAddr(cfg))
}

func TestServeDrainsOnCancel(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, logg, server) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
	server := &http.Server{Addr: "not-an-address", ReadHeaderTimeout: time.Second}

	require.Error(t, serve(context.Background(), logg, server))
}
