// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/pmic-logger/config"
)

func TestNewAPIServer(t *testing.T) {
	tt := []struct {
		name  string
		opts  []OptionFn
		addrs []string
		web   string
	}{{
		name:  "default options",
		opts:  []OptionFn{},
		addrs: []string{config.DefaultPort},
		web:   "",
	}, {
		name: "with custom logger",
		opts: []OptionFn{
			WithLogger(slog.Default().With("test", "custom")),
		},
		addrs: []string{config.DefaultPort},
		web:   "",
	}, {
		name: "with listen addresses and web config",
		opts: []OptionFn{
			WithListen([]string{":8080", ":8081"}, "/etc/pmic/web.yml"),
		},
		addrs: []string{":8080", ":8081"},
		web:   "/etc/pmic/web.yml",
	}}

	for _, tt := range tt {
		t.Run(tt.name, func(t *testing.T) {
			server := NewAPIServer(tt.opts...)

			assert.NotNil(t, server)
			assert.Equal(t, "api-server", server.Name())
			assert.NotNil(t, server.mux)
			assert.NotNil(t, server.logger)
			assert.Equal(t, tt.addrs, *server.webConfig.WebListenAddresses)
			assert.Equal(t, tt.web, *server.webConfig.WebConfigFile)
		})
	}
}

func TestAPIServer_Register(t *testing.T) {
	t.Run("registers endpoints", func(t *testing.T) {
		server := NewAPIServer()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		require.NoError(t, server.Register("/test", "Test Endpoint", "A test endpoint", handler))
		require.NoError(t, server.Register("/other", "Other", "Another endpoint", handler))

		assert.Len(t, server.endpoints, 2)

		_, pattern := server.mux.Handler(&http.Request{URL: &url.URL{Path: "/test"}})
		assert.Equal(t, "/test", pattern)

		rec := httptest.NewRecorder()
		server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		server := NewAPIServer()
		handler := http.NotFoundHandler()
		require.NoError(t, server.Register("/metrics", "Metrics", "Prometheus metrics", handler))

		err := server.Register("/metrics", "Metrics", "Prometheus metrics", handler)
		assert.ErrorContains(t, err, "already registered")
	})
}

func TestAPIServer_LandingPage(t *testing.T) {
	server := NewAPIServer()
	require.NoError(t, server.Init())
	require.NoError(t, server.Register("/metrics", "Metrics", "Prometheus metrics", http.NotFoundHandler()))

	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>PMIC Logger</h1>")
	assert.Contains(t, body, `<a href="/metrics">Metrics</a> Prometheus metrics`)

	rec = httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIServer_RunWithCancelledContext(t *testing.T) {
	server := NewAPIServer(WithListen([]string{"127.0.0.1:0"}, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, server.Run(ctx))
	assert.NoError(t, server.Shutdown())
}

func TestAPIServer_Shutdown(t *testing.T) {
	server := NewAPIServer()
	assert.NoError(t, server.Shutdown())
}

func findFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAPIServer_PortConflict(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	server := NewAPIServer(WithListen([]string{listener.Addr().String()}, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = server.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}

func TestAPIServer_InvalidWebConfig(t *testing.T) {
	webConfig := filepath.Join(t.TempDir(), "web.yml")
	require.NoError(t, os.WriteFile(webConfig, []byte("tls_server_config:\n  cert_file: /does/not/exist.crt\n"), 0o644))

	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	server := NewAPIServer(WithListen([]string{addr}, webConfig))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Error(t, server.Run(ctx))
}

func TestAPIServer_EndToEnd(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	server := NewAPIServer(WithListen([]string{addr}, ""))
	require.NoError(t, server.Init())
	require.NoError(t, server.Register("/api/test", "Test API", "Test API endpoint",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("test response"))
		})))

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		errCh <- server.Run(ctx)
	}()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Get(fmt.Sprintf("http://%s/api/test", addr))
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test response", string(body))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Server didn't shut down within expected timeframe")
	}
	assert.NoError(t, server.Shutdown())
}
