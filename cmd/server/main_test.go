package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/adapter/connector"
	"github.com/iho/goimport/internal/adapter/source/ofx"
	"github.com/iho/goimport/internal/infrastructure/config"
	"github.com/iho/goimport/internal/usecase"
	"github.com/iho/goimport/internal/usecase/mocks"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := &config.Config{
		HTTPPort:         "9090",
		HTTPReadTimeout:  time.Second,
		HTTPWriteTimeout: 2 * time.Second,
		HTTPIdleTimeout:  3 * time.Second,
	}

	srv := newHTTPServer(cfg, http.NotFoundHandler())

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
	assert.Equal(t, 3*time.Second, srv.IdleTimeout)
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, time.Second, zerolog.Nop()) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRegisterHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - name: BankCSV\n    timeColumn: date\n"), 0o600))

	uc := usecase.NewProcessUseCase(mocks.NewMockTransactionManager(), mocks.NewMockProcessRepository(), nil, nil, zerolog.Nop())
	conn := connector.NewCachedRates(connector.NewMemoryConnector(nil), nil, 0, nil, zerolog.Nop())

	require.NoError(t, registerHandlers(uc, path, conn, zerolog.Nop()))
	assert.Equal(t, []string{"BankCSV", ofx.DefaultName}, uc.Handlers())
}
