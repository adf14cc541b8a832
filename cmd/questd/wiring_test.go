package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/infrastructure/middleware"
	"github.com/ahrav/questlog/infrastructure/proofstore"
	"github.com/ahrav/questlog/internal/application"
	"github.com/ahrav/questlog/internal/testutils"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(application.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = newLogger(application.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = newLogger(application.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := application.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "data", "questlog.db"),
	}
	store, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	quests, err := store.ListQuests(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, quests)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), application.StorageConfig{Driver: "mongo"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewProofStore(t *testing.T) {
	store, err := newProofStore(context.Background(), application.ProofsConfig{Backend: "datauri"})
	require.NoError(t, err)
	assert.IsType(t, proofstore.DataURIStore{}, store)

	_, err = newProofStore(context.Background(), application.ProofsConfig{Backend: "s3"})
	assert.Error(t, err, "s3 requires a bucket")

	_, err = newProofStore(context.Background(), application.ProofsConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNewLLMClient_DefaultsModel(t *testing.T) {
	cfg := application.DefaultConfig().Classifier
	cfg.APIKey = "sk-test"

	metrics := middleware.NewPrometheusMetrics(prometheus.NewRegistry())
	client, err := newLLMClient(cfg, "questlog", metrics)
	require.NoError(t, err)
	assert.Equal(t, defaultModels["openai"], client.GetModel())

	cfg.Model = "gpt-4o"
	client, err = newLLMClient(cfg, "questlog", metrics)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.GetModel())

	cfg.Provider = "carrier-pigeon"
	_, err = newLLMClient(cfg, "questlog", metrics)
	assert.Error(t, err)
}

func TestNewServices(t *testing.T) {
	cfg := application.DefaultConfig()
	svc, err := newServices(cfg, testutils.NewMemoryStore(), proofstore.NewDataURIStore(),
		testutils.NewMockLLMClient("m"), nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, svc.Quests)
	assert.NotNil(t, svc.Tasks)
	assert.NotNil(t, svc.Verifier)
	assert.NotNil(t, svc.Dashboard)
}

func TestKeepaliveTarget(t *testing.T) {
	tests := []struct {
		cfg  application.ServerConfig
		want string
	}{
		{application.ServerConfig{Addr: ":3000"}, "http://localhost:3000/ping"},
		{application.ServerConfig{Addr: "0.0.0.0:8080"}, "http://localhost:8080/ping"},
		{application.ServerConfig{Addr: "10.0.0.5:8080"}, "http://10.0.0.5:8080/ping"},
		{application.ServerConfig{Addr: ":3000", KeepaliveURL: "https://quests.example.com/ping"}, "https://quests.example.com/ping"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keepaliveTarget(tt.cfg))
	}
}

func TestStartKeepalive(t *testing.T) {
	k, err := startKeepalive(application.ServerConfig{Addr: ":3000"}, zap.NewNop())
	require.NoError(t, err)
	k.Stop()

	_, err = startKeepalive(application.ServerConfig{Addr: ":3000", KeepaliveSchedule: "every tuesday"}, zap.NewNop())
	assert.Error(t, err)

	k, err = startKeepalive(application.ServerConfig{Addr: ":3000", KeepaliveSchedule: "@every 14m"}, zap.NewNop())
	require.NoError(t, err)
	k.Stop()
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	assert.NoError(t, ping(context.Background(), srv.Client(), srv.URL+"/ping"))
	assert.Error(t, ping(context.Background(), srv.Client(), srv.URL+"/missing"))
}
