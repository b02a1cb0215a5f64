package config_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-redirect/config"
	"mini-redirect/store"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{"REDIRECT_SERVICE_TYPE": "PolicyService"})
	require.NoError(t, err)

	assert.Equal(t, "PolicyService", cfg.ServiceType)
	assert.Empty(t, cfg.InstanceName)
	assert.Equal(t, 10*time.Second, cfg.HeartRate)
	assert.Equal(t, 3.0, cfg.TTLRatio)
	assert.Equal(t, 20*time.Second, cfg.MemoryTTL)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.StoreRetries)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.EtcdEndpoints)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestOverrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"REDIRECT_SERVICE_TYPE":        "DataService",
		"REDIRECT_INSTANCE_NAME":       "10.0.0.7:9000",
		"REDIRECT_HEART_RATE":          "2s",
		"REDIRECT_TTL_RATIO":           "2.5",
		"REDIRECT_STORE":               "etcd",
		"REDIRECT_ETCD_ENDPOINTS":      "a:2379,b:2379",
		"REDIRECT_RATE_LIMIT":          "100",
		"REDIRECT_RATE_BURST":          "20",
		"REDIRECT_LOG_LEVEL":           "debug",
		"REDIRECT_TRUST_PROXY_HEADERS": "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7:9000", cfg.InstanceName)
	assert.Equal(t, 2*time.Second, cfg.HeartRate)
	assert.Equal(t, 2.5, cfg.TTLRatio)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 100.0, cfg.RateLimit)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, zerolog.DebugLevel, cfg.Logger(&bytes.Buffer{}).GetLevel())
}

func TestInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing service type": {},
		"heart rate floor":     {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_HEART_RATE": "500ms"},
		"ratio":                {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_TTL_RATIO": "1"},
		"store":                {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_STORE": "mongo"},
		"postgres dsn":         {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_STORE": "postgres"},
		"burst":                {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_RATE_LIMIT": "5"},
		"log level":            {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_LOG_LEVEL": "loud"},
		"duration syntax":      {"REDIRECT_SERVICE_TYPE": "s", "REDIRECT_MEMORY_TTL": "soon"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadFrom(environ)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestOpenMemoryStore(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{"REDIRECT_SERVICE_TYPE": "s"})
	require.NoError(t, err)

	s, err := cfg.OpenStore(context.Background(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &store.Retrying{}, s)

	cfg.StoreRetries = 0
	s, err = cfg.OpenStore(context.Background(), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}
