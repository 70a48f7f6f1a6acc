package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Base(t *testing.T) {
	cfg, err := Load(".", "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "cart:", cfg.Store.KeyPrefix)
	assert.Equal(t, 30*time.Minute, cfg.Store.IdleTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, uint32(5), cfg.Store.Breaker.FailureThreshold)
	assert.Equal(t, "cart-checkout", cfg.Kafka.CheckoutTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_OverlayAndEnv(t *testing.T) {
	dir := t.TempDir()
	base, err := os.ReadFile("base.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), base, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("store:\n  backend: redis\nredis:\n  ttl: 1h\n"), 0o644))

	t.Setenv("CARTSVC_REDIS__ADDR", "redis:6380")
	t.Setenv("CARTSVC_APP__LOG_LEVEL", "debug")

	cfg, err := Load(dir, "staging")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoad_MissingBase(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.App.HTTPAddr = ":8080"
		c.Store.Backend = "memory"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory ok", mutate: func(*Config) {}},
		{name: "missing http addr", mutate: func(c *Config) { c.App.HTTPAddr = "" }, wantErr: "app.http_addr"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: "not supported"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Backend = "sqlite" }, wantErr: "sqlite.path"},
		{name: "cache over memory", mutate: func(c *Config) {
			c.Store.Cache = true
			c.Redis.Addr = "localhost:6379"
		}, wantErr: "durable backend"},
		{name: "cache over postgres", mutate: func(c *Config) {
			c.Store.Backend = "postgres"
			c.Postgres.DSN = "postgres://x"
			c.Store.Cache = true
			c.Redis.Addr = "localhost:6379"
		}},
		{name: "brokers without topic", mutate: func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"} }, wantErr: "checkout_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
