package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "postgres", cfg.Ledger.Backend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTLShort)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTLMedium)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTLLong)
	assert.Equal(t, "PROMEDIO_PONDERADO", cfg.Valuation.DefaultPolicy)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("LEDGER_BACKEND", "MEMORY")
	v.Set("CACHE_BACKEND", "redis")
	v.Set("CACHE_TTL_SHORT", "30s")
	v.Set("CACHE_TTL_LONG", "900")
	v.Set("CACHE_SWEEP_INTERVAL", "0")
	v.Set("HTTP_PORT", "9090")
	v.Set("MIGRATIONS_AUTO", "true")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.True(t, cfg.Ledger.AutoMigrations)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTLShort)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTLLong)
	assert.Equal(t, time.Duration(0), cfg.Cache.SweepInterval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestFromViper_InvalidBackend(t *testing.T) {
	v := viper.New()
	v.Set("CACHE_BACKEND", "memcached")

	_, err := fromViper(v)
	assert.Error(t, err)
}

func TestDBConfig_ConnectionString(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", DBName: "inv", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/inv?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}
